package alias

import (
	"context"
	"sort"
	"strings"

	"github.com/suPer8Hu/picgen-bot/internal/identity"
)

// trailing characters ignored when deciding whether a word is a reference
const trailingPunct = ".,!?"

type Lookup interface {
	Get(ctx context.Context, id identity.Identity, token string) (string, bool, error)
}

// Expander replaces %token references in a prompt with the identity's aliases.
type Expander struct {
	aliases Lookup
}

func NewExpander(l Lookup) *Expander {
	return &Expander{aliases: l}
}

// References returns the tokens referenced in text, in order of first appearance.
func References(text string) []string {
	var refs []string
	seen := make(map[string]struct{})
	for _, word := range strings.Fields(text) {
		word = strings.TrimRight(word, trailingPunct)
		if len(word) <= len(Marker) || !strings.HasPrefix(word, Marker) {
			continue
		}
		token := word[len(Marker):]
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		refs = append(refs, token)
	}
	return refs
}

// Expand substitutes every known reference in one pass over the original text.
// Expansions are not scanned again, so aliases never expand transitively.
// Unknown references are left as they are.
func (e *Expander) Expand(ctx context.Context, id identity.Identity, text string) (string, error) {
	refs := References(text)
	if len(refs) == 0 {
		return text, nil
	}

	type pair struct{ old, new string }
	pairs := make([]pair, 0, len(refs))
	for _, token := range refs {
		expansion, ok, err := e.aliases.Get(ctx, id, token)
		if err != nil {
			return "", err
		}
		if ok {
			pairs = append(pairs, pair{old: Marker + token, new: expansion})
		}
	}
	if len(pairs) == 0 {
		return text, nil
	}

	// %foobar must win over %foo at the same position
	sort.SliceStable(pairs, func(i, j int) bool { return len(pairs[i].old) > len(pairs[j].old) })

	oldnew := make([]string, 0, 2*len(pairs))
	for _, p := range pairs {
		oldnew = append(oldnew, p.old, p.new)
	}
	return strings.NewReplacer(oldnew...).Replace(text), nil
}
