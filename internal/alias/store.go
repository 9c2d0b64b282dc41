package alias

import (
	"context"
	"strings"

	"github.com/suPer8Hu/picgen-bot/internal/common"
	"github.com/suPer8Hu/picgen-bot/internal/identity"
	"github.com/suPer8Hu/picgen-bot/internal/store"
)

// Marker flags a word as an alias reference.
const Marker = "%"

const maxTokenLen = 64

type Alias struct {
	Token     string `json:"token"`
	Expansion string `json:"expansion"`
}

type Store struct {
	store *store.Store
}

func NewStore(s *store.Store) *Store {
	return &Store{store: s}
}

var newlines = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// NormalizeToken strips leading markers and surrounding space: "%foo" -> "foo".
func NormalizeToken(token string) string {
	return strings.TrimLeft(strings.TrimSpace(token), Marker)
}

// Teach upserts token -> expansion for the identity. Identities without a stable
// handle are refused.
func (s *Store) Teach(ctx context.Context, id identity.Identity, token, expansion string) error {
	if !id.HasStableHandle() {
		return common.Validationf("You need a Telegram username to teach aliases.")
	}
	token = NormalizeToken(token)
	expansion = strings.TrimSpace(newlines.Replace(expansion))
	if token == "" || expansion == "" {
		return common.Validationf("Please provide an alias and text to teach.")
	}
	if strings.ContainsAny(token, " \t") {
		return common.Validationf("An alias must be a single word.")
	}
	if len(token) > maxTokenLen {
		return common.Validationf("An alias can be at most %d characters long.", maxTokenLen)
	}

	err := s.store.Do(ctx, func(ctx context.Context, r *store.Repo) error {
		return r.UpsertAlias(ctx, id.ID, token, expansion)
	})
	return common.NewStorageError("teach alias", err)
}

// Forget deletes the alias; forgetting an unknown token succeeds.
func (s *Store) Forget(ctx context.Context, id identity.Identity, token string) error {
	token = NormalizeToken(token)
	if token == "" {
		return common.Validationf("Please provide an alias to forget.")
	}
	err := s.store.Do(ctx, func(ctx context.Context, r *store.Repo) error {
		return r.DeleteAlias(ctx, id.ID, token)
	})
	return common.NewStorageError("forget alias", err)
}

func (s *Store) Get(ctx context.Context, id identity.Identity, token string) (string, bool, error) {
	token = NormalizeToken(token)
	var a *store.Alias
	err := s.store.Do(ctx, func(ctx context.Context, r *store.Repo) error {
		var err error
		a, err = r.GetAlias(ctx, id.ID, token)
		return err
	})
	if err != nil {
		return "", false, common.NewStorageError("get alias", err)
	}
	if a == nil {
		return "", false, nil
	}
	return a.Expansion, true, nil
}

// DumpAll lists the identity's aliases ordered by token; no aliases is an empty slice.
func (s *Store) DumpAll(ctx context.Context, id identity.Identity) ([]Alias, error) {
	var rows []store.Alias
	err := s.store.Do(ctx, func(ctx context.Context, r *store.Repo) error {
		var err error
		rows, err = r.ListAliases(ctx, id.ID)
		return err
	})
	if err != nil {
		return nil, common.NewStorageError("dump aliases", err)
	}
	out := make([]Alias, 0, len(rows))
	for _, row := range rows {
		out = append(out, Alias{Token: row.Token, Expansion: row.Expansion})
	}
	return out, nil
}
