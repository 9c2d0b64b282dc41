package bot

import (
	"context"
	"strings"

	"github.com/suPer8Hu/picgen-bot/internal/common"
	"github.com/suPer8Hu/picgen-bot/internal/identity"
	"github.com/suPer8Hu/picgen-bot/internal/store"
)

// SafeModes reads and writes the per-identity spoiler flag.
type SafeModes struct {
	store *store.Store
}

func NewSafeModes(s *store.Store) *SafeModes {
	return &SafeModes{store: s}
}

// ParseSafeMode accepts exactly "on" or "off".
func ParseSafeMode(value string) (bool, error) {
	switch strings.TrimSpace(value) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, common.Validationf(`Please provide a status ("on" or "off") to set the filter status to.`)
	}
}

func (m *SafeModes) Spoiler(ctx context.Context, id identity.Identity) (bool, error) {
	var enabled bool
	err := m.store.Do(ctx, func(ctx context.Context, r *store.Repo) error {
		s, err := r.GetSafeMode(ctx, id.ID)
		if err != nil {
			return err
		}
		enabled = s.SpoilerEnabled
		return nil
	})
	if err != nil {
		return false, common.NewStorageError("get safe mode", err)
	}
	return enabled, nil
}

func (m *SafeModes) SetSpoiler(ctx context.Context, id identity.Identity, enabled bool) error {
	err := m.store.Do(ctx, func(ctx context.Context, r *store.Repo) error {
		return r.SetSafeMode(ctx, id.ID, enabled)
	})
	return common.NewStorageError("set safe mode", err)
}
