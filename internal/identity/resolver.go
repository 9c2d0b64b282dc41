// Package identity maps a chat user and chat onto one stable internal identity.
//
// Users are keyed by handle when the platform provides one. Without a handle the
// display name is used instead; display names are not unique, so two handle-less
// users with the same name in the same store share one user row. Such identities
// are DisplayNameOnly and may not teach aliases.
package identity

import (
	"context"
	"strings"

	"github.com/suPer8Hu/picgen-bot/internal/common"
	"github.com/suPer8Hu/picgen-bot/internal/store"
)

type Kind int

const (
	StableHandle Kind = iota + 1
	DisplayNameOnly
)

func (k Kind) String() string {
	switch k {
	case StableHandle:
		return "stable_handle"
	case DisplayNameOnly:
		return "display_name_only"
	default:
		return "unknown"
	}
}

type RawUser struct {
	Handle      string
	DisplayName string
}

type RawChat struct {
	ExternalID int64
	Kind       store.ChatKind
}

// Identity is the resolved user/chat pairing (a userchat row plus what callers need to know about it).
type Identity struct {
	ID             uint64
	UserID         uint64
	ChatID         uint64
	ExternalChatID int64
	ChatKind       store.ChatKind
	Handle         string
	DisplayName    string
	Kind           Kind
}

func (i Identity) HasStableHandle() bool { return i.Kind == StableHandle }

// Label is a human readable name for logs.
func (i Identity) Label() string {
	if i.Handle != "" {
		return "@" + i.Handle
	}
	return i.DisplayName
}

type Resolver struct {
	store *store.Store
}

func NewResolver(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve gets or creates the user, chat, userchat and safe mode rows for the pair.
// It is idempotent: repeated calls return the same Identity and create nothing new.
func (r *Resolver) Resolve(ctx context.Context, u RawUser, c RawChat) (Identity, error) {
	handle := strings.TrimPrefix(strings.TrimSpace(u.Handle), "@")
	displayName := strings.TrimSpace(u.DisplayName)
	if handle == "" && displayName == "" {
		return Identity{}, common.Validationf("cannot identify a user without a handle or a name")
	}
	if displayName == "" {
		displayName = handle
	}
	kind := c.Kind
	if kind == "" {
		kind = store.ChatPrivate
	}

	id := Identity{
		ExternalChatID: c.ExternalID,
		ChatKind:       kind,
		Handle:         handle,
		DisplayName:    displayName,
		Kind:           DisplayNameOnly,
	}
	var handlePtr *string
	if handle != "" {
		handlePtr = &handle
		id.Kind = StableHandle
	}

	err := r.store.Tx(ctx, func(ctx context.Context, repo *store.Repo) error {
		user, err := repo.FindOrCreateUser(ctx, handlePtr, displayName)
		if err != nil {
			return err
		}
		chat, err := repo.FindOrCreateChat(ctx, c.ExternalID, kind)
		if err != nil {
			return err
		}
		uc, err := repo.FindOrCreateUserChat(ctx, user.ID, chat.ID)
		if err != nil {
			return err
		}
		id.ID = uc.ID
		id.UserID = user.ID
		id.ChatID = chat.ID
		id.ChatKind = chat.Kind
		id.DisplayName = user.DisplayName
		return nil
	})
	if err != nil {
		return Identity{}, common.NewStorageError("resolve identity", err)
	}
	return id, nil
}

// Lookup loads an existing identity by its userchat id without creating anything.
func (r *Resolver) Lookup(ctx context.Context, userChatID uint64) (Identity, error) {
	var id Identity
	err := r.store.Do(ctx, func(ctx context.Context, repo *store.Repo) error {
		uc, err := repo.GetUserChat(ctx, userChatID)
		if err != nil {
			return err
		}
		user, err := repo.GetUser(ctx, uc.UserID)
		if err != nil {
			return err
		}
		chat, err := repo.GetChat(ctx, uc.ChatID)
		if err != nil {
			return err
		}
		id = Identity{
			ID:             uc.ID,
			UserID:         user.ID,
			ChatID:         chat.ID,
			ExternalChatID: chat.ExternalChatID,
			ChatKind:       chat.Kind,
			DisplayName:    user.DisplayName,
			Kind:           DisplayNameOnly,
		}
		if user.Handle != nil {
			id.Handle = *user.Handle
			id.Kind = StableHandle
		}
		return nil
	})
	if err != nil {
		return Identity{}, common.NewStorageError("lookup identity", err)
	}
	return id, nil
}
