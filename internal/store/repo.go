package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repo is the raw data access layer. It is not safe for concurrent use on a
// single SQLite connection; go through Store instead.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Transaction(ctx context.Context, fn func(tx *Repo) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repo{db: tx})
	})
}

// Users / chats / userchats

// FindOrCreateUser matches on handle when present, otherwise on display name
// among users that have no handle.
func (r *Repo) FindOrCreateUser(ctx context.Context, handle *string, displayName string) (*User, error) {
	var u User
	q := r.db.WithContext(ctx)
	if handle != nil {
		q = q.Where("handle = ?", *handle).
			Attrs(User{Handle: handle, DisplayName: displayName})
	} else {
		q = q.Where("handle IS NULL AND display_name = ?", displayName).
			Attrs(User{DisplayName: displayName})
	}
	if err := q.FirstOrCreate(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) GetUser(ctx context.Context, id uint64) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) FindOrCreateChat(ctx context.Context, externalChatID int64, kind ChatKind) (*Chat, error) {
	var c Chat
	if err := r.db.WithContext(ctx).
		Where("external_chat_id = ?", externalChatID).
		Attrs(Chat{ExternalChatID: externalChatID, Kind: kind}).
		FirstOrCreate(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) GetChat(ctx context.Context, id uint64) (*Chat, error) {
	var c Chat
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// FindOrCreateUserChat also makes sure the safe mode row exists.
func (r *Repo) FindOrCreateUserChat(ctx context.Context, userID, chatID uint64) (*UserChat, error) {
	var uc UserChat
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND chat_id = ?", userID, chatID).
		Attrs(UserChat{UserID: userID, ChatID: chatID}).
		FirstOrCreate(&uc).Error; err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&SafeModeSetting{UserChatID: uc.ID}).Error; err != nil {
		return nil, err
	}
	return &uc, nil
}

func (r *Repo) GetUserChat(ctx context.Context, id uint64) (*UserChat, error) {
	var uc UserChat
	if err := r.db.WithContext(ctx).First(&uc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &uc, nil
}

// Aliases

func (r *Repo) UpsertAlias(ctx context.Context, userChatID uint64, token, expansion string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_chat_id"}, {Name: "token"}},
			DoUpdates: clause.AssignmentColumns([]string{"expansion", "updated_at"}),
		}).
		Create(&Alias{UserChatID: userChatID, Token: token, Expansion: expansion}).Error
}

// DeleteAlias deletes zero or one row; a missing token is not an error.
func (r *Repo) DeleteAlias(ctx context.Context, userChatID uint64, token string) error {
	return r.db.WithContext(ctx).
		Where("user_chat_id = ? AND token = ?", userChatID, token).
		Delete(&Alias{}).Error
}

// GetAlias returns (nil, nil) when the token is unknown.
func (r *Repo) GetAlias(ctx context.Context, userChatID uint64, token string) (*Alias, error) {
	var a Alias
	err := r.db.WithContext(ctx).
		Where("user_chat_id = ? AND token = ?", userChatID, token).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAliases returns aliases in token order.
func (r *Repo) ListAliases(ctx context.Context, userChatID uint64) ([]Alias, error) {
	aliases := make([]Alias, 0)
	if err := r.db.WithContext(ctx).
		Where("user_chat_id = ?", userChatID).
		Order("token ASC").
		Find(&aliases).Error; err != nil {
		return nil, err
	}
	return aliases, nil
}

// Safe mode

func (r *Repo) GetSafeMode(ctx context.Context, userChatID uint64) (*SafeModeSetting, error) {
	var s SafeModeSetting
	if err := r.db.WithContext(ctx).First(&s, "user_chat_id = ?", userChatID).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) SetSafeMode(ctx context.Context, userChatID uint64, enabled bool) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_chat_id"}},
			DoUpdates: clause.Assignments(map[string]any{"spoiler_enabled": enabled}),
		}).
		Create(&SafeModeSetting{UserChatID: userChatID, SpoilerEnabled: enabled}).Error
}

// Generation log

func (r *Repo) InsertGeneration(ctx context.Context, e *GenerationLogEntry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

// ListGenerations returns entries in DESC id order (newest -> oldest).
func (r *Repo) ListGenerations(ctx context.Context, userChatID uint64, limit int) ([]GenerationLogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	entries := make([]GenerationLogEntry, 0, limit)
	if err := r.db.WithContext(ctx).
		Where("user_chat_id = ?", userChatID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *Repo) CountGenerations(ctx context.Context, userChatID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&GenerationLogEntry{}).
		Where("user_chat_id = ?", userChatID).
		Count(&n).Error
	return n, err
}
