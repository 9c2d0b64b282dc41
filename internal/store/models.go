package store

import (
	"time"

	"gorm.io/datatypes"
)

type ChatKind string

const (
	ChatPrivate    ChatKind = "private"
	ChatGroup      ChatKind = "group"
	ChatSupergroup ChatKind = "supergroup"
	ChatChannel    ChatKind = "channel"
)

type ImageKind string

const (
	ImageNew       ImageKind = "new"
	ImageVariation ImageKind = "variation"
)

// User is keyed by Handle when the chat platform provides one. Handle-less users are
// matched by DisplayName, which is not unique.
type User struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Handle      *string   `gorm:"type:varchar(64);uniqueIndex" json:"handle"`
	DisplayName string    `gorm:"type:varchar(255);index;not null" json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

func (User) TableName() string { return "users" }

type Chat struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ExternalChatID int64     `gorm:"uniqueIndex;not null" json:"external_chat_id"`
	Kind           ChatKind  `gorm:"type:varchar(16);not null" json:"kind"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Chat) TableName() string { return "chats" }

// UserChat pairs one user with one chat. Aliases and the safe mode setting hang off it.
type UserChat struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint64    `gorm:"not null;uniqueIndex:uniq_userchat_user_chat,priority:1" json:"user_id"`
	ChatID    uint64    `gorm:"not null;uniqueIndex:uniq_userchat_user_chat,priority:2" json:"chat_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (UserChat) TableName() string { return "userchats" }

type Alias struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	UserChatID uint64    `gorm:"not null;uniqueIndex:uniq_alias_userchat_token,priority:1" json:"-"`
	Token      string    `gorm:"type:varchar(64);not null;uniqueIndex:uniq_alias_userchat_token,priority:2" json:"token"`
	Expansion  string    `gorm:"type:text;not null" json:"expansion"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Alias) TableName() string { return "aliases" }

type SafeModeSetting struct {
	UserChatID     uint64    `gorm:"primaryKey;autoIncrement:false" json:"userchat_id"`
	SpoilerEnabled bool      `gorm:"not null;default:false" json:"spoiler_enabled"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (SafeModeSetting) TableName() string { return "safe_mode_settings" }

// GenerationLogEntry is append-only.
type GenerationLogEntry struct {
	ID           uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	UserChatID   uint64         `gorm:"not null;index:idx_genlog_userchat_id,priority:1" json:"userchat_id"`
	Prompt       string         `gorm:"type:text;not null" json:"prompt"`
	ArtifactName string         `gorm:"type:varchar(128);not null" json:"artifact_name"`
	Kind         ImageKind      `gorm:"type:varchar(16);index;not null" json:"kind"`
	Parameters   datatypes.JSON `json:"parameters,omitempty"`
	CreatedAt    time.Time      `gorm:"index:idx_genlog_userchat_id,priority:2" json:"created_at"`
}

func (GenerationLogEntry) TableName() string { return "generation_log" }

// Models lists every table in dependency order.
func Models() []any {
	return []any{&User{}, &Chat{}, &UserChat{}, &Alias{}, &SafeModeSetting{}, &GenerationLogEntry{}}
}
