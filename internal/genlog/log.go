// Package genlog records which prompt produced which image.
//
// Recording is best effort: a failed insert is logged and the request carries on,
// because the image has already been generated by the time the log is written.
package genlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/suPer8Hu/picgen-bot/internal/common"
	"github.com/suPer8Hu/picgen-bot/internal/identity"
	"github.com/suPer8Hu/picgen-bot/internal/store"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// GenerationEvent is published after an entry has been stored.
type GenerationEvent struct {
	EntryID      uint64          `json:"entry_id"`
	IdentityID   uint64          `json:"identity_id"`
	ChatID       int64           `json:"chat_id"`
	Handle       string          `json:"handle,omitempty"`
	Prompt       string          `json:"prompt"`
	ArtifactName string          `json:"artifact_name"`
	Kind         store.ImageKind `json:"kind"`
	CreatedAt    time.Time       `json:"created_at"`
}

type EventPublisher interface {
	PublishGeneration(ctx context.Context, ev GenerationEvent) error
}

type Log struct {
	store     *store.Store
	publisher EventPublisher
	logger    *zap.Logger
}

// New returns a log over s. publisher may be nil.
func New(s *store.Store, publisher EventPublisher, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{store: s, publisher: publisher, logger: logger}
}

// Record appends one entry. It never fails from the caller's point of view.
func (l *Log) Record(ctx context.Context, id identity.Identity, prompt, artifactName string, kind store.ImageKind, params map[string]any) {
	entry := &store.GenerationLogEntry{
		UserChatID:   id.ID,
		Prompt:       prompt,
		ArtifactName: artifactName,
		Kind:         kind,
	}
	if len(params) > 0 {
		b, err := json.Marshal(params)
		if err != nil {
			l.logger.Warn("genlog: encode parameters", zap.Error(err))
		} else {
			entry.Parameters = datatypes.JSON(b)
		}
	}

	err := l.store.Do(ctx, func(ctx context.Context, r *store.Repo) error {
		return r.InsertGeneration(ctx, entry)
	})
	if err != nil {
		l.logger.Error("genlog: record failed",
			zap.Uint64("identity_id", id.ID),
			zap.String("artifact", artifactName),
			zap.Error(common.NewStorageError("record generation", err)),
		)
		return
	}

	if l.publisher == nil {
		return
	}
	ev := GenerationEvent{
		EntryID:      entry.ID,
		IdentityID:   id.ID,
		ChatID:       id.ExternalChatID,
		Handle:       id.Handle,
		Prompt:       prompt,
		ArtifactName: artifactName,
		Kind:         kind,
		CreatedAt:    entry.CreatedAt,
	}
	if err := l.publisher.PublishGeneration(ctx, ev); err != nil {
		l.logger.Warn("genlog: publish event failed",
			zap.Uint64("entry_id", entry.ID),
			zap.Error(err),
		)
	}
}

// List returns the newest entries of an identity first.
func (l *Log) List(ctx context.Context, identityID uint64, limit int) ([]store.GenerationLogEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var entries []store.GenerationLogEntry
	err := l.store.Do(ctx, func(ctx context.Context, r *store.Repo) error {
		var err error
		entries, err = r.ListGenerations(ctx, identityID, limit)
		return err
	})
	if err != nil {
		return nil, common.NewStorageError("list generations", err)
	}
	return entries, nil
}
