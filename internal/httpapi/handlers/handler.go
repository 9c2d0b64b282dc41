package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/picgen-bot/internal/alias"
	"github.com/suPer8Hu/picgen-bot/internal/common"
	"github.com/suPer8Hu/picgen-bot/internal/identity"
	"github.com/suPer8Hu/picgen-bot/internal/store"
	"github.com/suPer8Hu/picgen-bot/internal/telegram"
	"go.uber.org/zap"
)

type IdentityLookup interface {
	Lookup(ctx context.Context, userChatID uint64) (identity.Identity, error)
}

type GenerationLister interface {
	List(ctx context.Context, identityID uint64, limit int) ([]store.GenerationLogEntry, error)
}

type AliasLister interface {
	DumpAll(ctx context.Context, id identity.Identity) ([]alias.Alias, error)
}

type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u telegram.Update) bool
}

type Handler struct {
	Identities  IdentityLookup
	Generations GenerationLister
	Aliases     AliasLister
	// Updates is nil unless the bot runs in webhook mode.
	Updates       UpdateHandler
	WebhookSecret string
	Logger        *zap.Logger
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"message": "pong"})
}
