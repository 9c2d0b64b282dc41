package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/picgen-bot/internal/common"
	"github.com/suPer8Hu/picgen-bot/internal/identity"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// identityFromPath loads :id or writes the error response itself.
func (h *Handler) identityFromPath(c *gin.Context) (identity.Identity, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid identity id")
		return identity.Identity{}, false
	}

	ident, err := h.Identities.Lookup(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "identity not found")
			return identity.Identity{}, false
		}
		h.Logger.Error("lookup identity", zap.Uint64("identity_id", id), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return identity.Identity{}, false
	}
	return ident, true
}

func identityView(id identity.Identity) gin.H {
	return gin.H{
		"id":           id.ID,
		"handle":       id.Handle,
		"display_name": id.DisplayName,
		"chat_id":      id.ExternalChatID,
		"chat_kind":    id.ChatKind,
		"kind":         id.Kind.String(),
	}
}

func (h *Handler) ListGenerations(c *gin.Context) {
	ident, ok := h.identityFromPath(c)
	if !ok {
		return
	}

	limit := 20
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 100 {
			common.Fail(c, http.StatusBadRequest, 10005, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	entries, err := h.Generations.List(c.Request.Context(), ident.ID, limit)
	if err != nil {
		h.Logger.Error("list generations", zap.Uint64("identity_id", ident.ID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, gin.H{
		"identity":    identityView(ident),
		"generations": entries,
	})
}

func (h *Handler) ListAliases(c *gin.Context) {
	ident, ok := h.identityFromPath(c)
	if !ok {
		return
	}

	aliases, err := h.Aliases.DumpAll(c.Request.Context(), ident)
	if err != nil {
		h.Logger.Error("list aliases", zap.Uint64("identity_id", ident.ID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, gin.H{
		"identity": identityView(ident),
		"aliases":  aliases,
	})
}
