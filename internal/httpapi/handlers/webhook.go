package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/picgen-bot/internal/common"
	"github.com/suPer8Hu/picgen-bot/internal/telegram"
	"go.uber.org/zap"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// TelegramWebhook accepts one update per request. Anything that parses is
// acknowledged with 200 so Telegram does not redeliver it.
func (h *Handler) TelegramWebhook(c *gin.Context) {
	if h.WebhookSecret != "" {
		got := c.GetHeader(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.WebhookSecret)) != 1 {
			common.Fail(c, http.StatusUnauthorized, 40104, "invalid webhook secret")
			return
		}
	}

	var u telegram.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	dispatched := h.Updates.HandleUpdate(c.Request.Context(), u)
	h.Logger.Debug("webhook update", zap.Int64("update_id", u.UpdateID), zap.Bool("dispatched", dispatched))
	common.OK(c, gin.H{"dispatched": dispatched})
}
