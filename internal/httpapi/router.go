package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/picgen-bot/internal/common"
	"github.com/suPer8Hu/picgen-bot/internal/httpapi/handlers"
	"github.com/suPer8Hu/picgen-bot/internal/httpapi/middleware"
	"go.uber.org/zap"
)

func NewRouter(h *handlers.Handler, jwtSecret string) *gin.Engine {
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery(h.Logger))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(h.Logger))

	r.GET("/ping", h.Ping)

	// Telegram pushes updates here in webhook mode
	if h.Updates != nil {
		r.POST("/telegram/webhook", h.TelegramWebhook)
	}

	// admin (JWT required)
	admin := r.Group("/admin")
	admin.Use(middleware.AuthRequired(jwtSecret))
	admin.GET("/identities/:id/generations", h.ListGenerations)
	admin.GET("/identities/:id/aliases", h.ListAliases)
	return r
}
