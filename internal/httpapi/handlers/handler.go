package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-chat/internal/ai"
	"github.com/suPer8Hu/ai-chat/internal/catalog"
	"github.com/suPer8Hu/ai-chat/internal/chatapi"
	"github.com/suPer8Hu/ai-chat/internal/config"
)

type Handler struct {
	Cfg       config.Config
	Providers *ai.Registry
	Catalog   *catalog.Service
	Logger    *slog.Logger
}

func NewHandler(cfg config.Config, providers *ai.Registry, cat *catalog.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cat == nil {
		cat = catalog.NewService(nil, logger)
	}
	return &Handler{Cfg: cfg, Providers: providers, Catalog: cat, Logger: logger}
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) provider(ctx context.Context) (ai.Provider, error) {
	return h.Providers.Get(ctx, h.Cfg.AIProvider)
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, chatapi.ErrorResponse{Error: msg})
}
