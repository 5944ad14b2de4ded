package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-chat/internal/ai"
	"github.com/suPer8Hu/ai-chat/internal/catalog"
	"github.com/suPer8Hu/ai-chat/internal/chatapi"
	"github.com/suPer8Hu/ai-chat/internal/config"
	"github.com/suPer8Hu/ai-chat/internal/httpapi/handlers"
	"github.com/suPer8Hu/ai-chat/internal/httpapi/middleware"
)

func NewRouter(cfg config.Config, providers *ai.Registry, cat *catalog.Service, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, chatapi.ErrorResponse{Error: "route not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, chatapi.ErrorResponse{Error: "method not allowed"})
	})

	h := handlers.NewHandler(cfg, providers, cat, logger)

	r.GET("/ping", h.Ping)

	api := r.Group("/api")
	api.POST("/chat", h.Chat)
	api.GET("/models", h.Models)
	return r
}
