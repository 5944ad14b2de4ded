package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-chat/internal/ai"
	"github.com/suPer8Hu/ai-chat/internal/chatapi"
)

// Models returns the processed catalog of the configured provider.
func (h *Handler) Models(c *gin.Context) {
	ctx := c.Request.Context()

	prov, err := h.provider(ctx)
	if err != nil {
		h.modelsFailed(c, err)
		return
	}
	list, err := h.Catalog.List(ctx, h.Cfg.AIProvider, prov)
	if err != nil {
		h.modelsFailed(c, err)
		return
	}

	models := make([]chatapi.Model, 0, len(list))
	for _, m := range list {
		models = append(models, chatapi.Model(m))
	}
	c.JSON(http.StatusOK, chatapi.ModelsResponse{Models: models})
}

func (h *Handler) modelsFailed(c *gin.Context, err error) {
	var se *ai.StatusError
	switch {
	case errors.Is(err, ai.ErrMissingCredential):
		fail(c, http.StatusInternalServerError, msgKeyNotConfigured)
	case errors.As(err, &se):
		h.Logger.Warn("upstream model list failed", "status", se.Status, "body", se.Body)
		fail(c, se.Status, fmt.Sprintf("Failed to fetch models: %d", se.Status))
	default:
		h.Logger.Error("model list failed", "error", err)
		fail(c, http.StatusInternalServerError, msgInternal)
	}
}
