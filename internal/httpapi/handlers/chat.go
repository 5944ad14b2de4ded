package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-chat/internal/ai"
	"github.com/suPer8Hu/ai-chat/internal/chatapi"
)

const (
	msgKeyNotConfigured = "Mistral API key not configured"
	msgMessagesRequired = "Messages array is required"
	msgInternal         = "Internal server error"
	noResponse          = "No response generated"
)

// chatReq keeps messages raw so a wrongly typed field is a validation error
// rather than a parse failure.
type chatReq struct {
	Messages    json.RawMessage `json:"messages"`
	Model       string          `json:"model"`
	Temperature *float64        `json:"temperature"`
	MaxTokens   *int            `json:"max_tokens"`
}

// Chat proxies one non-streaming completion to the configured provider.
func (h *Handler) Chat(c *gin.Context) {
	ctx := c.Request.Context()

	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Logger.Warn("chat request body unreadable", "error", err)
		fail(c, http.StatusInternalServerError, msgInternal)
		return
	}

	prov, err := h.provider(ctx)
	if err != nil {
		if errors.Is(err, ai.ErrMissingCredential) {
			fail(c, http.StatusInternalServerError, msgKeyNotConfigured)
			return
		}
		h.Logger.Error("chat provider unavailable", "provider", h.Cfg.AIProvider, "error", err)
		fail(c, http.StatusInternalServerError, msgInternal)
		return
	}

	var messages []chatapi.Message
	if len(req.Messages) == 0 || json.Unmarshal(req.Messages, &messages) != nil || len(messages) == 0 {
		fail(c, http.StatusBadRequest, msgMessagesRequired)
		return
	}

	in := ai.ChatRequest{
		Model:       strings.TrimSpace(req.Model),
		Messages:    make([]ai.Message, 0, len(messages)),
		Temperature: h.Cfg.Temperature,
		MaxTokens:   h.Cfg.MaxTokens,
	}
	if in.Model == "" {
		in.Model = h.Cfg.DefaultModel
	}
	if req.Temperature != nil {
		in.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		in.MaxTokens = *req.MaxTokens
	}
	for _, m := range messages {
		in.Messages = append(in.Messages, ai.Message{Role: m.Role, Content: m.Content})
	}

	res, err := prov.Chat(ctx, in)
	if err != nil {
		var se *ai.StatusError
		switch {
		case errors.Is(err, ai.ErrMissingCredential):
			fail(c, http.StatusInternalServerError, msgKeyNotConfigured)
		case errors.As(err, &se):
			h.Logger.Warn("upstream chat failed", "status", se.Status, "body", se.Body)
			fail(c, se.Status, fmt.Sprintf("Mistral API error: %d", se.Status))
		default:
			h.Logger.Error("chat proxy failed", "error", err)
			fail(c, http.StatusInternalServerError, msgInternal)
		}
		return
	}

	out := chatapi.ChatResponse{Message: res.Content}
	if out.Message == "" {
		out.Message = noResponse
	}
	if res.Usage != nil {
		out.Usage = &chatapi.Usage{
			PromptTokens:     res.Usage.PromptTokens,
			CompletionTokens: res.Usage.CompletionTokens,
			TotalTokens:      res.Usage.TotalTokens,
		}
	}
	c.JSON(http.StatusOK, out)
}
