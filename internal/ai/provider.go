package ai

import (
	"context"
	"errors"
	"fmt"
)

// ErrMissingCredential is returned when a provider that needs an API key has none.
var ErrMissingCredential = errors.New("ai: upstream credential not configured")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

type ChatResult struct {
	// Content is the first choice's text; empty if the provider returned none.
	Content string
	Usage   *Usage
}

// RawModel is one entry of a provider's model list.
type RawModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResult, error)
	ListModels(ctx context.Context) ([]RawModel, error)
}

// StatusError reports a non-2xx response from the upstream provider.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Body)
}
