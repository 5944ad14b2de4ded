// Package apiclient calls the chat proxy over HTTP on behalf of the chat
// controller.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/suPer8Hu/ai-chat/internal/catalog"
	"github.com/suPer8Hu/ai-chat/internal/chatapi"
)

// APIError is a non-2xx answer from the proxy. Message is the proxy's error
// field, or "HTTP <status>" when the body carried none.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New returns a client without its own timeout; callers bound requests with
// their context.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{},
	}
}

func (c *Client) Complete(ctx context.Context, in chatapi.ChatRequest) (*chatapi.ChatResponse, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/chat", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out chatapi.ChatResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

var fallbackModelIDs = []string{
	"mistral-large-latest",
	"mistral-medium-latest",
	"mistral-small-latest",
	"codestral-latest",
}

// FallbackModels is the catalog offered when the proxy cannot be reached.
func FallbackModels() []chatapi.Model {
	out := make([]chatapi.Model, 0, len(fallbackModelIDs))
	for _, id := range fallbackModelIDs {
		out = append(out, chatapi.Model{
			ID:          id,
			Object:      "model",
			OwnedBy:     "mistralai",
			Description: catalog.Describe(id),
			Category:    catalog.Categorize(id),
		})
	}
	return out
}

// Models fetches the catalog. On any failure it returns FallbackModels along
// with the error so callers can keep going.
func (c *Client) Models(ctx context.Context) ([]chatapi.Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/models", nil)
	if err != nil {
		return FallbackModels(), err
	}
	var out chatapi.ModelsResponse
	if err := c.do(req, &out); err != nil {
		return FallbackModels(), err
	}
	if len(out.Models) == 0 {
		return FallbackModels(), errors.New("no models available")
	}
	return out.Models, nil
}

func (c *Client) do(req *http.Request, out any) error {
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorFromBody(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorFromBody(status int, body []byte) *APIError {
	var e chatapi.ErrorResponse
	if json.Unmarshal(body, &e) == nil && strings.TrimSpace(e.Error) != "" {
		return &APIError{Status: status, Message: e.Error}
	}
	return &APIError{Status: status, Message: fmt.Sprintf("HTTP %d", status)}
}
