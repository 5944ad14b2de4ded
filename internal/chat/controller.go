package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/suPer8Hu/ai-chat/internal/chatapi"
)

// Completer is the remote chat-completion collaborator.
type Completer interface {
	Complete(ctx context.Context, req chatapi.ChatRequest) (*chatapi.ChatResponse, error)
}

type ExchangeEvent struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Model     string         `json:"model"`
	OK        bool           `json:"ok"`
	Error     string         `json:"error,omitempty"`
	Usage     *chatapi.Usage `json:"usage,omitempty"`
	Latency   time.Duration  `json:"latency_ns"`
	SettledAt time.Time      `json:"settled_at"`
}

// ExchangeObserver is told about every settled exchange.
type ExchangeObserver interface {
	ExchangeSettled(ctx context.Context, ev ExchangeEvent)
}

const (
	errorReplyPrefix = "Sorry, I encountered an error: "
	unknownError     = "An unknown error occurred"
)

type Controller struct {
	store        *Store
	api          Completer
	defaultModel string
	observer     ExchangeObserver
	logger       *slog.Logger
}

type ControllerOption func(*Controller)

func WithObserver(o ExchangeObserver) ControllerOption {
	return func(c *Controller) { c.observer = o }
}

func WithControllerLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

func NewController(store *Store, api Completer, defaultModel string, opts ...ControllerOption) *Controller {
	if defaultModel == "" {
		defaultModel = "mistral-large-latest"
	}
	c := &Controller{
		store:        store,
		api:          api,
		defaultModel: defaultModel,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Controller) Store() *Store { return c.store }

func (c *Controller) DefaultModel() string { return c.defaultModel }

// SendMessage runs one exchange against the current session, creating a
// session first when none is current. Blank text is ignored.
//
// The user message is appended before the request is issued and exactly one
// assistant message is appended once it settles: the reply on success, or a
// message quoting the failure. On failure the returned error is the
// completer's and the failure text is also kept as the store's error. A
// session that already has an exchange in flight is left untouched and
// ErrExchangeInFlight is returned.
func (c *Controller) SendMessage(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, nil
	}

	p, err := c.store.beginExchange(ctx, text, c.defaultModel)
	if err != nil {
		return Message{}, err
	}
	// Guarantees the busy mark is dropped even if the completer panics.
	defer c.store.release(p.sessionID)

	req := chatapi.ChatRequest{
		Messages: make([]chatapi.Message, 0, len(p.history)),
		Model:    p.model,
	}
	for _, m := range p.history {
		req.Messages = append(req.Messages, chatapi.Message{Role: string(m.Role), Content: m.Content})
	}

	start := time.Now()
	resp, callErr := c.api.Complete(ctx, req)
	latency := time.Since(start)
	if callErr == nil && resp == nil {
		callErr = errors.New(unknownError)
	}

	ev := ExchangeEvent{SessionID: p.sessionID, Model: p.model, Latency: latency}

	var reply Message
	if callErr != nil {
		errText := ErrorText(callErr)
		c.logger.Warn("chat exchange failed", "session_id", p.sessionID, "model", p.model, "error", errText)
		reply, _ = c.store.settleExchange(ctx, p.sessionID, errorReplyPrefix+errText, errText)
		ev.Error = errText
	} else {
		reply, _ = c.store.settleExchange(ctx, p.sessionID, resp.Message, "")
		ev.OK = true
		ev.Usage = resp.Usage
		c.logger.Info("chat exchange settled", "session_id", p.sessionID, "model", p.model, "latency", latency)
	}

	if c.observer != nil {
		ev.SettledAt = time.Now()
		ev.ID = NewID(ev.SettledAt)
		c.observer.ExchangeSettled(ctx, ev)
	}
	return reply, callErr
}

// ErrorText renders err for people, falling back to a generic message.
func ErrorText(err error) string {
	if err == nil {
		return ""
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return unknownError
}
