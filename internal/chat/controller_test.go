package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/suPer8Hu/ai-chat/internal/chatapi"
	"github.com/suPer8Hu/ai-chat/internal/store/memory"
)

type recordingCompleter struct {
	mu    sync.Mutex
	calls []chatapi.ChatRequest

	reply string
	err   error

	// When set, Complete signals started and waits on unblock before returning.
	started chan struct{}
	unblock chan struct{}
}

func (c *recordingCompleter) Complete(ctx context.Context, req chatapi.ChatRequest) (*chatapi.ChatResponse, error) {
	c.mu.Lock()
	// copy to avoid mutations
	req.Messages = append([]chatapi.Message(nil), req.Messages...)
	c.calls = append(c.calls, req)
	c.mu.Unlock()

	if c.started != nil {
		c.started <- struct{}{}
		<-c.unblock
	}
	if c.err != nil {
		return nil, c.err
	}
	return &chatapi.ChatResponse{
		Message: c.reply,
		Usage:   &chatapi.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}, nil
}

func (c *recordingCompleter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type recordingObserver struct {
	mu     sync.Mutex
	events []ExchangeEvent
}

func (o *recordingObserver) ExchangeSettled(_ context.Context, ev ExchangeEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

// stepClock advances one second per reading so ordering is deterministic.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestController(t *testing.T, api Completer, opts ...ControllerOption) *Controller {
	t.Helper()
	store := NewStore(memory.New(), WithClock(newStepClock().Now))
	return NewController(store, api, "mistral-large-latest", opts...)
}

func TestSendMessage_WritesUserAndAssistant(t *testing.T) {
	api := &recordingCompleter{reply: "Hi there!"}
	c := newTestController(t, api)
	ctx := context.Background()

	id := c.Store().CreateSession(ctx, "mistral-small-latest")

	reply, err := c.SendMessage(ctx, "  hello  ")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if reply.Role != RoleAssistant || reply.Content != "Hi there!" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	sess, ok := c.Store().Session(id)
	if !ok {
		t.Fatalf("session %s disappeared", id)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sess.Messages))
	}
	if sess.Messages[0].Role != RoleUser || sess.Messages[0].Content != "hello" {
		t.Fatalf("unexpected user message: %+v", sess.Messages[0])
	}
	if sess.Messages[1].ID != reply.ID {
		t.Fatalf("returned reply is not the stored one")
	}
	if sess.Title != "hello" {
		t.Fatalf("expected title from first message, got %q", sess.Title)
	}
	if c.Store().Loading() {
		t.Fatalf("loading should be false after settle")
	}
	if e := c.Store().Err(); e != "" {
		t.Fatalf("unexpected error state %q", e)
	}

	if api.callCount() != 1 {
		t.Fatalf("expected 1 call, got %d", api.callCount())
	}
	if got := api.calls[0].Model; got != "mistral-small-latest" {
		t.Fatalf("request used model %q", got)
	}
}

func TestSendMessage_FailureAppendsErrorReply(t *testing.T) {
	api := &recordingCompleter{err: errors.New("HTTP 500")}
	c := newTestController(t, api)
	ctx := context.Background()

	id := c.Store().CreateSession(ctx, "mistral-small-latest")

	reply, err := c.SendMessage(ctx, "hello")
	if err == nil {
		t.Fatalf("expected the completer error to be returned")
	}

	sess, _ := c.Store().Session(id)
	if len(sess.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sess.Messages))
	}
	if sess.Messages[1].Role != RoleAssistant {
		t.Fatalf("second message should be the assistant's, got %s", sess.Messages[1].Role)
	}
	if want := "Sorry, I encountered an error: HTTP 500"; reply.Content != want || sess.Messages[1].Content != want {
		t.Fatalf("unexpected error reply %q", sess.Messages[1].Content)
	}
	if got := c.Store().Err(); got != "HTTP 500" {
		t.Fatalf("error state = %q", got)
	}
	if c.Store().Loading() {
		t.Fatalf("loading should be false after failure")
	}
}

func TestSendMessage_BlankTextIsIgnored(t *testing.T) {
	api := &recordingCompleter{reply: "unused"}
	c := newTestController(t, api)

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := c.SendMessage(context.Background(), text); err != nil {
			t.Fatalf("send %q: %v", text, err)
		}
	}
	if api.callCount() != 0 {
		t.Fatalf("blank text must not reach the api")
	}
	if n := len(c.Store().Snapshot().Sessions); n != 0 {
		t.Fatalf("blank text must not create a session, have %d", n)
	}
}

func TestSendMessage_CreatesSessionWhenNoneCurrent(t *testing.T) {
	api := &recordingCompleter{reply: "ok"}
	c := newTestController(t, api)

	if _, err := c.SendMessage(context.Background(), "first question"); err != nil {
		t.Fatalf("send: %v", err)
	}

	cur, ok := c.Store().Current()
	if !ok {
		t.Fatalf("expected a current session")
	}
	if cur.Model != "mistral-large-latest" {
		t.Fatalf("implicit session should use the default model, got %q", cur.Model)
	}
	if len(cur.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(cur.Messages))
	}
}

func TestSendMessage_DanglingCurrentCreatesSession(t *testing.T) {
	api := &recordingCompleter{reply: "ok"}
	c := newTestController(t, api)
	ctx := context.Background()

	existing := c.Store().CreateSession(ctx, "m")
	c.Store().SelectSession(ctx, "no-such-session")

	if _, err := c.SendMessage(ctx, "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}

	snap := c.Store().Snapshot()
	if len(snap.Sessions) != 2 {
		t.Fatalf("expected a fresh session next to the old one, have %d", len(snap.Sessions))
	}
	if snap.CurrentID == existing {
		t.Fatalf("message should not land in the unselected session")
	}
	if old, _ := c.Store().Session(existing); len(old.Messages) != 0 {
		t.Fatalf("old session got messages: %+v", old.Messages)
	}
}

func TestSendMessage_SendsFullHistory(t *testing.T) {
	api := &recordingCompleter{reply: "ok"}
	c := newTestController(t, api)
	ctx := context.Background()

	c.Store().CreateSession(ctx, "mistral-medium-latest")
	for _, text := range []string{"one", "two", "three"} {
		if _, err := c.SendMessage(ctx, text); err != nil {
			t.Fatalf("send %q: %v", text, err)
		}
	}

	last := api.calls[len(api.calls)-1]
	if len(last.Messages) != 5 {
		t.Fatalf("expected 5 history messages, got %d", len(last.Messages))
	}
	wantRoles := []string{"user", "assistant", "user", "assistant", "user"}
	for i, m := range last.Messages {
		if m.Role != wantRoles[i] {
			t.Fatalf("message %d role=%s want %s", i, m.Role, wantRoles[i])
		}
	}
	if last.Messages[4].Content != "three" {
		t.Fatalf("last message should be the new one, got %q", last.Messages[4].Content)
	}
}

func TestSendMessage_RejectsConcurrentExchange(t *testing.T) {
	api := &recordingCompleter{
		reply:   "slow",
		started: make(chan struct{}, 1),
		unblock: make(chan struct{}),
	}
	c := newTestController(t, api)
	ctx := context.Background()
	id := c.Store().CreateSession(ctx, "m")

	done := make(chan error, 1)
	go func() {
		_, err := c.SendMessage(ctx, "first")
		done <- err
	}()

	select {
	case <-api.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("first exchange never reached the api")
	}
	if !c.Store().Loading() {
		t.Fatalf("loading should be true while in flight")
	}

	if _, err := c.SendMessage(ctx, "second"); !errors.Is(err, ErrExchangeInFlight) {
		t.Fatalf("expected ErrExchangeInFlight, got %v", err)
	}
	if sess, _ := c.Store().Session(id); len(sess.Messages) != 1 {
		t.Fatalf("rejected send must not append, have %d messages", len(sess.Messages))
	}

	close(api.unblock)
	if err := <-done; err != nil {
		t.Fatalf("first exchange: %v", err)
	}
	if sess, _ := c.Store().Session(id); len(sess.Messages) != 2 {
		t.Fatalf("expected 2 messages after settle, have %d", len(sess.Messages))
	}
	if c.Store().Loading() {
		t.Fatalf("loading should clear after settle")
	}
}

func TestSendMessage_DeletedWhileInFlight(t *testing.T) {
	api := &recordingCompleter{
		reply:   "late",
		started: make(chan struct{}, 1),
		unblock: make(chan struct{}),
	}
	c := newTestController(t, api)
	ctx := context.Background()
	id := c.Store().CreateSession(ctx, "m")

	done := make(chan error, 1)
	go func() {
		_, err := c.SendMessage(ctx, "question")
		done <- err
	}()
	<-api.started

	c.Store().DeleteSession(ctx, id)
	close(api.unblock)
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, ok := c.Store().Session(id); ok {
		t.Fatalf("late reply must not resurrect a deleted session")
	}
	if c.Store().Loading() {
		t.Fatalf("loading should clear after settle")
	}
}

func TestSendMessage_NotifiesObserver(t *testing.T) {
	obs := &recordingObserver{}
	api := &recordingCompleter{reply: "ok"}
	c := newTestController(t, api, WithObserver(obs))
	ctx := context.Background()
	id := c.Store().CreateSession(ctx, "codestral-latest")

	if _, err := c.SendMessage(ctx, "write a loop"); err != nil {
		t.Fatalf("send: %v", err)
	}
	api.err = errors.New("Network down")
	_, _ = c.SendMessage(ctx, "again")

	if len(obs.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(obs.events))
	}
	ok, failed := obs.events[0], obs.events[1]
	if !ok.OK || ok.SessionID != id || ok.Model != "codestral-latest" {
		t.Fatalf("unexpected success event: %+v", ok)
	}
	if ok.Usage == nil || ok.Usage.TotalTokens != 5 {
		t.Fatalf("usage not carried: %+v", ok.Usage)
	}
	if failed.OK || failed.Error != "Network down" {
		t.Fatalf("unexpected failure event: %+v", failed)
	}
}

func TestErrorText(t *testing.T) {
	if got := ErrorText(errors.New("  ")); got != "An unknown error occurred" {
		t.Fatalf("blank error text = %q", got)
	}
	if got := ErrorText(errors.New("boom")); !strings.Contains(got, "boom") {
		t.Fatalf("error text = %q", got)
	}
	if got := ErrorText(nil); got != "" {
		t.Fatalf("nil error text = %q", got)
	}
}
