package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/ai-chat/internal/apiclient"
	"github.com/suPer8Hu/ai-chat/internal/chat"
	"github.com/suPer8Hu/ai-chat/internal/chatapi"
	"github.com/suPer8Hu/ai-chat/internal/store/memory"
)

type echoCompleter struct{ err error }

func (e echoCompleter) Complete(_ context.Context, req chatapi.ChatRequest) (*chatapi.ChatResponse, error) {
	if e.err != nil {
		return nil, e.err
	}
	last := req.Messages[len(req.Messages)-1]
	return &chatapi.ChatResponse{Message: "echo: " + last.Content}, nil
}

type failingLister struct{}

func (failingLister) Models(context.Context) ([]chatapi.Model, error) {
	return apiclient.FallbackModels(), errors.New("HTTP 503")
}

func runREPL(t *testing.T, api chat.Completer, input string) (*chat.Store, string) {
	t.Helper()
	store := chat.NewStore(memory.New())
	var out bytes.Buffer
	r := &repl{
		ctrl:   chat.NewController(store, api, "mistral-large-latest"),
		models: failingLister{},
		in:     strings.NewReader(input),
		out:    &out,
		now:    time.Now,
	}
	require.NoError(t, r.run(context.Background()))
	return store, out.String()
}

func TestREPL_SendAndList(t *testing.T) {
	store, out := runREPL(t, echoCompleter{}, "hello there\n/list\n/quit\n")

	assert.Contains(t, out, "echo: hello there")
	assert.Contains(t, out, "Today")
	assert.Contains(t, out, "hello there  (mistral-large-latest, 2 messages)")

	snap := store.Snapshot()
	require.Len(t, snap.Sessions, 1)
	assert.Equal(t, snap.Sessions[0].ID, snap.CurrentID)
}

func TestREPL_ErrorReplyIsShown(t *testing.T) {
	store, out := runREPL(t, echoCompleter{err: errors.New("HTTP 500")}, "hi\n")

	assert.Contains(t, out, "Sorry, I encountered an error: HTTP 500")
	assert.Equal(t, "HTTP 500", store.Err())
}

func TestREPL_SessionCommands(t *testing.T) {
	input := strings.Join([]string{
		"/new mistral-small-latest",
		"/model codestral-latest",
		"/select nope",
		"/delete nope",
		"/models",
		"/bogus",
		"/clear",
		"/list",
	}, "\n") + "\n"
	store, out := runREPL(t, echoCompleter{}, input)

	assert.Contains(t, out, "with mistral-small-latest")
	assert.Contains(t, out, "Now using codestral-latest.")
	assert.Contains(t, out, "No conversation nope.")
	assert.Contains(t, out, "Could not load models (HTTP 503); showing defaults.")
	assert.Contains(t, out, "Code Models")
	assert.Contains(t, out, "Unknown command /bogus")
	assert.Contains(t, out, "All conversations deleted.")
	assert.Contains(t, out, "No conversations.")
	assert.Empty(t, store.Snapshot().Sessions)
}
