package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/suPer8Hu/ai-chat/internal/usage"
)

func newRepo(t *testing.T) *usage.Repo {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo := usage.NewRepo(db)
	if err := repo.Migrate(); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return repo
}

func TestHandleEvent(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	body := []byte(`{"id":"01HX0000000000000000000001","session_id":"s1","model":"mistral-large-latest","ok":true,"usage":{"prompt_tokens":4,"completion_tokens":2,"total_tokens":6},"latency_ns":2000000,"settled_at":"2024-05-10T12:00:00Z"}`)

	created, err := handleEvent(ctx, repo, body)
	if err != nil || !created {
		t.Fatalf("first delivery: created=%v err=%v", created, err)
	}
	created, err = handleEvent(ctx, repo, body)
	if err != nil || created {
		t.Fatalf("redelivery: created=%v err=%v", created, err)
	}

	rows, err := repo.ListBySession(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].TotalTokens != 6 || rows[0].LatencyMS != 2 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestHandleEvent_RejectsBadMessages(t *testing.T) {
	repo := newRepo(t)
	for _, body := range []string{`not json`, `{}`, `{"id":"x"}`} {
		if _, err := handleEvent(context.Background(), repo, []byte(body)); !errors.Is(err, errBadMessage) {
			t.Fatalf("body %q: expected errBadMessage, got %v", body, err)
		}
	}
}

func TestHandleEvent_SurvivesShutdown(t *testing.T) {
	repo := newRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	body := []byte(`{"id":"01HX0000000000000000000002","session_id":"s2","model":"codestral-latest","ok":true,"settled_at":"2024-05-10T12:00:00Z"}`)
	created, err := handleEvent(ctx, repo, body)
	if err != nil || !created {
		t.Fatalf("delivery drained after shutdown: created=%v err=%v", created, err)
	}

	rows, err := repo.ListBySession(context.Background(), "s2", 10)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected the event to be stored: rows=%d err=%v", len(rows), err)
	}
}

func TestShouldRequeue(t *testing.T) {
	if !shouldRequeue(fmt.Errorf("insert: %w", context.Canceled)) {
		t.Fatalf("cancelled writes should be requeued")
	}
	if !shouldRequeue(context.DeadlineExceeded) {
		t.Fatalf("timed out writes should be requeued")
	}
	if shouldRequeue(errBadMessage) {
		t.Fatalf("malformed messages belong in the dead-letter queue")
	}
}
