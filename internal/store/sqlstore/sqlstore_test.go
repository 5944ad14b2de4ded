package sqlstore

import (
	"context"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestStore_PutOverwrites(t *testing.T) {
	s, err := New(openTestDB(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if got, err := s.Get(ctx, "sessions"); err != nil || got != nil {
		t.Fatalf("missing key: got=%q err=%v", got, err)
	}
	if err := s.Put(ctx, "sessions", []byte("v1")); err != nil {
		t.Fatalf("put v1: %v", err)
	}
	if err := s.Put(ctx, "sessions", []byte("v2")); err != nil {
		t.Fatalf("put v2: %v", err)
	}
	got, err := s.Get(ctx, "sessions")
	if err != nil || string(got) != "v2" {
		t.Fatalf("get: got=%q err=%v, want v2", got, err)
	}

	var n int64
	if err := s.db.Model(&Blob{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected upsert to keep a single row, got %d", n)
	}
}

func TestStore_Delete(t *testing.T) {
	s, err := New(openTestDB(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if err := s.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("deleting a missing key should not fail: %v", err)
	}
	if got, _ := s.Get(ctx, "k"); got != nil {
		t.Fatalf("expected nil after delete, got %q", got)
	}
}
