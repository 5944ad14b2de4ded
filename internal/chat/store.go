package chat

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// BlobStore is the durable key/value storage behind a Store.
// Get returns nil data and a nil error when key is absent.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

const DefaultStorageKey = "mistral-chat-sessions"

// Snapshot is a deep copy of the store state. Sessions are ordered by
// UpdatedAt, newest first.
type Snapshot struct {
	Sessions  []Session
	CurrentID string
	Current   *Session
	Loading   bool
	Error     string
}

// Store owns the session collection and the current-session pointer.
// All state changes go through its methods; every change that touches the
// collection is written back to the BlobStore. Persistence is best effort:
// failures are logged and never surface to callers.
type Store struct {
	mu        sync.Mutex
	sessions  []Session // most recently created first
	currentID string
	lastErr   string
	inflight  map[string]struct{}

	blobs  BlobStore
	key    string
	logger *slog.Logger
	now    func() time.Time

	subs    map[int]func(Snapshot)
	nextSub int
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithStorageKey(key string) Option { return func(s *Store) { s.key = key } }

func NewStore(blobs BlobStore, opts ...Option) *Store {
	s := &Store{
		inflight: make(map[string]struct{}),
		blobs:    blobs,
		key:      DefaultStorageKey,
		logger:   slog.Default(),
		now:      time.Now,
		subs:     make(map[int]func(Snapshot)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Restore loads persisted sessions and selects the most recently updated one.
// Unreadable or malformed data leaves the store empty.
func (s *Store) Restore(ctx context.Context) {
	if s.blobs == nil {
		return
	}
	data, err := s.blobs.Get(ctx, s.key)
	if err != nil {
		s.logger.Error("failed to load chat sessions", "key", s.key, "error", err)
		return
	}
	if len(data) == 0 {
		return
	}
	sessions, err := decodeSessions(data)
	if err != nil {
		s.logger.Error("failed to load chat sessions", "key", s.key, "error", err)
		return
	}

	s.update(ctx, false, func() bool {
		s.sessions = sessions
		s.currentID = mostRecentID(sessions)
		return true
	})
	s.logger.Info("restored chat sessions", "count", len(sessions), "current", s.CurrentID())
}

// CreateSession inserts an empty session, makes it current and clears the
// error. Model ids are not validated.
func (s *Store) CreateSession(ctx context.Context, model string) string {
	var id string
	s.update(ctx, true, func() bool {
		id = s.createLocked(model)
		s.lastErr = ""
		return true
	})
	return id
}

func (s *Store) createLocked(model string) string {
	now := s.now()
	sess := Session{
		ID:        NewID(now),
		Title:     DefaultTitle,
		Messages:  []Message{},
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions = append([]Session{sess}, s.sessions...)
	s.currentID = sess.ID
	return sess.ID
}

// SelectSession points current at id. Unknown ids are accepted and read back
// as no current session.
func (s *Store) SelectSession(ctx context.Context, id string) {
	s.update(ctx, false, func() bool {
		s.currentID = id
		s.lastErr = ""
		return true
	})
}

// DeleteSession removes id. Deleting the current session moves current to the
// most recently updated remaining session, or clears it.
func (s *Store) DeleteSession(ctx context.Context, id string) {
	s.update(ctx, true, func() bool {
		i := s.indexLocked(id)
		if i < 0 {
			return false
		}
		s.sessions = append(s.sessions[:i:i], s.sessions[i+1:]...)
		if s.currentID == id {
			s.currentID = mostRecentID(s.sessions)
		}
		return true
	})
}

func (s *Store) UpdateSessionModel(ctx context.Context, id, model string) {
	s.update(ctx, true, func() bool {
		i := s.indexLocked(id)
		if i < 0 {
			return false
		}
		s.sessions[i].Model = model
		s.touchLocked(i)
		return true
	})
}

// ClearAll empties the collection and erases the persisted state.
func (s *Store) ClearAll(ctx context.Context) {
	s.update(ctx, true, func() bool {
		s.sessions = nil
		s.currentID = ""
		s.lastErr = ""
		return true
	})
}

func (s *Store) Session(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return Session{}, false
	}
	return s.sessions[i].clone(), true
}

func (s *Store) Current() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(s.currentID)
	if i < 0 {
		return Session{}, false
	}
	return s.sessions[i].clone(), true
}

// CurrentID returns the current session id, or "" if it does not resolve.
func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(s.currentID) < 0 {
		return ""
	}
	return s.currentID
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight) > 0
}

func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every state change.
// fn runs on the mutating goroutine, outside the store lock.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// update runs fn under the lock. When fn reports a change the state is
// optionally persisted and subscribers are notified.
func (s *Store) update(ctx context.Context, persist bool, fn func() bool) {
	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		return
	}
	if persist {
		s.persistLocked(ctx)
	}
	snap := s.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
}

func (s *Store) persistLocked(ctx context.Context) {
	if s.blobs == nil {
		return
	}
	// An empty collection is never written; the key is removed instead so a
	// later restore does not bring deleted sessions back.
	if len(s.sessions) == 0 {
		if err := s.blobs.Delete(ctx, s.key); err != nil {
			s.logger.Error("failed to remove chat sessions", "key", s.key, "error", err)
		}
		return
	}
	data, err := encodeSessions(s.sessions)
	if err != nil {
		s.logger.Error("failed to encode chat sessions", "error", err)
		return
	}
	if err := s.blobs.Put(ctx, s.key, data); err != nil {
		s.logger.Error("failed to save chat sessions", "key", s.key, "error", err)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Sessions: make([]Session, 0, len(s.sessions)),
		Loading:  len(s.inflight) > 0,
		Error:    s.lastErr,
	}
	for _, sess := range s.sessions {
		snap.Sessions = append(snap.Sessions, sess.clone())
	}
	SortByUpdated(snap.Sessions)

	if i := s.indexLocked(s.currentID); i >= 0 {
		cur := s.sessions[i].clone()
		snap.CurrentID = cur.ID
		snap.Current = &cur
	}
	return snap
}

func (s *Store) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

// touchLocked refreshes UpdatedAt without ever moving it backwards.
func (s *Store) touchLocked(i int) time.Time {
	now := s.now()
	if now.Before(s.sessions[i].UpdatedAt) {
		now = s.sessions[i].UpdatedAt
	}
	s.sessions[i].UpdatedAt = now
	return now
}

// SortByUpdated orders sessions newest first, keeping insertion order on ties.
func SortByUpdated(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
}

func mostRecentID(sessions []Session) string {
	best := -1
	for i := range sessions {
		if best < 0 || sessions[i].UpdatedAt.After(sessions[best].UpdatedAt) {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return sessions[best].ID
}
