package chat

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

const DefaultTitle = "New conversation"

type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s Session) clone() Session {
	s.Messages = append(make([]Message, 0, len(s.Messages)), s.Messages...)
	return s
}

// Preview is the first user message cut to 50 characters, for session lists.
func (s Session) Preview() string {
	for _, m := range s.Messages {
		if m.Role != RoleUser {
			continue
		}
		runes := []rune(m.Content)
		if len(runes) > 50 {
			return string(runes[:50]) + "..."
		}
		return m.Content
	}
	return DefaultTitle
}

const titleWords = 6

// DeriveTitle builds a session title from the first words of a message,
// marking truncation with "...".
func DeriveTitle(text string) string {
	words := strings.Fields(text)
	truncated := len(words) > titleWords
	if truncated {
		words = words[:titleWords]
	}
	title := strings.Join(words, " ")
	if title == "" {
		return DefaultTitle
	}
	if truncated {
		title += "..."
	}
	return title
}

// ULIDs sort by creation time; the monotonic reader keeps ids minted in the
// same millisecond ordered too. It is not safe for concurrent use.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func NewID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
