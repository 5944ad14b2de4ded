package chat

import (
	"encoding/json"
	"fmt"
)

// The persisted blob is a JSON array of sessions; time.Time values travel as
// RFC 3339 strings with nanoseconds, so instants survive the round trip.

func encodeSessions(sessions []Session) ([]byte, error) {
	return json.Marshal(sessions)
}

func decodeSessions(data []byte) ([]Session, error) {
	var sessions []Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	seen := make(map[string]struct{}, len(sessions))
	for i := range sessions {
		s := &sessions[i]
		if s.ID == "" {
			return nil, fmt.Errorf("decode sessions: session %d has no id", i)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("decode sessions: duplicate session id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.Messages == nil {
			s.Messages = []Message{}
		}
		if s.Title == "" {
			s.Title = DefaultTitle
		}
		if s.UpdatedAt.Before(s.CreatedAt) {
			s.UpdatedAt = s.CreatedAt
		}
	}
	return sessions, nil
}
