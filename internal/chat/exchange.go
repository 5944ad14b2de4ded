package chat

import (
	"context"
	"errors"
)

// ErrExchangeInFlight is returned when a session already has an unsettled exchange.
var ErrExchangeInFlight = errors.New("chat: an exchange is already in flight for this session")

type pendingExchange struct {
	sessionID string
	model     string
	history   []Message // prior messages plus the new user message
	user      Message
}

// beginExchange resolves the target session (creating one with defaultModel
// when nothing is current), appends the user message, marks the session busy
// and clears the error, all in one step.
func (s *Store) beginExchange(ctx context.Context, text, defaultModel string) (pendingExchange, error) {
	var (
		p   pendingExchange
		err error
	)
	s.update(ctx, true, func() bool {
		i := s.indexLocked(s.currentID)
		if i >= 0 {
			if _, busy := s.inflight[s.currentID]; busy {
				err = ErrExchangeInFlight
				return false
			}
		} else {
			s.createLocked(defaultModel)
			i = 0
		}

		sess := &s.sessions[i]
		now := s.now()
		msg := Message{ID: NewID(now), Role: RoleUser, Content: text, Timestamp: now}
		if len(sess.Messages) == 0 {
			sess.Title = DeriveTitle(text)
		}
		sess.Messages = append(sess.Messages, msg)
		s.touchLocked(i)

		s.inflight[sess.ID] = struct{}{}
		s.lastErr = ""

		p = pendingExchange{
			sessionID: sess.ID,
			model:     sess.Model,
			history:   append([]Message(nil), sess.Messages...),
			user:      msg,
		}
		return true
	})
	return p, err
}

// settleExchange appends the assistant reply, records errText as the current
// error when non-empty and releases the session. A session deleted while the
// exchange was in flight drops the reply.
func (s *Store) settleExchange(ctx context.Context, sessionID, content, errText string) (Message, bool) {
	var (
		msg      Message
		appended bool
	)
	s.update(ctx, true, func() bool {
		delete(s.inflight, sessionID)
		if errText != "" {
			s.lastErr = errText
		}
		i := s.indexLocked(sessionID)
		if i < 0 {
			return true
		}
		now := s.now()
		msg = Message{ID: NewID(now), Role: RoleAssistant, Content: content, Timestamp: now}
		s.sessions[i].Messages = append(s.sessions[i].Messages, msg)
		s.touchLocked(i)
		appended = true
		return true
	})
	return msg, appended
}

// release clears the busy mark without touching messages.
func (s *Store) release(sessionID string) {
	s.update(context.Background(), false, func() bool {
		if _, busy := s.inflight[sessionID]; !busy {
			return false
		}
		delete(s.inflight, sessionID)
		return true
	})
}
