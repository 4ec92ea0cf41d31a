package conversation

import (
	"errors"
	"time"
)

// DefaultSessionKey is used when a caller has not supplied a document
// number. All anonymous callers share it.
const DefaultSessionKey = "default"

// DefaultHistoryLimit keeps five user/assistant pairs.
const DefaultHistoryLimit = 10

var (
	// ErrSessionNotFound is returned by stores for unknown keys.
	ErrSessionNotFound = errors.New("conversation: session not found")
	// ErrEmptyUtterance rejects turns with no text.
	ErrEmptyUtterance = errors.New("conversation: utterance is empty")
)

// Session is the per-caller state kept between turns.
type Session struct {
	Key       string        `json:"key"`
	Slots     SlotSet       `json:"slots"`
	History   []ChatMessage `json:"history,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// NewSession starts an empty session for key.
func NewSession(key string, now time.Time) *Session {
	return &Session{Key: key, CreatedAt: now, UpdatedAt: now}
}

// AppendHistory adds messages and evicts the oldest beyond limit.
func (s *Session) AppendHistory(limit int, msgs ...ChatMessage) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	s.History = append(s.History, msgs...)
	if over := len(s.History) - limit; over > 0 {
		s.History = append([]ChatMessage(nil), s.History[over:]...)
	}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Slots = s.Slots.clone()
	if s.History != nil {
		out.History = append([]ChatMessage(nil), s.History...)
	}
	return &out
}
