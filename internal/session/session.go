// Package session tracks in-memory conversation state. Sessions live for the
// process lifetime only; persistence is a caller concern.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emothrive/emothrive/internal/therapy"
)

// Message roles, matching the completions API convention.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ErrBusy is returned when a turn is attempted while another turn is still
// in flight on the same session. Callers should retry after the current turn
// completes.
var ErrBusy = errors.New("session busy: turn already in flight")

// Message is a single conversation entry. Immutable once appended.
type Message struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session holds ordered message history and per-type usage counters for one
// conversation. All methods are safe for concurrent use; the single-flight
// turn guard serializes actual turn processing.
type Session struct {
	ID        string
	StartedAt time.Time

	mu         sync.Mutex
	inFlight   bool
	messages   []Message
	typeCounts map[therapy.Type]int
}

// New creates a Session with a fresh identifier.
func New() *Session {
	return &Session{
		ID:         uuid.New().String(),
		StartedAt:  time.Now().UTC(),
		typeCounts: make(map[therapy.Type]int),
	}
}

// BeginTurn marks the session as processing a turn. Returns ErrBusy if a
// turn is already in flight.
func (s *Session) BeginTurn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrBusy
	}
	s.inFlight = true
	return nil
}

// EndTurn clears the in-flight flag. Safe to call when no turn is active.
func (s *Session) EndTurn() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}

// CommitTurn appends the user and assistant messages for a completed turn
// and increments the counter for the therapy type used. History mutation
// happens only here, so a failed turn leaves the session untouched.
func (s *Session) CommitTurn(userText, assistantText string, typ therapy.Type) {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages,
		Message{Role: RoleUser, Text: userText, Timestamp: now},
		Message{Role: RoleAssistant, Text: assistantText, Timestamp: now},
	)
	s.typeCounts[typ]++
}

// Messages returns a copy of the full ordered history.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Recent returns a copy of the last n messages, oldest first.
func (s *Session) Recent(n int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.messages) {
		n = len(s.messages)
	}
	out := make([]Message, n)
	copy(out, s.messages[len(s.messages)-n:])
	return out
}

// Turns returns the number of completed turns.
func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.typeCounts {
		total += n
	}
	return total
}

// TypeCounts returns a copy of the per-type usage counters.
func (s *Session) TypeCounts() map[therapy.Type]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[therapy.Type]int, len(s.typeCounts))
	for k, v := range s.typeCounts {
		out[k] = v
	}
	return out
}
