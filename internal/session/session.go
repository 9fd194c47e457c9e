package session

import (
	"time"

	"github.com/google/uuid"
)

// Message roles. The model only ever sees these two; directive results are
// folded into assistant text, not stored as a separate structure.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation entry. Messages are immutable once
// appended to a session.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is an ordered conversation transcript. Insertion order is
// chronological. A session with an empty store ID has never been saved.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`

	// storeID is the identifier assigned by the store on first save
	// (derived from the save timestamp). Empty for unsaved sessions.
	storeID string
}

// New returns an empty session created at now.
func New(now time.Time) *Session {
	return &Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		Messages:  []Message{},
	}
}

// Append adds a message to the transcript.
func (s *Session) Append(role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content})
}

// StoreID returns the backing-store identifier, or "" when unsaved.
func (s *Session) StoreID() string { return s.storeID }

// Reset clears the transcript and detaches the session from its backing
// file, so the next save creates a fresh one.
func (s *Session) Reset(now time.Time) {
	s.ID = uuid.New().String()
	s.CreatedAt = now
	s.Messages = []Message{}
	s.storeID = ""
}
