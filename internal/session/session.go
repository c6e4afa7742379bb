package session

import (
	"sync"
	"time"

	"github.com/driftwhale/driftwhale/internal/schema"
)

// Session holds one conversation's messages and metadata.
type Session struct {
	ID        string
	Agent     string
	Messages  schema.Messages
	CreatedAt time.Time
	UpdatedAt time.Time

	userTurns int
	mu        sync.Mutex
}

// New creates an empty session for an agent.
func New(agent, id string) *Session {
	return &Session{
		ID:        id,
		Agent:     agent,
		Messages:  schema.NewMessages(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// AddUser appends a user message and bumps the user turn counter.
func (s *Session) AddUser(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages.AddUser(content)
	s.userTurns++
	s.UpdatedAt = time.Now()
}

// AddAssistant appends an assistant message.
func (s *Session) AddAssistant(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages.AddAssistant(content, nil, nil)
	s.UpdatedAt = time.Now()
}

// Add appends an arbitrary message (tool results, raw assistant turns).
func (s *Session) Add(msg schema.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages.Add(msg)
	if msg.Role == "user" {
		s.userTurns++
	}
	s.UpdatedAt = time.Now()
}

// UserTurns reports how many user messages the session holds.
func (s *Session) UserTurns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userTurns
}

// LastActivity returns when the session last changed.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.UpdatedAt
}

// Len returns the number of messages in the session.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Messages.Messages)
}

// CopyMessages returns a snapshot of the current message list.
func (s *Session) CopyMessages() []schema.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Messages.Clone().Messages
}
