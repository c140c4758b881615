package domain

import (
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a conversation session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

// Message roles. Only user and assistant turns are persisted in history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session is one logical conversation. The durable store owns it; any
// in-process copy is a cache that may be stale.
type Session struct {
	ID           string            `json:"id"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
	ClosedAt     *time.Time        `json:"closed_at,omitempty"`
	MessageCount int               `json:"message_count"`
	Metadata     map[string]string `json:"user_metadata,omitempty"`
	Status       SessionStatus     `json:"status"`
	History      []Message         `json:"history,omitempty"`
}

// Message is a single turn in a conversation. Immutable once appended,
// ordered by insertion within a session.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Sources   []string  `json:"sources,omitempty"`
	ToolCalls []string  `json:"tool_calls,omitempty"`
}

// NewSessionID generates an identifier for sessions the caller did not name.
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("session_%d", now.UnixNano())
}
