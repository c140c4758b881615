package domain

import "time"

// StreamEvent is one increment of a streamed answer. Events are ordered per
// session; the event with Done=true is always the last one for a request.
type StreamEvent struct {
	SessionID string    `json:"session_id"`
	Fragment  string    `json:"fragment"`
	Sources   []string  `json:"sources,omitempty"`
	ToolCalls []string  `json:"tool_calls,omitempty"`
	Status    string    `json:"status,omitempty"`
	Done      bool      `json:"done"`
	Timestamp time.Time `json:"timestamp"`
}
