// Package llm defines the generation-provider client interface and the
// pluggable provider registry behind it. Providers are HTTP API clients
// (OpenAI-compatible endpoints, Ollama) plus a mock for tests; callers
// see one Client interface regardless of which backend answers.
package llm

import (
	"context"
	"time"
)

// Conversation roles as they appear on the wire.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// StreamEvent types. Every stream ends with exactly one StreamDone or
// StreamError.
const (
	StreamDelta = "delta"
	StreamDone  = "done"
	StreamError = "error"
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest carries everything a provider needs for one
// generation call. A zero Model defers to the provider's configured
// default.
type CompletionRequest struct {
	Model       string    `json:"model,omitempty"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"maxTokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// CompletionResponse is a finished, non-streaming generation.
type CompletionResponse struct {
	Content    string        `json:"content"`
	StopReason string        `json:"stopReason,omitempty"`
	Usage      Usage         `json:"usage"`
	Model      string        `json:"model,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// Usage counts tokens as the provider reported them.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// StreamEvent is one chunk of a streaming generation: text deltas while
// the provider produces, then a terminal done (with the assembled
// Response) or error.
type StreamEvent struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`

	// Response is set on StreamDone only.
	Response *CompletionResponse `json:"response,omitempty"`
}

// deliver sends evt on ch, abandoning the send once ctx is done.
// Consumers stop reading mid-stream on cancellation, so producers check
// the return and stop producing.
func deliver(ctx context.Context, ch chan<- StreamEvent, evt StreamEvent) bool {
	select {
	case ch <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}

// Client is implemented by every generation provider.
type Client interface {
	// Complete runs one blocking generation.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Stream runs a generation delivered as StreamEvents. The channel
	// closes after the terminal event.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)

	// Name reports the provider name ("openai", "ollama").
	Name() string
}
