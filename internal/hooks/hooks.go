// Package hooks dispatches service lifecycle events to registered
// handlers. Plugins and the composition root subscribe here to observe
// conversations, ingestion batches, and server lifetime without the
// emitting components knowing about them.
package hooks

import (
	"context"
	"fmt"
	"sync"

	"github.com/soyeahso/docent/internal/logging"
)

// Event names for the hook system.
const (
	EventSessionStart   = "session_start"   // first turn of a new conversation
	EventSessionClosed  = "session_closed"  // session archived via close
	EventAnswerSent     = "answer_sent"     // assistant answer delivered and recorded
	EventIngestStarted  = "ingest_started"  // ingestion batch accepted
	EventIngestFinished = "ingest_finished" // ingestion batch reached a terminal status
	EventServerStart    = "server_start"
	EventServerStop     = "server_stop"
)

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventSessionStart,
	EventSessionClosed,
	EventAnswerSent,
	EventIngestStarted,
	EventIngestFinished,
	EventServerStart,
	EventServerStop,
}

// Payload carries event data to hook handlers.
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler reacts to one event. An error is logged and the remaining
// handlers still run.
type Handler func(ctx context.Context, p Payload) error

type namedHandler struct {
	name    string
	handler Handler
}

// Manager holds registrations and fans events out to them. Handlers
// mostly come from plugins, so a misbehaving one is contained: errors
// and panics are logged against the handler's name and never reach the
// emitting component.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	log      *logging.Logger
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers a handler under a name. The name is what log lines and
// Off refer to; several handlers may share one.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off removes every handler registered under name for the event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.handlers[event][:0]
	for _, h := range m.handlers[event] {
		if h.name != name {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		// Keep the map free of empty slices so Events stays honest.
		delete(m.handlers, event)
		return
	}
	m.handlers[event] = kept
}

// Emit runs all handlers for the event in registration order and
// returns when the last one has finished.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	p := Payload{Event: event, Data: data}
	for _, h := range m.snapshot(event) {
		m.dispatch(ctx, h, p)
	}
}

// EmitAsync runs each handler in its own goroutine and returns
// immediately. Used on hot paths (chat turns, ingestion) where the
// caller must not wait on observers.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	p := Payload{Event: event, Data: data}
	for _, h := range m.snapshot(event) {
		go m.dispatch(ctx, h, p)
	}
}

// snapshot copies the handler list so emission never holds the lock
// while handler code runs; a handler may itself call On or Off.
func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.handlers[event]) == 0 {
		return nil
	}
	out := make([]namedHandler, len(m.handlers[event]))
	copy(out, m.handlers[event])
	return out
}

// dispatch invokes one handler, converting a panic into a logged error.
func (m *Manager) dispatch(ctx context.Context, h namedHandler, p Payload) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().
				Str("event", p.Event).
				Str("handler", h.name).
				Msg(fmt.Sprintf("hook handler panicked: %v", r))
		}
	}()
	if err := h.handler(ctx, p); err != nil {
		m.log.Warn().
			Err(err).
			Str("event", p.Event).
			Str("handler", h.name).
			Msg("hook handler error")
	}
}

// Count returns the number of handlers registered for an event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the events that currently have handlers.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event := range m.handlers {
		events = append(events, event)
	}
	return events
}
