// Package stream delivers generated output incrementally on two surfaces
// in lockstep: the channel returned to the calling RPC and a side publish
// on the session's pub/sub channel. The pipeline is the single producer;
// every run ends with exactly one Done event, on success, error and
// timeout paths alike.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/docent/internal/config"
	"github.com/soyeahso/docent/internal/domain"
	"github.com/soyeahso/docent/internal/llm"
	"github.com/soyeahso/docent/internal/logging"
)

// errorFragment is the user-safe text emitted before the terminal event
// when a stream fails mid-flight. The raw error stays in the logs.
const errorFragment = "I apologize, but I'm having trouble generating a response right now."

// ChannelFor returns the pub/sub channel carrying a session's stream events.
func ChannelFor(sessionID string) string {
	return "chat:" + sessionID
}

// Request is one answer to deliver.
type Request struct {
	SessionID string

	// Events is the provider's native stream. When nil, Text is sliced
	// into fixed-size fragments with an inter-fragment delay instead.
	Events <-chan llm.StreamEvent
	Text   string

	Sources   []string
	ToolCalls []string

	// OnComplete, when set, runs with the accumulated answer text and the
	// stream error (nil on success) after the terminal event, before the
	// returned channel closes.
	OnComplete func(full string, err error)
}

// Pipeline produces StreamEvent sequences from provider output.
type Pipeline struct {
	pub       Publisher
	chunkSize int
	delay     time.Duration
	timeout   time.Duration
	log       *logging.Logger
}

func NewPipeline(pub Publisher, cfg config.StreamConfig, log *logging.Logger) *Pipeline {
	return &Pipeline{
		pub:       pub,
		chunkSize: cfg.ChunkSize,
		delay:     time.Duration(cfg.ChunkDelayMS) * time.Millisecond,
		timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		log:       log.Sub("stream"),
	}
}

// Stream starts delivering the request and returns the caller's surface.
// The channel is closed after the terminal Done event. If the caller's
// context is canceled mid-stream, production stops promptly; the terminal
// event still goes out on the pub/sub surface.
func (p *Pipeline) Stream(ctx context.Context, req Request) <-chan domain.StreamEvent {
	out := make(chan domain.StreamEvent)
	go p.run(ctx, req, out)
	return out
}

func (p *Pipeline) run(ctx context.Context, req Request, out chan<- domain.StreamEvent) {
	defer close(out)

	// The ceiling bounds production only. The error fragment and terminal
	// event are sent on the caller's context so a live caller always sees
	// the stream end, even when the ceiling already fired.
	prodCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var full strings.Builder
	var streamErr error

	if req.Events != nil {
		streamErr = p.forward(prodCtx, req, out, &full)
	} else {
		streamErr = p.emitChunks(prodCtx, req, out, req.Text, &full)
	}

	if streamErr != nil && !errors.Is(streamErr, context.Canceled) {
		p.log.Error().Err(streamErr).Str("session", req.SessionID).Msg("stream failed")
		p.emit(ctx, req, out, domain.StreamEvent{
			SessionID: req.SessionID,
			Fragment:  errorFragment,
			Status:    "error",
			Timestamp: time.Now(),
		})
	}

	p.emit(ctx, req, out, p.terminal(req, streamErr))

	if req.OnComplete != nil {
		req.OnComplete(full.String(), streamErr)
	}
}

// forward relays a provider's native stream, fragment for fragment.
func (p *Pipeline) forward(ctx context.Context, req Request, out chan<- domain.StreamEvent, full *strings.Builder) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-req.Events:
			if !ok {
				return nil
			}
			switch evt.Type {
			case llm.StreamDelta:
				if evt.Content == "" {
					continue
				}
				full.WriteString(evt.Content)
				if !p.emit(ctx, req, out, domain.StreamEvent{
					SessionID: req.SessionID,
					Fragment:  evt.Content,
					Timestamp: time.Now(),
				}) {
					return ctx.Err()
				}
			case llm.StreamError:
				return fmt.Errorf("provider stream: %s", evt.Error)
			case llm.StreamDone:
				if full.Len() == 0 && evt.Response != nil && evt.Response.Content != "" {
					// The provider delivered the whole answer in its
					// final event; slice it so the caller still sees
					// incremental fragments.
					return p.emitChunks(ctx, req, out, evt.Response.Content, full)
				}
				return nil
			}
		}
	}
}

// emitChunks slices text into fixed-size fragments with the configured
// inter-fragment delay.
func (p *Pipeline) emitChunks(ctx context.Context, req Request, out chan<- domain.StreamEvent, text string, full *strings.Builder) error {
	for i, piece := range chunks(text, p.chunkSize) {
		if i > 0 && p.delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.delay):
			}
		}
		full.WriteString(piece)
		if !p.emit(ctx, req, out, domain.StreamEvent{
			SessionID: req.SessionID,
			Fragment:  piece,
			Timestamp: time.Now(),
		}) {
			return ctx.Err()
		}
	}
	return nil
}

// terminal builds the single Done event closing a request's stream.
func (p *Pipeline) terminal(req Request, streamErr error) domain.StreamEvent {
	status := "complete"
	switch {
	case errors.Is(streamErr, context.Canceled):
		status = "canceled"
	case streamErr != nil:
		status = "error"
	}
	return domain.StreamEvent{
		SessionID: req.SessionID,
		Sources:   req.Sources,
		ToolCalls: req.ToolCalls,
		Status:    status,
		Done:      true,
		Timestamp: time.Now(),
	}
}

// emit delivers one event to both surfaces, pub/sub first so both see the
// same order. Returns false when ctx ended before the channel send could
// complete; the bus still got the event.
func (p *Pipeline) emit(ctx context.Context, req Request, out chan<- domain.StreamEvent, evt domain.StreamEvent) bool {
	p.publish(req.SessionID, evt)
	if ctx.Err() != nil {
		return false
	}
	select {
	case out <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}

const publishTimeout = 2 * time.Second

// publish sends one event on the side surface. Failures are logged, never
// fatal: the bus is fire-and-forget. Uses its own context so already
// produced events still reach the bus after the caller disconnects.
func (p *Pipeline) publish(sessionID string, evt domain.StreamEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		p.log.Error().Err(err).Msg("marshal stream event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.pub.Publish(ctx, ChannelFor(sessionID), payload); err != nil {
		p.log.Warn().Err(err).Str("session", sessionID).Msg("pub/sub publish failed")
	}
}

// chunks splits text into rune-safe pieces of at most size runes.
func chunks(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		return []string{text}
	}

	runes := []rune(text)
	out := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
