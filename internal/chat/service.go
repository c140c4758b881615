// Package chat orchestrates one conversation turn end to end: admission,
// session load, history fitting, answer generation over the retrieval or
// tool path, delivery, and persistence. The transport layer calls this
// package and nothing below it for chat traffic.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/soyeahso/docent/internal/admission"
	"github.com/soyeahso/docent/internal/agent"
	"github.com/soyeahso/docent/internal/budget"
	"github.com/soyeahso/docent/internal/domain"
	"github.com/soyeahso/docent/internal/fault"
	"github.com/soyeahso/docent/internal/hooks"
	"github.com/soyeahso/docent/internal/llm"
	"github.com/soyeahso/docent/internal/logging"
	"github.com/soyeahso/docent/internal/metrics"
	"github.com/soyeahso/docent/internal/rag"
	"github.com/soyeahso/docent/internal/session"
	"github.com/soyeahso/docent/internal/stream"
)

// persistTimeout bounds post-stream persistence, which runs on a fresh
// context because the caller may already be gone.
const persistTimeout = 5 * time.Second

// Request is one inbound chat turn.
type Request struct {
	// SessionID selects the conversation; a fresh one is generated when empty.
	SessionID string
	Message   string
	// UseTools routes the turn through the tool-augmented path.
	UseTools bool
	// K overrides the retrieval top-k; zero means the configured default.
	K int
	// Metadata is merged into the session record alongside the turn.
	Metadata map[string]string
	// ClientID identifies the caller for admission. Falls back to the
	// session ID so anonymous callers are still rate limited per
	// conversation rather than sharing one global bucket.
	ClientID string
}

// Response is a completed non-streaming turn.
type Response struct {
	SessionID string
	Answer    string
	Sources   []string
	ToolCalls []string
	Retrieved int
	Model     string
	Usage     llm.Usage
}

// StreamHandle is an in-flight streaming turn. Events carries ordered
// fragments and terminates with exactly one final event; Sources,
// ToolCalls, and Retrieved are known before the first fragment.
type StreamHandle struct {
	SessionID string
	Events    <-chan domain.StreamEvent
	Sources   []string
	ToolCalls []string
	Retrieved int
}

// Service coordinates the chat collaborators. It owns no conversation
// state of its own; sessions live behind the session manager.
type Service struct {
	limiter       *admission.Limiter
	sessions      *session.Manager
	assembler     *rag.Assembler
	runner        *agent.Runner // nil when the tool path is disabled
	pipeline      *stream.Pipeline
	enforcer      *budget.Enforcer
	historyTokens int
	metrics       *metrics.Metrics
	hooks         *hooks.Manager
	log           *logging.Logger
	now           func() time.Time
}

// Option configures optional collaborators on the service.
type Option func(*Service)

// WithRunner enables the tool-augmented path.
func WithRunner(r *agent.Runner) Option {
	return func(s *Service) { s.runner = r }
}

// WithMetrics sets the metrics instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithHooks sets the hook manager for lifecycle events.
func WithHooks(hm *hooks.Manager) Option {
	return func(s *Service) { s.hooks = hm }
}

func NewService(
	limiter *admission.Limiter,
	sessions *session.Manager,
	assembler *rag.Assembler,
	pipeline *stream.Pipeline,
	enforcer *budget.Enforcer,
	historyTokens int,
	log *logging.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		limiter:       limiter,
		sessions:      sessions,
		assembler:     assembler,
		pipeline:      pipeline,
		enforcer:      enforcer,
		historyTokens: historyTokens,
		log:           log.Sub("chat"),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// turn is the validated, admitted state shared by both delivery modes.
type turn struct {
	sessionID string
	message   string
	history   []domain.Message
	mode      string // "retrieval" or "tools"
	first     bool   // no prior turns on this session
}

// begin validates the request, admits it, and loads the fitted history.
// It never mutates the session: a turn that fails anywhere downstream
// leaves no trace.
func (s *Service) begin(ctx context.Context, method string, req Request) (*turn, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fault.Invalid("message must not be empty")
	}
	if req.UseTools && s.runner == nil {
		return nil, fault.Invalid("tool-augmented mode is not enabled")
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = domain.NewSessionID(s.now())
	}

	client := req.ClientID
	if client == "" {
		client = sessionID
	}
	if !s.limiter.Allow(ctx, method, client) {
		s.metrics.RateLimited(method)
		return nil, fault.New(fault.KindUnavailable, "rate limit exceeded")
	}

	sess, err := s.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		return nil, fault.Wrap(fault.KindUnavailable, "session store unavailable", err)
	}
	if sess.Status == domain.SessionClosed {
		return nil, fault.Invalid("session " + sessionID + " is closed")
	}

	mode := "retrieval"
	if req.UseTools {
		mode = "tools"
	}
	return &turn{
		sessionID: sessionID,
		message:   message,
		history:   s.enforcer.Fit(sess.History, s.historyTokens),
		mode:      mode,
		first:     sess.MessageCount == 0 && len(sess.History) == 0,
	}, nil
}

// persist records the finished turn: caller metadata, then the user
// message, then the assistant answer. The answer has already been
// delivered, so store failures are logged and swallowed rather than
// clawing it back.
func (s *Service) persist(ctx context.Context, t *turn, md map[string]string, answer string, sources, toolCalls []string) {
	log := s.log.WithSession(t.sessionID)
	if err := s.sessions.SetMetadata(ctx, t.sessionID, md); err != nil {
		log.Warn().Err(err).Msg("metadata update failed")
	}
	if _, err := s.sessions.Append(ctx, t.sessionID, domain.Message{
		Role:    domain.RoleUser,
		Content: t.message,
	}); err != nil {
		log.Warn().Err(err).Msg("user message not persisted")
	}
	if _, err := s.sessions.Append(ctx, t.sessionID, domain.Message{
		Role:      domain.RoleAssistant,
		Content:   answer,
		Sources:   sources,
		ToolCalls: toolCalls,
	}); err != nil {
		log.Warn().Err(err).Msg("assistant message not persisted")
	}

	if s.hooks != nil {
		// The persist context may be torn down right after this returns;
		// handlers get their own.
		if t.first {
			s.hooks.EmitAsync(context.Background(), hooks.EventSessionStart, map[string]any{
				"session_id": t.sessionID,
			})
		}
		s.hooks.EmitAsync(context.Background(), hooks.EventAnswerSent, map[string]any{
			"session_id": t.sessionID,
			"mode":       t.mode,
		})
	}
}

// Send answers one turn and returns the whole answer at once. Both
// messages are appended only after generation succeeds.
func (s *Service) Send(ctx context.Context, req Request) (*Response, error) {
	t, err := s.begin(ctx, "chat.send", req)
	if err != nil {
		return nil, err
	}

	if req.UseTools {
		result, err := s.runner.Run(ctx, t.message, t.history)
		if err != nil {
			return nil, err
		}
		s.persist(ctx, t, req.Metadata, result.Answer, nil, result.ToolsUsed)
		s.log.Info().
			Str("sessionID", t.sessionID).
			Int("toolsUsed", len(result.ToolsUsed)).
			Dur("duration", result.Duration).
			Msg("tool answer sent")
		return &Response{
			SessionID: t.sessionID,
			Answer:    result.Answer,
			ToolCalls: result.ToolsUsed,
			Model:     result.Model,
			Usage:     result.Usage,
		}, nil
	}

	result, err := s.assembler.Answer(ctx, t.message, t.history, req.K)
	if err != nil {
		return nil, err
	}
	s.persist(ctx, t, req.Metadata, result.Answer, result.Sources, nil)
	s.log.Info().
		Str("sessionID", t.sessionID).
		Int("retrieved", result.Retrieved).
		Str("category", string(result.Category)).
		Msg("answer sent")
	return &Response{
		SessionID: t.sessionID,
		Answer:    result.Answer,
		Sources:   result.Sources,
		Retrieved: result.Retrieved,
		Model:     result.Model,
		Usage:     result.Usage,
	}, nil
}

// Stream answers one turn through the delivery pipeline. The tool path
// generates first and replays the finished answer as fragments; the
// retrieval path forwards provider deltas as they arrive. Persistence
// runs after the stream settles and only for answers that completed, so
// an errored or canceled stream leaves the session as it was.
func (s *Service) Stream(ctx context.Context, req Request) (*StreamHandle, error) {
	t, err := s.begin(ctx, "chat.stream", req)
	if err != nil {
		return nil, err
	}

	if req.UseTools {
		result, err := s.runner.Run(ctx, t.message, t.history)
		if err != nil {
			return nil, err
		}
		s.metrics.StreamStarted()
		events := s.pipeline.Stream(ctx, stream.Request{
			SessionID:  t.sessionID,
			Text:       result.Answer,
			ToolCalls:  result.ToolsUsed,
			OnComplete: s.completion(t, req.Metadata, nil, result.ToolsUsed),
		})
		return &StreamHandle{
			SessionID: t.sessionID,
			Events:    events,
			ToolCalls: result.ToolsUsed,
		}, nil
	}

	answer, err := s.assembler.AnswerStream(ctx, t.message, t.history, req.K)
	if err != nil {
		return nil, err
	}
	s.metrics.StreamStarted()
	events := s.pipeline.Stream(ctx, stream.Request{
		SessionID:  t.sessionID,
		Events:     answer.Events,
		Sources:    answer.Sources,
		OnComplete: s.completion(t, req.Metadata, answer.Sources, nil),
	})
	return &StreamHandle{
		SessionID: t.sessionID,
		Events:    events,
		Sources:   answer.Sources,
		Retrieved: answer.Retrieved,
	}, nil
}

// completion builds the post-stream persistence hook. It runs on a
// fresh context so a caller that disconnected mid-stream still gets its
// completed answer recorded.
func (s *Service) completion(t *turn, md map[string]string, sources, toolCalls []string) func(string, error) {
	return func(full string, streamErr error) {
		s.metrics.StreamSettled(streamStatus(streamErr))
		if streamErr != nil || full == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		s.persist(ctx, t, md, full, sources, toolCalls)
	}
}

func streamStatus(err error) string {
	switch {
	case err == nil:
		return "complete"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// History returns the ordered messages of a session.
func (s *Service) History(ctx context.Context, sessionID string) ([]domain.Message, error) {
	if sessionID == "" {
		return nil, fault.Invalid("session_id is required")
	}
	msgs, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		return nil, fault.Wrap(fault.KindUnavailable, "session store unavailable", err)
	}
	return msgs, nil
}

// ClearHistory empties a session's conversation while keeping the
// session itself usable.
func (s *Service) ClearHistory(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fault.Invalid("session_id is required")
	}
	if err := s.sessions.Clear(ctx, sessionID); err != nil {
		return fault.Wrap(fault.KindUnavailable, "session store unavailable", err)
	}
	s.log.Info().Str("sessionID", sessionID).Msg("history cleared")
	return nil
}

// CloseSession archives a session. Further turns against it are
// rejected as invalid.
func (s *Service) CloseSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, fault.Invalid("session_id is required")
	}
	sess, err := s.sessions.Close(ctx, sessionID)
	if err != nil {
		return nil, fault.Wrap(fault.KindUnavailable, "session store unavailable", err)
	}
	if s.hooks != nil {
		s.hooks.EmitAsync(context.Background(), hooks.EventSessionClosed, map[string]any{
			"session_id": sessionID,
		})
	}
	s.log.Info().Str("sessionID", sessionID).Msg("session closed")
	return sess, nil
}
