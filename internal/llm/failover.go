package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/soyeahso/docent/internal/logging"
)

// FailoverClient tries the primary provider first and walks the
// fallback list when a provider fails in a way another one could
// survive. It satisfies Client, so callers never learn which provider
// answered; each provider applies its own configured model.
type FailoverClient struct {
	registry  *Registry
	primary   string
	fallbacks []string
	log       *logging.Logger
}

// NewFailoverClient builds a failover chain over the registry.
func NewFailoverClient(registry *Registry, primary string, fallbacks []string, log *logging.Logger) *FailoverClient {
	return &FailoverClient{
		registry:  registry,
		primary:   primary,
		fallbacks: fallbacks,
		log:       log.Sub("llm.failover"),
	}
}

// candidates is the provider order for one attempt: primary, then the
// configured fallbacks.
func (f *FailoverClient) candidates() []string {
	return append([]string{f.primary}, f.fallbacks...)
}

// Complete asks each candidate in turn until one answers. A
// non-retryable error stops the chain; exhausting it returns the last
// error seen.
func (f *FailoverClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var lastErr error
	for _, name := range f.candidates() {
		client, err := f.registry.Resolve(name)
		if err != nil {
			f.log.Debug().Str("provider", name).Err(err).Msg("provider unavailable, skipping")
			lastErr = err
			continue
		}

		resp, err := client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
		f.log.Warn().Str("provider", name).Err(err).Msg("retryable error, trying next provider")
	}
	return nil, lastErr
}

// Stream is Complete's streaming counterpart. Failover only covers
// stream establishment; once a channel is handed out, mid-stream
// failures belong to the caller.
func (f *FailoverClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	var lastErr error
	for _, name := range f.candidates() {
		client, err := f.registry.Resolve(name)
		if err != nil {
			lastErr = err
			continue
		}

		ch, err := client.Stream(ctx, req)
		if err == nil {
			return ch, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
		f.log.Warn().Str("provider", name).Err(err).Msg("retryable stream error, trying next provider")
	}
	return nil, lastErr
}

// Name reports the primary provider; the chain has no identity of its own.
func (f *FailoverClient) Name() string {
	return f.primary
}

// isRetryable reports whether another provider might succeed where this
// one failed. Auth and quota trouble is provider-specific, so those
// codes are retryable here even though retrying the SAME provider would
// be pointless.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		switch provErr.Code {
		case 401, 403, 429, 500, 502, 503, 529:
			return true
		}
	}

	msg := err.Error()
	for _, marker := range []string{"overloaded", "rate limit", "capacity", "timeout"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
