// Package admission applies per-client rate limits before requests reach
// the orchestration pipeline. Limits are sliding windows keyed by RPC
// method plus client identity, and the limiter fails open: an unreachable
// backend never blocks traffic.
package admission

import (
	"context"
	"time"

	"github.com/soyeahso/docent/internal/logging"
)

// Backend maintains one sliding window per key. Allow drops entries older
// than the window, denies when the surviving count has reached max, and
// records the new hit otherwise. The count-then-record sequence is not
// atomic across processes; concurrent requests at the window boundary may
// both be admitted. That race is accepted.
type Backend interface {
	Allow(ctx context.Context, key string, now time.Time, window time.Duration, max int) (bool, error)
}

// Limiter is the admission decision point.
type Limiter struct {
	backend Backend
	max     int
	window  time.Duration
	log     *logging.Logger
	now     func() time.Time
}

func NewLimiter(backend Backend, maxRequests, windowSeconds int, log *logging.Logger) *Limiter {
	return &Limiter{
		backend: backend,
		max:     maxRequests,
		window:  time.Duration(windowSeconds) * time.Second,
		log:     log,
		now:     time.Now,
	}
}

// Allow reports whether a request for method from client may proceed.
// Backend failures are logged and the request is admitted anyway;
// availability outranks limiter precision.
func (l *Limiter) Allow(ctx context.Context, method, client string) bool {
	key := method + ":" + client

	ok, err := l.backend.Allow(ctx, key, l.now(), l.window, l.max)
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("rate limit backend unavailable, admitting request")
		return true
	}
	if !ok {
		l.log.Debug().Str("key", key).Int("max", l.max).Msg("rate limit exceeded")
	}
	return ok
}
