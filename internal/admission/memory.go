package admission

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps windows in process memory. Suitable for
// single-instance deployments and tests; state is lost on restart.
type MemoryBackend struct {
	mu      sync.Mutex
	windows map[string]*keyWindow
}

// keyWindow carries its own lock so contention on one key never stalls
// decisions for another.
type keyWindow struct {
	mu   sync.Mutex
	hits []time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{windows: make(map[string]*keyWindow)}
}

func (b *MemoryBackend) Allow(_ context.Context, key string, now time.Time, window time.Duration, max int) (bool, error) {
	b.mu.Lock()
	w, ok := b.windows[key]
	if !ok {
		w = &keyWindow{}
		b.windows[key] = w
	}
	b.mu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-window)
	kept := w.hits[:0]
	for _, t := range w.hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.hits = kept

	if len(w.hits) >= max {
		return false, nil
	}
	w.hits = append(w.hits, now)
	return true, nil
}
