package session

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/soyeahso/docent/internal/domain"
	"github.com/soyeahso/docent/internal/logging"
)

// ErrClosed is returned when a message is appended to a session that
// has been explicitly closed.
var ErrClosed = errors.New("session closed")

// Manager is the conversation memory: a per-session in-process message
// list hydrated from the Store on first access, serialized back
// wholesale on every mutation. Each session carries its own lock, so
// concurrent requests for different sessions never serialize on a
// shared mutex.
type Manager struct {
	store      Store
	ttl        time.Duration
	archiveTTL time.Duration
	log        *logging.Logger
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	sess *domain.Session
}

func NewManager(store Store, ttlSeconds, archiveTTLSeconds int, log *logging.Logger) *Manager {
	return &Manager{
		store:      store,
		ttl:        time.Duration(ttlSeconds) * time.Second,
		archiveTTL: time.Duration(archiveTTLSeconds) * time.Second,
		log:        log,
		now:        time.Now,
		entries:    make(map[string]*entry),
	}
}

// GetOrCreate returns a snapshot of the session, hydrating the cache
// from the store on first access. An unknown ID yields a fresh active
// session; nothing is persisted until the first append.
func (m *Manager) GetOrCreate(ctx context.Context, id string) (*domain.Session, error) {
	e, err := m.entry(ctx, id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.sess), nil
}

// Append adds a message, refreshes activity metadata, and writes the
// whole record back to the store with a fresh TTL. Store failures are
// logged, not surfaced: the in-process copy keeps the conversation
// alive and the next successful write restores durability.
func (m *Manager) Append(ctx context.Context, id string, msg domain.Message) (*domain.Session, error) {
	e, err := m.entry(ctx, id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess.Status == domain.SessionClosed {
		return nil, ErrClosed
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = m.now()
	}
	e.sess.History = append(e.sess.History, msg)
	e.sess.MessageCount++
	e.sess.LastActivity = m.now()

	if err := m.store.Put(ctx, e.sess, m.ttl); err != nil {
		m.log.Warn().Err(err).Str("session_id", id).Msg("session store write failed, continuing on cache")
	}
	return snapshot(e.sess), nil
}

// SetMetadata merges caller metadata into the session record and
// re-persists it. An empty map is a no-op.
func (m *Manager) SetMetadata(ctx context.Context, id string, md map[string]string) error {
	if len(md) == 0 {
		return nil
	}
	e, err := m.entry(ctx, id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess.Metadata == nil {
		e.sess.Metadata = make(map[string]string, len(md))
	}
	for k, v := range md {
		e.sess.Metadata[k] = v
	}
	e.sess.LastActivity = m.now()

	if err := m.store.Put(ctx, e.sess, m.ttl); err != nil {
		m.log.Warn().Err(err).Str("session_id", id).Msg("session store write failed, continuing on cache")
	}
	return nil
}

// History returns a copy of the session's message list.
func (m *Manager) History(ctx context.Context, id string) ([]domain.Message, error) {
	sess, err := m.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	return sess.History, nil
}

// Clear empties the conversation in both the cache and the durable
// record. The session stays active.
func (m *Manager) Clear(ctx context.Context, id string) error {
	e, err := m.entry(ctx, id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.sess.History = nil
	e.sess.MessageCount = 0
	e.sess.LastActivity = m.now()

	if err := m.store.Put(ctx, e.sess, m.ttl); err != nil {
		m.log.Warn().Err(err).Str("session_id", id).Msg("session store write failed, continuing on cache")
	}
	return nil
}

// Close marks the session closed and re-persists it under the archive
// TTL. The record stays readable until the archive window lapses;
// further appends are rejected with ErrClosed.
func (m *Manager) Close(ctx context.Context, id string) (*domain.Session, error) {
	e, err := m.entry(ctx, id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess.Status != domain.SessionClosed {
		now := m.now()
		e.sess.Status = domain.SessionClosed
		e.sess.ClosedAt = &now
		e.sess.LastActivity = now
	}

	if err := m.store.Put(ctx, e.sess, m.archiveTTL); err != nil {
		m.log.Warn().Err(err).Str("session_id", id).Msg("session archive write failed")
	}
	return snapshot(e.sess), nil
}

// Delete removes the session from both cache and store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return m.store.Delete(ctx, id)
}

// entry returns the cached session entry, hydrating from the store on
// first access per process lifetime.
func (m *Manager) entry(ctx context.Context, id string) (*entry, error) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok {
		m.mu.Unlock()
		return e, nil
	}
	m.mu.Unlock()

	// Hydrate outside the map lock; a slow store must not block other
	// sessions.
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		now := m.now()
		sess = &domain.Session{
			ID:           id,
			CreatedAt:    now,
			LastActivity: now,
			Status:       domain.SessionActive,
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entries[id]; ok {
		// Another request hydrated concurrently; keep its entry.
		return existing, nil
	}
	e = &entry{sess: sess}
	m.entries[id] = e
	return e, nil
}

func snapshot(s *domain.Session) *domain.Session {
	cp := *s
	cp.History = slices.Clone(s.History)
	cp.Metadata = maps.Clone(s.Metadata)
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		cp.ClosedAt = &t
	}
	return &cp
}
