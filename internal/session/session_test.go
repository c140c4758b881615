package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/docent/internal/domain"
	"github.com/soyeahso/docent/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(io.Discard, "silent")
}

func userMsg(content string) domain.Message {
	return domain.Message{Role: domain.RoleUser, Content: content}
}

// --- MemoryStore ---

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	sess := &domain.Session{
		ID:     "session_1",
		Status: domain.SessionActive,
		History: []domain.Message{
			userMsg("hello"),
		},
	}

	require.NoError(t, s.Put(ctx, sess, time.Hour))

	got, err := s.Get(ctx, "session_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "session_1", got.ID)
	require.Len(t, got.History, 1)
	assert.Equal(t, "hello", got.History[0].Content)
}

func TestMemoryStoreAbsent(t *testing.T) {
	s := NewMemoryStore()

	got, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	clock := time.Now()
	s.now = func() time.Time { return clock }

	require.NoError(t, s.Put(ctx, &domain.Session{ID: "s"}, time.Hour))

	got, err := s.Get(ctx, "s")
	require.NoError(t, err)
	assert.NotNil(t, got)

	clock = clock.Add(time.Hour + time.Second)
	got, err = s.Get(ctx, "s")
	require.NoError(t, err)
	assert.Nil(t, got, "expired record should read as absent")
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &domain.Session{ID: "s"}, time.Hour))
	require.NoError(t, s.Delete(ctx, "s"))

	got, err := s.Get(ctx, "s")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// --- Manager ---

func newTestManager(store Store) *Manager {
	return NewManager(store, 3600, 86400, testLogger())
}

func TestManagerGetOrCreateFresh(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(store)
	ctx := context.Background()

	sess, err := m.GetOrCreate(ctx, "session_42")
	require.NoError(t, err)
	assert.Equal(t, "session_42", sess.ID)
	assert.Equal(t, domain.SessionActive, sess.Status)
	assert.Empty(t, sess.History)
	assert.Zero(t, sess.MessageCount)
	assert.False(t, sess.CreatedAt.IsZero())

	// Nothing persisted until the first append.
	stored, err := store.Get(ctx, "session_42")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestManagerAppendPersists(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(store)
	ctx := context.Background()

	sess, err := m.Append(ctx, "s1", userMsg("what stack do you use?"))
	require.NoError(t, err)
	assert.Equal(t, 1, sess.MessageCount)
	require.Len(t, sess.History, 1)
	assert.False(t, sess.History[0].Timestamp.IsZero())

	sess, err = m.Append(ctx, "s1", domain.Message{Role: domain.RoleAssistant, Content: "mostly Go"})
	require.NoError(t, err)
	assert.Equal(t, 2, sess.MessageCount)

	// The full record is in the store after every append.
	stored, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 2, stored.MessageCount)
	require.Len(t, stored.History, 2)
	assert.Equal(t, "mostly Go", stored.History[1].Content)
}

func TestManagerHydratesFromStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	// First process lifetime.
	m1 := newTestManager(store)
	_, err := m1.Append(ctx, "s1", userMsg("remember me"))
	require.NoError(t, err)

	// Second process lifetime sees the durable record.
	m2 := newTestManager(store)
	history, err := m2.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "remember me", history[0].Content)
}

func TestManagerClear(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(store)
	ctx := context.Background()

	_, err := m.Append(ctx, "s1", userMsg("one"))
	require.NoError(t, err)
	_, err = m.Append(ctx, "s1", userMsg("two"))
	require.NoError(t, err)

	require.NoError(t, m.Clear(ctx, "s1"))

	sess, err := m.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, sess.History)
	assert.Zero(t, sess.MessageCount)
	assert.Equal(t, domain.SessionActive, sess.Status)

	// Durable record cleared too.
	stored, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Empty(t, stored.History)
}

func TestManagerClose(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(store)
	ctx := context.Background()

	_, err := m.Append(ctx, "s1", userMsg("hello"))
	require.NoError(t, err)

	closed, err := m.Close(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	// History stays readable during the archive window.
	history, err := m.History(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	// But no further messages are accepted.
	_, err = m.Append(ctx, "s1", userMsg("more"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManagerCloseIdempotent(t *testing.T) {
	m := newTestManager(NewMemoryStore())
	ctx := context.Background()

	first, err := m.Close(ctx, "s1")
	require.NoError(t, err)

	second, err := m.Close(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, first.ClosedAt.UnixNano(), second.ClosedAt.UnixNano())
}

func TestManagerSnapshotIsolation(t *testing.T) {
	m := newTestManager(NewMemoryStore())
	ctx := context.Background()

	_, err := m.Append(ctx, "s1", userMsg("original"))
	require.NoError(t, err)

	sess, err := m.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	sess.History[0].Content = "tampered"
	sess.History = append(sess.History, userMsg("extra"))

	fresh, err := m.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, fresh.History, 1)
	assert.Equal(t, "original", fresh.History[0].Content)
}

type failingStore struct{}

func (failingStore) Put(context.Context, *domain.Session, time.Duration) error {
	return errors.New("connection refused")
}
func (failingStore) Get(context.Context, string) (*domain.Session, error) {
	return nil, errors.New("connection refused")
}
func (failingStore) Delete(context.Context, string) error {
	return errors.New("connection refused")
}

func TestManagerAppendSurvivesStoreFailure(t *testing.T) {
	m := newTestManager(failingStore{})
	ctx := context.Background()

	// Hydration failure surfaces; the caller can decide what to do.
	_, err := m.GetOrCreate(ctx, "s1")
	assert.Error(t, err)
}

func TestManagerAppendContinuesAfterWriteFailure(t *testing.T) {
	store := &flakyStore{inner: NewMemoryStore()}
	m := newTestManager(store)
	ctx := context.Background()

	_, err := m.Append(ctx, "s1", userMsg("first"))
	require.NoError(t, err)

	store.failPuts = true
	sess, err := m.Append(ctx, "s1", userMsg("second"))
	require.NoError(t, err, "write failures degrade to cache-only, not errors")
	assert.Equal(t, 2, sess.MessageCount)
}

type flakyStore struct {
	inner    *MemoryStore
	failPuts bool
}

func (f *flakyStore) Put(ctx context.Context, sess *domain.Session, ttl time.Duration) error {
	if f.failPuts {
		return errors.New("connection refused")
	}
	return f.inner.Put(ctx, sess, ttl)
}
func (f *flakyStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	return f.inner.Get(ctx, id)
}
func (f *flakyStore) Delete(ctx context.Context, id string) error {
	return f.inner.Delete(ctx, id)
}

func TestManagerConcurrentAppends(t *testing.T) {
	m := newTestManager(NewMemoryStore())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Append(ctx, "s1", userMsg("msg"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sess, err := m.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 20, sess.MessageCount)
	assert.Len(t, sess.History, 20)
}

func TestManagerDelete(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(store)
	ctx := context.Background()

	_, err := m.Append(ctx, "s1", userMsg("hello"))
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, "s1"))

	stored, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, stored)

	// A fresh access starts a brand-new session.
	sess, err := m.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, sess.History)
}

func TestManagerSetMetadataMerges(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(store)
	ctx := context.Background()

	require.NoError(t, m.SetMetadata(ctx, "s1", map[string]string{"client": "web", "locale": "en"}))
	require.NoError(t, m.SetMetadata(ctx, "s1", map[string]string{"locale": "de"}))

	sess, err := m.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"client": "web", "locale": "de"}, sess.Metadata)

	// Metadata rides the persisted record.
	stored, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "web", stored.Metadata["client"])
}

func TestManagerSetMetadataEmptyIsNoOp(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(store)
	ctx := context.Background()

	require.NoError(t, m.SetMetadata(ctx, "s1", nil))

	stored, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, stored)
}
