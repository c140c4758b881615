package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/docent/internal/config"
	"github.com/soyeahso/docent/internal/domain"
	"github.com/soyeahso/docent/internal/fault"
	"github.com/soyeahso/docent/internal/hooks"
	"github.com/soyeahso/docent/internal/llm"
	"github.com/soyeahso/docent/internal/logging"
	"github.com/soyeahso/docent/internal/metrics"
	"github.com/soyeahso/docent/internal/store"
	"github.com/soyeahso/docent/internal/vector"
)

type testEnv struct {
	svc *Service
	vec vector.Store
	emb llm.Embedder
}

func newTestEnv(t *testing.T, emb llm.Embedder) testEnv {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	vec := vector.NewMemoryStore()
	svc := NewService(emb, vec, store.NewDocumentStore(db), store.NewJobStore(db), config.IngestConfig{
		Workers:           2,
		ChunkSize:         50,
		ChunkOverlap:      10,
		AllowedExtensions: []string{".txt", ".md"},
	}, log)
	return testEnv{svc: svc, vec: vec, emb: emb}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// waitJob polls until the batch leaves the processing state.
func waitJob(t *testing.T, svc *Service, id string) *domain.IngestionJob {
	t.Helper()
	var job *domain.IngestionJob
	require.Eventually(t, func() bool {
		j, err := svc.Job(id)
		if err != nil || j == nil || j.Status == domain.JobProcessing {
			return false
		}
		job = j
		return true
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

// --- Service tests ---

func TestIngest_HappyPath(t *testing.T) {
	env := newTestEnv(t, llm.NewHashEmbedder(32))
	dir := t.TempDir()
	notes := writeFile(t, dir, "notes.txt", strings.Repeat("Go services handle concurrency well. ", 5))
	readme := writeFile(t, dir, "readme.md", "A short file.")

	snapshot, err := env.svc.Ingest([]string{notes, readme})
	require.NoError(t, err)
	assert.NotEmpty(t, snapshot.ID)
	assert.Equal(t, domain.JobProcessing, snapshot.Status)
	assert.Equal(t, 2, snapshot.TotalFiles)

	job := waitJob(t, env.svc, snapshot.ID)
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Equal(t, 2, job.ProcessedFiles)
	assert.Len(t, job.DocumentIDs, 2)
	assert.Empty(t, job.Error)

	docs, err := env.svc.Documents()
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, doc := range docs {
		assert.Equal(t, domain.DocumentCompleted, doc.Status)
		assert.Greater(t, doc.ChunkCount, 0)
		assert.Len(t, doc.VectorIDs, doc.ChunkCount)
	}

	// Indexed chunks are searchable under the source filename.
	vecs, err := env.emb.Embed(context.Background(), []string{"Go services handle concurrency well."})
	require.NoError(t, err)
	passages, err := env.vec.Search(context.Background(), vecs[0], 1)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "notes.txt", passages[0].Source)
}

func TestIngest_SkipsInvalidPaths(t *testing.T) {
	env := newTestEnv(t, llm.NewHashEmbedder(32))
	dir := t.TempDir()
	valid := writeFile(t, dir, "notes.txt", "Some indexable content here.")
	badExt := writeFile(t, dir, "slides.pdf", "binary-ish")

	snapshot, err := env.svc.Ingest([]string{valid, badExt, filepath.Join(dir, "missing.txt")})
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.TotalFiles)

	job := waitJob(t, env.svc, snapshot.ID)
	assert.Equal(t, domain.JobCompleted, job.Status)

	// Skipped paths never become documents.
	docs, err := env.svc.Documents()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "notes.txt", docs[0].Filename)
}

func TestIngest_AllInvalid(t *testing.T) {
	env := newTestEnv(t, llm.NewHashEmbedder(32))
	dir := t.TempDir()
	badExt := writeFile(t, dir, "slides.pdf", "nope")

	_, err := env.svc.Ingest([]string{badExt, filepath.Join(dir, "missing.txt"), dir, ""})
	require.Error(t, err)
	assert.Equal(t, fault.KindInvalidInput, fault.Classify(err))
}

func TestIngest_FileFailureMarksBatchFailed(t *testing.T) {
	env := newTestEnv(t, llm.NewHashEmbedder(32))
	dir := t.TempDir()
	good := writeFile(t, dir, "good.txt", "Readable content.")

	corrupt := filepath.Join(dir, "corrupt.txt")
	require.NoError(t, os.WriteFile(corrupt, []byte{0xff, 0xfe, 0xfd}, 0o644))

	snapshot, err := env.svc.Ingest([]string{good, corrupt})
	require.NoError(t, err)

	job := waitJob(t, env.svc, snapshot.ID)
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Equal(t, 2, job.ProcessedFiles)
	assert.Equal(t, "1 of 2 files failed", job.Error)

	docs, err := env.svc.Documents()
	require.NoError(t, err)
	require.Len(t, docs, 2)
	byName := map[string]domain.Document{}
	for _, doc := range docs {
		byName[doc.Filename] = doc
	}
	assert.Equal(t, domain.DocumentCompleted, byName["good.txt"].Status)
	assert.Equal(t, domain.DocumentFailed, byName["corrupt.txt"].Status)
	assert.Contains(t, byName["corrupt.txt"].Error, "not valid UTF-8")
	assert.Zero(t, byName["corrupt.txt"].ChunkCount)
}

func TestIngest_EmbedderFailureFailsFile(t *testing.T) {
	env := newTestEnv(t, failingEmbedder{})
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "Content that cannot be embedded.")

	snapshot, err := env.svc.Ingest([]string{path})
	require.NoError(t, err)

	job := waitJob(t, env.svc, snapshot.ID)
	assert.Equal(t, domain.JobFailed, job.Status)

	docs, err := env.svc.Documents()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, domain.DocumentFailed, docs[0].Status)
	assert.Contains(t, docs[0].Error, "embed chunks")
}

func TestIngest_EmptyFileCompletesWithZeroChunks(t *testing.T) {
	env := newTestEnv(t, llm.NewHashEmbedder(32))
	dir := t.TempDir()
	path := writeFile(t, dir, "blank.txt", "   \n\n  ")

	snapshot, err := env.svc.Ingest([]string{path})
	require.NoError(t, err)

	job := waitJob(t, env.svc, snapshot.ID)
	assert.Equal(t, domain.JobCompleted, job.Status)

	docs, err := env.svc.Documents()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, domain.DocumentCompleted, docs[0].Status)
	assert.Zero(t, docs[0].ChunkCount)
	assert.Empty(t, docs[0].VectorIDs)
}

func TestDeleteDocument(t *testing.T) {
	env := newTestEnv(t, llm.NewHashEmbedder(32))
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "Content to index and then delete.")

	snapshot, err := env.svc.Ingest([]string{path})
	require.NoError(t, err)
	waitJob(t, env.svc, snapshot.ID)

	docs, err := env.svc.Documents()
	require.NoError(t, err)
	require.Len(t, docs, 1)

	require.NoError(t, env.svc.DeleteDocument(context.Background(), docs[0].ID))

	docs, err = env.svc.Documents()
	require.NoError(t, err)
	assert.Empty(t, docs)

	vecs, err := env.emb.Embed(context.Background(), []string{"Content to index and then delete."})
	require.NoError(t, err)
	passages, err := env.vec.Search(context.Background(), vecs[0], 5)
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestDeleteDocument_NotFound(t *testing.T) {
	env := newTestEnv(t, llm.NewHashEmbedder(32))

	err := env.svc.DeleteDocument(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Equal(t, fault.KindInvalidInput, fault.Classify(err))
}

func TestJob_Unknown(t *testing.T) {
	env := newTestEnv(t, llm.NewHashEmbedder(32))

	job, err := env.svc.Job("nonexistent")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestHooksAndMetricsObserveBatch(t *testing.T) {
	log := logging.New(nil, "silent")
	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hm := hooks.NewManager(log)
	events := make(chan hooks.Payload, 4)
	record := func(ctx context.Context, p hooks.Payload) error {
		events <- p
		return nil
	}
	hm.On(hooks.EventIngestStarted, "test", record)
	hm.On(hooks.EventIngestFinished, "test", record)

	m := metrics.New(fmt.Sprintf("docent_ingest_test_%d", time.Now().UnixNano()))

	svc := NewService(llm.NewHashEmbedder(16), vector.NewMemoryStore(),
		store.NewDocumentStore(db), store.NewJobStore(db), config.IngestConfig{
			Workers:           1,
			ChunkSize:         50,
			ChunkOverlap:      10,
			AllowedExtensions: []string{".txt"},
		}, log, WithHooks(hm), WithMetrics(m))

	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "A single file to observe end to end.")

	snapshot, err := svc.Ingest([]string{path})
	require.NoError(t, err)
	waitJob(t, svc, snapshot.ID)

	seen := make(map[string]hooks.Payload, 2)
	for len(seen) < 2 {
		select {
		case p := <-events:
			seen[p.Event] = p
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d lifecycle events within 2s", len(seen))
		}
	}
	require.Contains(t, seen, hooks.EventIngestStarted)
	require.Contains(t, seen, hooks.EventIngestFinished)
	assert.Equal(t, snapshot.ID, seen[hooks.EventIngestStarted].Data["job_id"])
	assert.Equal(t, snapshot.ID, seen[hooks.EventIngestFinished].Data["job_id"])
	assert.Equal(t, string(domain.JobCompleted), seen[hooks.EventIngestFinished].Data["status"])

	// The finished event fires after every file counter update.
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestedFiles.WithLabelValues("completed")))
}

// --- Splitter tests ---

func TestSplitter_ShortTextSingleChunk(t *testing.T) {
	sp := NewSplitter(50, 10)
	chunks := sp.Split("  short text  ")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])
}

func TestSplitter_Empty(t *testing.T) {
	sp := NewSplitter(50, 10)
	assert.Nil(t, sp.Split(""))
	assert.Nil(t, sp.Split("   \n\t  "))
}

func TestSplitter_OverlappingChunks(t *testing.T) {
	sp := NewSplitter(50, 10)
	text := strings.Repeat("0123456789", 12) // 120 runes

	chunks := sp.Split(text)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 50)
	assert.Len(t, chunks[1], 50)
	assert.Len(t, chunks[2], 40)

	// Each chunk starts with the last `overlap` runes of its predecessor.
	assert.Equal(t, chunks[0][40:], chunks[1][:10])
	assert.Equal(t, chunks[1][40:], chunks[2][:10])
}

func TestSplitter_RuneSafe(t *testing.T) {
	sp := NewSplitter(50, 10)
	text := strings.Repeat("é", 120)

	chunks := sp.Split(text)
	require.Len(t, chunks, 3)
	for _, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk))
	}
	assert.Equal(t, 50, len([]rune(chunks[0])))
	assert.Equal(t, 40, len([]rune(chunks[2])))
}

func TestSplitter_ClampsBadOverlap(t *testing.T) {
	sp := NewSplitter(10, 20)
	text := strings.Repeat("x", 25)

	chunks := sp.Split(text)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 10)
	assert.Len(t, chunks[2], 5)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding backend down")
}

func (failingEmbedder) Dimensions() int { return 8 }
