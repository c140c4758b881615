// Package ingest runs document ingestion batches: validate paths, load
// and chunk text, embed, index, record per-document outcomes. Each
// batch runs on its own background goroutines, detached from the
// caller, and is polled through its IngestionJob record.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

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

// Service ingests documents and answers registry queries.
type Service struct {
	embedder llm.Embedder
	vectors  vector.Store
	docs     *store.DocumentStore
	jobs     *store.JobStore
	splitter *Splitter
	workers  int
	allowed  map[string]bool
	metrics  *metrics.Metrics
	hooks    *hooks.Manager
	log      *logging.Logger
}

// Option configures optional collaborators on the service.
type Option func(*Service)

// WithMetrics sets the metrics instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithHooks sets the hook manager for batch lifecycle events.
func WithHooks(hm *hooks.Manager) Option {
	return func(s *Service) { s.hooks = hm }
}

// NewService wires the ingestion pipeline.
func NewService(embedder llm.Embedder, vectors vector.Store, docs *store.DocumentStore, jobs *store.JobStore, cfg config.IngestConfig, log *logging.Logger, opts ...Option) *Service {
	allowed := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[strings.ToLower(ext)] = true
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	s := &Service{
		embedder: embedder,
		vectors:  vectors,
		docs:     docs,
		jobs:     jobs,
		splitter: NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		workers:  workers,
		allowed:  allowed,
		log:      log.Sub("ingest"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest validates the batch and starts its background worker. Invalid
// paths are skipped with a warning and never become documents. The
// returned job snapshot is what callers poll against.
func (s *Service) Ingest(paths []string) (*domain.IngestionJob, error) {
	var valid []string
	for _, path := range paths {
		if err := s.validate(path); err != nil {
			s.log.Warn().Str("path", path).Err(err).Msg("skipping invalid file")
			continue
		}
		valid = append(valid, path)
	}
	if len(valid) == 0 {
		return nil, fault.Invalid("no valid files to process")
	}

	job := &domain.IngestionJob{
		ID:         uuid.NewString(),
		Status:     domain.JobProcessing,
		TotalFiles: len(valid),
	}
	if err := s.jobs.Create(job); err != nil {
		return nil, fmt.Errorf("create ingestion job: %w", err)
	}

	s.log.Info().Str("job", job.ID).Int("files", len(valid)).Msg("ingestion started")
	if s.hooks != nil {
		s.hooks.EmitAsync(context.Background(), hooks.EventIngestStarted, map[string]any{
			"job_id":      job.ID,
			"total_files": job.TotalFiles,
		})
	}

	snapshot := *job
	go s.run(job, valid)
	return &snapshot, nil
}

// Job returns a batch record, or nil when unknown.
func (s *Service) Job(id string) (*domain.IngestionJob, error) {
	return s.jobs.Get(id)
}

// Documents lists the registry, most recently ingested first.
func (s *Service) Documents() ([]domain.Document, error) {
	return s.docs.List()
}

// DeleteDocument removes a document's vectors and then its registry
// row. Vectors go first: a leftover registry row is visible and
// re-deletable, orphaned vectors are not.
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	doc, err := s.docs.Get(id)
	if err != nil {
		return err
	}
	if doc == nil {
		return fault.Invalid("document not found: " + id)
	}

	if err := s.vectors.DeleteByDocument(ctx, id); err != nil {
		return fault.Wrap(fault.KindUnavailable, "failed to delete document vectors", err)
	}
	if err := s.docs.Delete(id); err != nil {
		return err
	}

	s.log.Info().Str("document", id).Str("filename", doc.Filename).Msg("document deleted")
	return nil
}

// run drives one batch to completion. Progress is written to the job
// store as files finish; the terminal status is failed iff any file
// failed.
func (s *Service) run(job *domain.IngestionJob, paths []string) {
	ctx := context.Background()

	var (
		mu     sync.Mutex
		failed int
	)

	queue := make(chan string)
	var wg sync.WaitGroup
	workers := s.workers
	if workers > len(paths) {
		workers = len(paths)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range queue {
				doc := s.processFile(ctx, path)

				mu.Lock()
				job.ProcessedFiles++
				job.DocumentIDs = append(job.DocumentIDs, doc.ID)
				if doc.Status == domain.DocumentFailed {
					failed++
				}
				if err := s.jobs.Update(job); err != nil {
					s.log.Error().Err(err).Str("job", job.ID).Msg("failed to record progress")
				}
				mu.Unlock()
			}
		}()
	}

	for _, path := range paths {
		queue <- path
	}
	close(queue)
	wg.Wait()

	if failed > 0 {
		job.Status = domain.JobFailed
		job.Error = fmt.Sprintf("%d of %d files failed", failed, job.TotalFiles)
	} else {
		job.Status = domain.JobCompleted
	}
	if err := s.jobs.Update(job); err != nil {
		s.log.Error().Err(err).Str("job", job.ID).Msg("failed to record outcome")
	}

	s.log.Info().
		Str("job", job.ID).
		Str("status", string(job.Status)).
		Int("files", job.TotalFiles).
		Int("failed", failed).
		Msg("ingestion finished")
	if s.hooks != nil {
		s.hooks.EmitAsync(ctx, hooks.EventIngestFinished, map[string]any{
			"job_id": job.ID,
			"status": string(job.Status),
			"failed": failed,
		})
	}
}

// processFile runs one file through load, split, embed, index. It
// always returns a document record; failures are written to it, never
// raised, so one bad file cannot sink the batch.
func (s *Service) processFile(ctx context.Context, path string) *domain.Document {
	doc := &domain.Document{
		ID:       uuid.NewString(),
		Filename: filepath.Base(path),
		Type:     fileExt(path),
		Status:   domain.DocumentProcessing,
	}
	if err := s.docs.Save(doc); err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("failed to record document")
	}

	if err := s.index(ctx, doc, path); err != nil {
		s.log.Error().Err(err).Str("path", path).Str("document", doc.ID).Msg("file ingestion failed")
		doc.Status = domain.DocumentFailed
		doc.Error = err.Error()
	} else {
		doc.Status = domain.DocumentCompleted
	}
	s.metrics.FileIngested(string(doc.Status))

	if err := s.docs.Save(doc); err != nil {
		s.log.Error().Err(err).Str("document", doc.ID).Msg("failed to record document outcome")
	}
	return doc
}

// index is the fallible part of processFile. On success it fills in
// the document's chunk count and vector IDs.
func (s *Service) index(ctx context.Context, doc *domain.Document, path string) error {
	text, err := readText(path)
	if err != nil {
		return err
	}

	chunks := s.splitter.Split(text)
	if len(chunks) == 0 {
		// An empty or whitespace-only file indexes nothing.
		return nil
	}

	vecs, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vecs) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(chunks))
	}

	records := make([]vector.Record, len(chunks))
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		id := fmt.Sprintf("%s-%d", doc.ID, i)
		ids[i] = id
		records[i] = vector.Record{
			ID:         id,
			DocumentID: doc.ID,
			Source:     doc.Filename,
			Text:       chunk,
			Vector:     vecs[i],
		}
	}
	if err := s.vectors.Upsert(ctx, records); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}

	doc.ChunkCount = len(chunks)
	doc.VectorIDs = ids
	return nil
}

// validate checks existence and the extension allow-list.
func (s *Service) validate(path string) error {
	if path == "" {
		return errors.New("empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("is a directory")
	}
	if ext := fileExt(path); !s.allowed[ext] {
		return fmt.Errorf("unsupported file type %q", ext)
	}
	return nil
}
