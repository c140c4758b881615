package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/docent/internal/domain"
)

// JobStore persists ingestion batch progress. One row per batch; the
// background worker is the only writer after creation, callers poll.
type JobStore struct {
	db *DB
}

// NewJobStore creates a job store using the given database.
func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

// Create inserts a new job record.
func (s *JobStore) Create(job *domain.IngestionJob) error {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = now
	}

	docIDs, err := marshalIDs(job.DocumentIDs)
	if err != nil {
		return fmt.Errorf("marshal document ids for job %s: %w", job.ID, err)
	}

	_, err = s.db.sql.Exec(
		`INSERT INTO ingestion_jobs (id, status, total_files, processed_files, document_ids, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Status, job.TotalFiles, job.ProcessedFiles, docIDs, job.Error,
		job.CreatedAt.Format(time.DateTime), job.UpdatedAt.Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	return nil
}

// Update rewrites a job's mutable fields and stamps UpdatedAt. The
// file total is fixed at creation and never touched here.
func (s *JobStore) Update(job *domain.IngestionJob) error {
	job.UpdatedAt = time.Now()

	docIDs, err := marshalIDs(job.DocumentIDs)
	if err != nil {
		return fmt.Errorf("marshal document ids for job %s: %w", job.ID, err)
	}

	res, err := s.db.sql.Exec(
		`UPDATE ingestion_jobs
		 SET status = ?, processed_files = ?, document_ids = ?, error = ?, updated_at = ?
		 WHERE id = ?`,
		job.Status, job.ProcessedFiles, docIDs, job.Error,
		job.UpdatedAt.Format(time.DateTime), job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update job %s: not found", job.ID)
	}
	return nil
}

// Get returns a job by ID, or nil if not found.
func (s *JobStore) Get(id string) (*domain.IngestionJob, error) {
	var job domain.IngestionJob
	var docIDs sql.NullString
	var createdAt, updatedAt string

	err := s.db.sql.QueryRow(
		`SELECT id, status, total_files, processed_files, document_ids, error, created_at, updated_at
		 FROM ingestion_jobs WHERE id = ?`, id,
	).Scan(
		&job.ID, &job.Status, &job.TotalFiles, &job.ProcessedFiles,
		&docIDs, &job.Error, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	job.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	job.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
	job.DocumentIDs = unmarshalIDs(docIDs)
	return &job, nil
}
