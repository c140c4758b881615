package domain

import "time"

// Passage is one retrieved chunk of supporting context.
type Passage struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Rank   int    `json:"rank"`
}

// RetrievalResult carries the passages retrieved for a query. Transient,
// never persisted.
type RetrievalResult struct {
	Query    string    `json:"query"`
	Passages []Passage `json:"passages"`
}

// DocumentStatus is the per-document ingestion outcome.
type DocumentStatus string

const (
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
)

// Document records one ingested file and where its vectors went.
type Document struct {
	ID         string         `json:"id"`
	Filename   string         `json:"filename"`
	Type       string         `json:"type"`
	Status     DocumentStatus `json:"status"`
	ChunkCount int            `json:"chunk_count"`
	VectorIDs  []string       `json:"vector_ids,omitempty"`
	Error      string         `json:"error,omitempty"`
	IngestedAt time.Time      `json:"ingested_at"`
}

// JobStatus is the lifecycle state of an ingestion batch.
type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// IngestionJob tracks one background ingestion batch. Created on the ingest
// request, mutated by the worker, polled by callers, never deleted here.
type IngestionJob struct {
	ID             string    `json:"id"`
	Status         JobStatus `json:"status"`
	TotalFiles     int       `json:"total_files"`
	ProcessedFiles int       `json:"processed_files"`
	DocumentIDs    []string  `json:"document_ids,omitempty"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
