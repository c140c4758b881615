// Package vector abstracts the similarity store behind retrieval and
// ingestion. Records carry their chunk text alongside the embedding, so
// search answers with ready-to-assemble passages and no second lookup.
package vector

import (
	"context"

	"github.com/soyeahso/docent/internal/domain"
)

// Record is one embedded chunk.
type Record struct {
	ID         string
	DocumentID string
	Source     string
	Text       string
	Vector     []float32
}

// Store is the similarity index. Upsert replaces records by ID;
// DeleteByDocument drops every chunk of one ingested document.
type Store interface {
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, vec []float32, topK int) ([]domain.Passage, error)
	DeleteByDocument(ctx context.Context, documentID string) error
	Health(ctx context.Context) error
	Close() error
}
