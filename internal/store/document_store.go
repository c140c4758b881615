package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/docent/internal/domain"
)

// DocumentStore persists records of ingested documents. The chunk text
// itself lives in the vector store; this registry tracks provenance and
// outcome per file.
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a document store using the given database.
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Save inserts a document record or replaces an existing one with the
// same ID. The ingestion worker calls it when a file enters processing
// and again with the outcome.
func (s *DocumentStore) Save(doc *domain.Document) error {
	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = time.Now()
	}

	vectorIDs, err := marshalIDs(doc.VectorIDs)
	if err != nil {
		return fmt.Errorf("marshal vector ids for %s: %w", doc.ID, err)
	}

	_, err = s.db.sql.Exec(
		`INSERT INTO documents (id, filename, type, status, chunk_count, vector_ids, error, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   filename = excluded.filename,
		   type = excluded.type,
		   status = excluded.status,
		   chunk_count = excluded.chunk_count,
		   vector_ids = excluded.vector_ids,
		   error = excluded.error,
		   ingested_at = excluded.ingested_at`,
		doc.ID, doc.Filename, doc.Type, doc.Status, doc.ChunkCount,
		vectorIDs, doc.Error, doc.IngestedAt.Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	return nil
}

// Get returns a document by ID, or nil if not found.
func (s *DocumentStore) Get(id string) (*domain.Document, error) {
	var doc domain.Document
	var vectorIDs sql.NullString
	var ingestedAt string

	err := s.db.sql.QueryRow(
		`SELECT id, filename, type, status, chunk_count, vector_ids, error, ingested_at
		 FROM documents WHERE id = ?`, id,
	).Scan(
		&doc.ID, &doc.Filename, &doc.Type, &doc.Status,
		&doc.ChunkCount, &vectorIDs, &doc.Error, &ingestedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}

	doc.IngestedAt, _ = time.Parse(time.DateTime, ingestedAt)
	doc.VectorIDs = unmarshalIDs(vectorIDs)
	return &doc, nil
}

// List returns all document records, most recently ingested first.
func (s *DocumentStore) List() ([]domain.Document, error) {
	rows, err := s.db.sql.Query(
		`SELECT id, filename, type, status, chunk_count, vector_ids, error, ingested_at
		 FROM documents ORDER BY ingested_at DESC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var doc domain.Document
		var vectorIDs sql.NullString
		var ingestedAt string

		if err := rows.Scan(
			&doc.ID, &doc.Filename, &doc.Type, &doc.Status,
			&doc.ChunkCount, &vectorIDs, &doc.Error, &ingestedAt,
		); err != nil {
			continue
		}
		doc.IngestedAt, _ = time.Parse(time.DateTime, ingestedAt)
		doc.VectorIDs = unmarshalIDs(vectorIDs)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Delete removes a document record. Deleting an absent ID is a no-op;
// the caller checks existence first when it matters.
func (s *DocumentStore) Delete(id string) error {
	if _, err := s.db.sql.Exec(`DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

func marshalIDs(ids []string) (sql.NullString, error) {
	if len(ids) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalIDs(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	var ids []string
	_ = json.Unmarshal([]byte(s.String), &ids)
	return ids
}
