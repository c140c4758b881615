package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/docent/internal/domain"
	"github.com/soyeahso/docent/internal/logging"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// --- schema & migrations ---

func TestOpen_InMemory(t *testing.T) {
	db := testDB(t)
	assert.NotNil(t, db)
	assert.NoError(t, db.Ping(context.Background()))
}

func TestOpen_CreatesDataDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "docent.db")
	log := logging.New(nil, "silent")

	db, err := Open(path, log)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, path)
}

func TestMigrationsRecordEveryVersion(t *testing.T) {
	db := testDB(t)

	rows, err := db.sql.Query("SELECT version FROM schema_migrations ORDER BY version")
	require.NoError(t, err)
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		require.NoError(t, rows.Scan(&v))
		versions = append(versions, v)
	}
	require.NoError(t, rows.Err())

	require.Len(t, versions, len(migrations))
	for i, m := range migrations {
		assert.Equal(t, m.Version, versions[i])
	}
}

func TestMigrationsSecondRunAppliesNothing(t *testing.T) {
	db := testDB(t)

	// The high-water mark already matches the last migration, so a
	// second pass must not re-run or re-record anything.
	require.NoError(t, db.migrate())

	var count int
	err := db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestSchemaHasDomainTables(t *testing.T) {
	db := testDB(t)

	for _, table := range []string{"documents", "ingestion_jobs"} {
		var name string
		err := db.sql.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

// --- document store ---

func TestDocumentStore_SaveAndGet(t *testing.T) {
	db := testDB(t)
	ds := NewDocumentStore(db)

	err := ds.Save(&domain.Document{
		ID:         "doc-1",
		Filename:   "resume.md",
		Type:       ".md",
		Status:     domain.DocumentCompleted,
		ChunkCount: 3,
		VectorIDs:  []string{"doc-1-0", "doc-1-1", "doc-1-2"},
	})
	require.NoError(t, err)

	got, err := ds.Get("doc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "resume.md", got.Filename)
	assert.Equal(t, ".md", got.Type)
	assert.Equal(t, domain.DocumentCompleted, got.Status)
	assert.Equal(t, 3, got.ChunkCount)
	assert.Equal(t, []string{"doc-1-0", "doc-1-1", "doc-1-2"}, got.VectorIDs)
	assert.False(t, got.IngestedAt.IsZero())
}

func TestDocumentStore_Save_DefaultsIngestedAt(t *testing.T) {
	db := testDB(t)
	ds := NewDocumentStore(db)

	doc := &domain.Document{ID: "doc-1", Filename: "notes.txt", Status: domain.DocumentProcessing}
	err := ds.Save(doc)
	require.NoError(t, err)

	assert.False(t, doc.IngestedAt.IsZero())
}

func TestDocumentStore_Save_Upsert(t *testing.T) {
	db := testDB(t)
	ds := NewDocumentStore(db)

	require.NoError(t, ds.Save(&domain.Document{
		ID:       "doc-1",
		Filename: "notes.txt",
		Status:   domain.DocumentProcessing,
	}))

	// Worker finishes the file and rewrites the record with the outcome.
	require.NoError(t, ds.Save(&domain.Document{
		ID:         "doc-1",
		Filename:   "notes.txt",
		Status:     domain.DocumentCompleted,
		ChunkCount: 5,
		VectorIDs:  []string{"doc-1-0"},
	}))

	docs, err := ds.List()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, domain.DocumentCompleted, docs[0].Status)
	assert.Equal(t, 5, docs[0].ChunkCount)
	assert.Equal(t, []string{"doc-1-0"}, docs[0].VectorIDs)
}

func TestDocumentStore_Save_FailedWithError(t *testing.T) {
	db := testDB(t)
	ds := NewDocumentStore(db)

	require.NoError(t, ds.Save(&domain.Document{
		ID:       "doc-1",
		Filename: "broken.md",
		Status:   domain.DocumentFailed,
		Error:    "read file: permission denied",
	}))

	got, err := ds.Get("doc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.DocumentFailed, got.Status)
	assert.Equal(t, "read file: permission denied", got.Error)
	assert.Nil(t, got.VectorIDs)
}

func TestDocumentStore_Get_NotFound(t *testing.T) {
	db := testDB(t)
	ds := NewDocumentStore(db)

	got, err := ds.Get("nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDocumentStore_List_MostRecentFirst(t *testing.T) {
	db := testDB(t)
	ds := NewDocumentStore(db)

	now := time.Now()
	require.NoError(t, ds.Save(&domain.Document{
		ID: "doc-old", Filename: "old.txt", Status: domain.DocumentCompleted,
		IngestedAt: now.Add(-time.Hour),
	}))
	require.NoError(t, ds.Save(&domain.Document{
		ID: "doc-new", Filename: "new.txt", Status: domain.DocumentCompleted,
		IngestedAt: now,
	}))

	docs, err := ds.List()
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "doc-new", docs[0].ID)
	assert.Equal(t, "doc-old", docs[1].ID)
}

func TestDocumentStore_List_Empty(t *testing.T) {
	db := testDB(t)
	ds := NewDocumentStore(db)

	docs, err := ds.List()
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDocumentStore_Delete(t *testing.T) {
	db := testDB(t)
	ds := NewDocumentStore(db)

	require.NoError(t, ds.Save(&domain.Document{ID: "doc-1", Filename: "a.txt", Status: domain.DocumentCompleted}))
	require.NoError(t, ds.Delete("doc-1"))

	got, err := ds.Get("doc-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDocumentStore_Delete_Absent(t *testing.T) {
	db := testDB(t)
	ds := NewDocumentStore(db)

	assert.NoError(t, ds.Delete("nonexistent"))
}

// --- job store ---

func TestJobStore_CreateAndGet(t *testing.T) {
	db := testDB(t)
	js := NewJobStore(db)

	err := js.Create(&domain.IngestionJob{
		ID:         "job-1",
		Status:     domain.JobProcessing,
		TotalFiles: 3,
	})
	require.NoError(t, err)

	got, err := js.Get("job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.JobProcessing, got.Status)
	assert.Equal(t, 3, got.TotalFiles)
	assert.Equal(t, 0, got.ProcessedFiles)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestJobStore_Get_NotFound(t *testing.T) {
	db := testDB(t)
	js := NewJobStore(db)

	got, err := js.Get("nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestJobStore_Update_Progress(t *testing.T) {
	db := testDB(t)
	js := NewJobStore(db)

	job := &domain.IngestionJob{ID: "job-1", Status: domain.JobProcessing, TotalFiles: 2}
	require.NoError(t, js.Create(job))

	job.ProcessedFiles = 2
	job.Status = domain.JobCompleted
	job.DocumentIDs = []string{"doc-1", "doc-2"}
	require.NoError(t, js.Update(job))

	got, err := js.Get("job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.JobCompleted, got.Status)
	assert.Equal(t, 2, got.ProcessedFiles)
	assert.Equal(t, 2, got.TotalFiles)
	assert.Equal(t, []string{"doc-1", "doc-2"}, got.DocumentIDs)
}

func TestJobStore_Update_FailedWithError(t *testing.T) {
	db := testDB(t)
	js := NewJobStore(db)

	job := &domain.IngestionJob{ID: "job-1", Status: domain.JobProcessing, TotalFiles: 1}
	require.NoError(t, js.Create(job))

	job.Status = domain.JobFailed
	job.ProcessedFiles = 1
	job.Error = "1 of 1 files failed"
	require.NoError(t, js.Update(job))

	got, err := js.Get("job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.JobFailed, got.Status)
	assert.Equal(t, "1 of 1 files failed", got.Error)
}

func TestJobStore_Update_NotFound(t *testing.T) {
	db := testDB(t)
	js := NewJobStore(db)

	err := js.Update(&domain.IngestionJob{ID: "ghost", Status: domain.JobCompleted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
