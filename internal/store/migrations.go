package store

// migration is one schema change. SQL may hold several statements.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is append-only and ordered by Version; migrate applies
// everything above the database's recorded high-water mark.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create documents",
		SQL: `
			CREATE TABLE documents (
				id           TEXT PRIMARY KEY,
				filename     TEXT NOT NULL,
				type         TEXT NOT NULL DEFAULT '',
				status       TEXT NOT NULL,
				chunk_count  INTEGER NOT NULL DEFAULT 0,
				vector_ids   TEXT,
				error        TEXT NOT NULL DEFAULT '',
				ingested_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_documents_status ON documents (status);
			CREATE INDEX idx_documents_ingested ON documents (ingested_at);
		`,
	},
	{
		Version: 2,
		Name:    "create ingestion jobs",
		SQL: `
			CREATE TABLE ingestion_jobs (
				id               TEXT PRIMARY KEY,
				status           TEXT NOT NULL,
				total_files      INTEGER NOT NULL DEFAULT 0,
				processed_files  INTEGER NOT NULL DEFAULT 0,
				document_ids     TEXT,
				error            TEXT NOT NULL DEFAULT '',
				created_at       TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_jobs_status ON ingestion_jobs (status);
		`,
	},
}
