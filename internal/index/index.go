// Package index maintains a local sqlite cache of files seen on the
// remote, so frontends can search synced content without hitting the
// cloud.
package index

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"drivesync/internal/engine"
)

// Record is one indexed file.
type Record struct {
	Path       string
	Name       string
	Size       int64
	ModTime    time.Time
	IsDir      bool
	JobID      string
	RemotePath string
	IndexedAt  time.Time
}

// Recorder is the write surface the sync loops use. The full Index
// satisfies it.
type Recorder interface {
	RecordEntry(jobID, remotePath string, e engine.Entry) error
	DeleteJobFiles(jobID string) error
}

// Index is a sqlite-backed file cache.
type Index struct {
	conn   *sql.DB
	logger *log.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS files (
    path        TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    size        INTEGER NOT NULL DEFAULT 0,
    mod_time    TIMESTAMP,
    is_dir      INTEGER NOT NULL DEFAULT 0,
    job_id      TEXT NOT NULL,
    remote_path TEXT NOT NULL,
    indexed_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_job ON files(job_id);
CREATE INDEX IF NOT EXISTS idx_files_name ON files(name);
`

// Open creates or opens the index database at path.
//
// The database runs in WAL mode for concurrent reads. The caller must
// Close when done.
func Open(path string, logger *log.Logger) (*Index, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[index] ", log.LstdFlags)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pinging index database: %w", err)
	}

	idx := &Index{conn: conn, logger: logger}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("configuring index database: %w", err)
		}
	}
	if err := idx.InitSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return idx, nil
}

// InitSchema creates the files table if it does not exist.
func (i *Index) InitSchema() error {
	if _, err := i.conn.Exec(schema); err != nil {
		return fmt.Errorf("initializing index schema: %w", err)
	}
	return nil
}

// Close checkpoints and closes the database.
func (i *Index) Close() error {
	if i.conn == nil {
		return nil
	}
	if _, err := i.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		i.logger.Printf("wal checkpoint failed: %v", err)
	}
	if err := i.conn.Close(); err != nil {
		return fmt.Errorf("closing index database: %w", err)
	}
	return nil
}

const upsertSQL = `
INSERT INTO files (path, name, size, mod_time, is_dir, job_id, remote_path, indexed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
    name = excluded.name,
    size = excluded.size,
    mod_time = excluded.mod_time,
    is_dir = excluded.is_dir,
    job_id = excluded.job_id,
    remote_path = excluded.remote_path,
    indexed_at = excluded.indexed_at`

// RecordEntry indexes one listing entry under a job.
func (i *Index) RecordEntry(jobID, remotePath string, e engine.Entry) error {
	now := time.Now().UTC()
	fullPath := remotePath + "/" + e.Path
	_, err := i.conn.Exec(upsertSQL,
		fullPath, e.Name, e.Size, e.ModTime, e.IsDir, jobID, remotePath, now)
	if err != nil {
		return fmt.Errorf("indexing %s: %w", fullPath, err)
	}
	return nil
}

// UpsertBatch indexes a whole listing in one transaction.
func (i *Index) UpsertBatch(jobID, remotePath string, entries []engine.Entry) error {
	tx, err := i.conn.Begin()
	if err != nil {
		return fmt.Errorf("starting index batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(upsertSQL)
	if err != nil {
		return fmt.Errorf("preparing index batch: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, e := range entries {
		fullPath := remotePath + "/" + e.Path
		if _, err := stmt.Exec(fullPath, e.Name, e.Size, e.ModTime, e.IsDir, jobID, remotePath, now); err != nil {
			return fmt.Errorf("indexing %s: %w", fullPath, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing index batch: %w", err)
	}
	return nil
}

// DeleteJobFiles drops every record belonging to a job.
func (i *Index) DeleteJobFiles(jobID string) error {
	if _, err := i.conn.Exec("DELETE FROM files WHERE job_id = ?", jobID); err != nil {
		return fmt.Errorf("deleting index records for job %s: %w", jobID, err)
	}
	return nil
}

// Search returns up to limit records whose name contains the substring,
// case-insensitively, ordered by name.
func (i *Index) Search(substring string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := i.conn.Query(
		`SELECT path, name, size, mod_time, is_dir, job_id, remote_path, indexed_at
		 FROM files
		 WHERE name LIKE '%' || ? || '%' COLLATE NOCASE
		 ORDER BY name LIMIT ?`, substring, limit)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var mod, indexed sql.NullTime
		if err := rows.Scan(&r.Path, &r.Name, &r.Size, &mod, &r.IsDir, &r.JobID, &r.RemotePath, &indexed); err != nil {
			return nil, fmt.Errorf("scanning index record: %w", err)
		}
		r.ModTime = mod.Time
		r.IndexedAt = indexed.Time
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountForJob returns how many records a job has in the index.
func (i *Index) CountForJob(jobID string) (int, error) {
	var n int
	err := i.conn.QueryRow("SELECT COUNT(*) FROM files WHERE job_id = ?", jobID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting index records for job %s: %w", jobID, err)
	}
	return n, nil
}

var _ Recorder = (*Index)(nil)
