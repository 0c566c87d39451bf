// Package sqlite provides a single-node JobStore on an embedded SQLite
// database, for deployments without a PostgreSQL instance.
//
// It uses modernc.org/sqlite, a pure Go SQLite implementation, so no
// cgo toolchain is needed to build it.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/clinforge-labs/protex-core/internal/core/domain"
	"github.com/clinforge-labs/protex-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.JobStore = (*JobStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS extraction_jobs (
    id            TEXT PRIMARY KEY,
    document_hash TEXT NOT NULL,
    status        TEXT NOT NULL,
    payload       TEXT NOT NULL,
    created_at    TIMESTAMP NOT NULL,
    completed_at  TIMESTAMP,
    updated_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_extraction_jobs_created_at ON extraction_jobs(created_at DESC);
`

// JobStore implements driven.JobStore on SQLite.
type JobStore struct {
	db *sql.DB
}

// NewJobStore opens (or creates) the database at path and initializes
// the schema. Use ":memory:" for an ephemeral store.
func NewJobStore(path string) (*JobStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// under concurrent job folds.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &JobStore{db: db}, nil
}

// Save creates or updates a job snapshot.
func (s *JobStore) Save(ctx context.Context, job *domain.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	var completedAt sql.NullTime
	if job.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *job.CompletedAt, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO extraction_jobs (id, document_hash, status, payload, created_at, completed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			payload = excluded.payload,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at
	`,
		job.ID,
		job.DocumentHash,
		string(job.Status),
		string(payload),
		job.CreatedAt,
		completedAt,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// Get returns the job with the given ID.
func (s *JobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM extraction_jobs WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	var job domain.Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// List returns jobs ordered newest first.
func (s *JobStore) List(ctx context.Context, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM extraction_jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		var job domain.Job
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			return nil, fmt.Errorf("unmarshal job row: %w", err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

// Ping checks if the database is reachable.
func (s *JobStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *JobStore) Close() error {
	return s.db.Close()
}
