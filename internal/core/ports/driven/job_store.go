package driven

import (
	"context"

	"github.com/clinforge-labs/protex-core/internal/core/domain"
)

// JobStore persists extraction jobs so Status survives process restarts
// and completed results can be served without re-extraction.
// Implementations can use Postgres (preferred) or SQLite (embedded).
type JobStore interface {
	// Save creates or replaces a job snapshot.
	Save(ctx context.Context, job *domain.Job) error

	// Get retrieves a job by ID. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, id string) (*domain.Job, error)

	// List returns the most recently created jobs, newest first.
	List(ctx context.Context, limit int) ([]*domain.Job, error)

	// Ping checks if the backing store is healthy.
	Ping(ctx context.Context) error

	// Close cleans up resources.
	Close() error
}
