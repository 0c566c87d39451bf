package driving

import (
	"context"
	"time"

	"github.com/clinforge-labs/protex-core/internal/core/domain"
)

// SubmitOptions tunes one extraction job. Zero values mean service
// defaults.
type SubmitOptions struct {
	// Thresholds overrides the per-field confidence threshold.
	Thresholds map[string]float64

	// Strategies overrides the context strategy per field.
	Strategies map[string]domain.ContextStrategy

	// Timeout is the overall job deadline. Extractors still running at
	// the deadline are forced to a terminal failed state; the job still
	// completes.
	Timeout time.Duration
}

// ExtractionService is the driving port for the extraction core: submit
// a document, poll or watch its job, cancel it.
type ExtractionService interface {
	// Submit registers a document for extraction of the requested
	// fields and returns the job ID. The document is hashed, rendered
	// to text and mapped before Submit returns; field extraction runs
	// asynchronously. A text-extraction failure surfaces here.
	Submit(ctx context.Context, content []byte, fields []string, opts SubmitOptions) (string, error)

	// Status returns the current snapshot of a job. The snapshot is
	// safe to retain; it never mutates after return.
	Status(ctx context.Context, jobID string) (*domain.Job, error)

	// Watch returns a channel that receives a job snapshot whenever
	// progress changes, plus a final snapshot at terminal status, after
	// which the channel closes. The returned stop function releases the
	// subscription.
	Watch(jobID string) (<-chan *domain.Job, func(), error)

	// Cancel aborts a running job. Fields still in flight are
	// discarded, not reported. Returns domain.ErrJobTerminal if the job
	// already finished.
	Cancel(ctx context.Context, jobID string) error
}
