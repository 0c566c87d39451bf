package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/clinforge-labs/protex-core/internal/core/domain"
	"github.com/clinforge-labs/protex-core/internal/core/ports/driven"
)

// Scheduler fans one job out into per-field extraction tasks under a
// global concurrency ceiling shared by all in-flight jobs, and is the
// sole mutator of a job's progress and fields map. Results are folded
// in completion order; folding is commutative, so arrival order never
// changes the final job.
type Scheduler struct {
	sem      *semaphore.Weighted
	synth    *Synthesizer
	jobStore driven.JobStore
	logger   *slog.Logger
}

// SchedulerConfig holds configuration for the Scheduler.
type SchedulerConfig struct {
	// Concurrency is the global ceiling on concurrently running field
	// extractors across all jobs (default 5).
	Concurrency int
	Synthesizer *Synthesizer
	JobStore    driven.JobStore
	Logger      *slog.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	synth := cfg.Synthesizer
	if synth == nil {
		synth = NewSynthesizer(SynthesizerConfig{})
	}
	return &Scheduler{
		sem:      semaphore.NewWeighted(int64(concurrency)),
		synth:    synth,
		jobStore: cfg.JobStore,
		logger:   logger,
	}
}

type fieldOutcome struct {
	name   string
	result *domain.FieldResult
	err    error
}

// Run executes all extractors for one job to completion, folding each
// FieldResult into the job as it arrives. onUpdate receives a cloned
// snapshot after every fold and once at terminal status. Run blocks
// until the job is terminal.
func (s *Scheduler) Run(ctx context.Context, job *domain.Job, extractors map[string]*FieldExtractor, onUpdate func(*domain.Job)) {
	total := len(extractors)
	job.Status = domain.JobStatusRunning
	s.persist(ctx, job)
	s.notify(job, onUpdate)

	s.logger.Info("job started", "job_id", job.ID, "fields", total)
	start := time.Now()

	results := make(chan fieldOutcome, total)
	for name, ex := range extractors {
		go func(name string, ex *FieldExtractor) {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				// Never ran: report the forced terminal state.
				results <- fieldOutcome{name: name, result: ex.forced(), err: err}
				return
			}
			defer s.sem.Release(1)

			res, err := ex.Run(ctx)
			results <- fieldOutcome{name: name, result: res, err: err}
		}(name, ex)
	}

	cancelled := false
	folded := 0
	for i := 0; i < total; i++ {
		out := <-results

		if out.err != nil && errors.Is(context.Cause(ctx), domain.ErrJobCancelled) {
			// Cancelled fields are discarded, not reported.
			cancelled = true
			continue
		}

		// Deadline-forced results fold like any other terminal result:
		// a field failing is not a job failure.
		job.Fields[out.name] = out.result
		folded++
		job.Progress = float64(folded) / float64(total)
		s.persist(ctx, job)
		s.notify(job, onUpdate)
	}

	now := time.Now().UTC()
	job.CompletedAt = &now
	if cancelled {
		job.Status = domain.JobStatusCancelled
		job.Error = domain.ErrJobCancelled.Error()
	} else {
		s.synth.Synthesize(job)
		job.Status = domain.JobStatusCompleted
	}

	// The terminal snapshot must persist even though ctx is likely
	// done (deadline or cancellation).
	s.persist(context.WithoutCancel(ctx), job)
	s.notify(job, onUpdate)

	s.logger.Info("job finished",
		"job_id", job.ID,
		"status", job.Status,
		"overall_confidence", job.OverallConfidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

func (s *Scheduler) persist(ctx context.Context, job *domain.Job) {
	if s.jobStore == nil {
		return
	}
	if err := s.jobStore.Save(ctx, job); err != nil {
		s.logger.Warn("failed to persist job snapshot", "job_id", job.ID, "error", err)
	}
}

func (s *Scheduler) notify(job *domain.Job, onUpdate func(*domain.Job)) {
	if onUpdate != nil {
		onUpdate(job.Clone())
	}
}
