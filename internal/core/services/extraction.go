package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clinforge-labs/protex-core/internal/core/domain"
	"github.com/clinforge-labs/protex-core/internal/core/ports/driven"
	"github.com/clinforge-labs/protex-core/internal/core/ports/driving"
)

// Ensure extractionService implements ExtractionService
var _ driving.ExtractionService = (*extractionService)(nil)

// extractionService implements the driving port: it turns a submitted
// document into a running job and serves snapshots of that job while
// the scheduler folds field results into it.
type extractionService struct {
	textExtractors []driven.TextExtractor
	cache          driven.Cache
	completer      driven.Completer
	scorers        driven.ScorerRegistry
	jobStore       driven.JobStore

	mapper    *DocumentMapper
	windows   *WindowEngine
	scheduler *Scheduler

	fields     map[string]domain.FieldSpec
	strategies map[domain.FieldClass]domain.ContextStrategy

	jobTimeout    time.Duration
	retries       int
	backoffBase   time.Duration
	backoffCap    time.Duration
	textTTL       time.Duration
	attemptTTL    time.Duration
	completionTTL time.Duration

	logger *slog.Logger

	mu      sync.Mutex
	running map[string]*jobHandle
}

// ExtractionConfig holds dependencies for the extraction service.
type ExtractionConfig struct {
	// TextExtractors are tried in order; the first whose Supports
	// accepts the content wins.
	TextExtractors []driven.TextExtractor
	Cache          driven.Cache
	Completer      driven.Completer
	Scorers        driven.ScorerRegistry
	JobStore       driven.JobStore

	Mapper    *DocumentMapper
	Windows   *WindowEngine
	Scheduler *Scheduler

	Fields     map[string]domain.FieldSpec                  // default: BuiltinFields
	Strategies map[domain.FieldClass]domain.ContextStrategy // default: DefaultStrategies

	JobTimeout          time.Duration // default 5m
	MaxTransientRetries int
	BackoffBase         time.Duration
	BackoffCap          time.Duration

	StructureTTL  time.Duration // extracted text cache TTL
	AttemptTTL    time.Duration
	CompletionTTL time.Duration

	Logger *slog.Logger
}

// NewExtractionService creates the extraction service.
func NewExtractionService(cfg ExtractionConfig) driving.ExtractionService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fields := cfg.Fields
	if fields == nil {
		fields = domain.BuiltinFields()
	}
	strategies := cfg.Strategies
	if strategies == nil {
		strategies = domain.DefaultStrategies()
	}
	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	textTTL := cfg.StructureTTL
	if textTTL <= 0 {
		textTTL = 24 * time.Hour
	}
	return &extractionService{
		textExtractors: cfg.TextExtractors,
		cache:          cfg.Cache,
		completer:      cfg.Completer,
		scorers:        cfg.Scorers,
		jobStore:       cfg.JobStore,
		mapper:         cfg.Mapper,
		windows:        cfg.Windows,
		scheduler:      cfg.Scheduler,
		fields:         fields,
		strategies:     strategies,
		jobTimeout:     timeout,
		retries:        cfg.MaxTransientRetries,
		backoffBase:    cfg.BackoffBase,
		backoffCap:     cfg.BackoffCap,
		textTTL:        textTTL,
		attemptTTL:     cfg.AttemptTTL,
		completionTTL:  cfg.CompletionTTL,
		logger:         logger,
		running:        make(map[string]*jobHandle),
	}
}

// Submit implements ExtractionService.
func (s *extractionService) Submit(ctx context.Context, content []byte, fields []string, opts driving.SubmitOptions) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("%w: empty document", domain.ErrInvalidInput)
	}
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: no fields requested", domain.ErrInvalidInput)
	}
	specs := make([]domain.FieldSpec, 0, len(fields))
	for _, name := range fields {
		spec, ok := s.fields[name]
		if !ok {
			return "", fmt.Errorf("%w: %s", domain.ErrUnknownField, name)
		}
		specs = append(specs, spec)
	}

	hash := domain.HashBytes(content)
	doc, err := s.renderDocument(ctx, hash, content)
	if err != nil {
		return "", err
	}

	docMap, err := s.mapper.Scan(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("scan document: %w", err)
	}

	job := domain.NewJob(hash, fields)
	if err := s.jobStore.Save(ctx, job); err != nil {
		return "", fmt.Errorf("persist job: %w", err)
	}

	extractors := make(map[string]*FieldExtractor, len(specs))
	for _, spec := range specs {
		strategy, ok := s.strategies[spec.Class]
		if !ok {
			strategy = domain.DefaultStrategies()[domain.ClassNarrative]
		}
		if override, ok := opts.Strategies[spec.Name]; ok {
			strategy = override
		}
		extractors[spec.Name] = NewFieldExtractor(ExtractorConfig{
			Document:            doc,
			Map:                 docMap,
			Spec:                spec,
			Strategy:            strategy,
			Threshold:           opts.Thresholds[spec.Name],
			Windows:             s.windows,
			Completer:           s.completer,
			Cache:               s.cache,
			Scorer:              s.scorers.For(spec.Name, spec.Class),
			Logger:              s.logger,
			MaxTransientRetries: s.retries,
			BackoffBase:         s.backoffBase,
			BackoffCap:          s.backoffCap,
			AttemptTTL:          s.attemptTTL,
			CompletionTTL:       s.completionTTL,
		})
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.jobTimeout
	}

	// The job outlives the submitting request: it runs on its own
	// context, cancellable via Cancel and bounded by the job deadline.
	jobCtx, cancel := context.WithCancelCause(context.Background())
	jobCtx, cancelTimeout := context.WithTimeout(jobCtx, timeout)

	handle := newJobHandle(job.Clone(), cancel)
	s.mu.Lock()
	s.running[job.ID] = handle
	s.mu.Unlock()

	go func() {
		defer cancelTimeout()
		defer cancel(nil)

		s.scheduler.Run(jobCtx, job, extractors, func(snapshot *domain.Job) {
			handle.publish(snapshot)
		})

		s.mu.Lock()
		delete(s.running, job.ID)
		s.mu.Unlock()
		handle.finish()
	}()

	s.logger.Info("job submitted",
		"job_id", job.ID,
		"document_hash", hash,
		"fields", len(fields),
		"timeout", timeout,
	)
	return job.ID, nil
}

// renderDocument renders content to text, caching the rendering by
// content hash so resubmissions of the same bytes skip extraction.
func (s *extractionService) renderDocument(ctx context.Context, hash string, content []byte) (*domain.Document, error) {
	key := domain.TextKey(hash)
	if data, ok := s.cache.Get(ctx, key); ok {
		var cached driven.ExtractedText
		if err := json.Unmarshal(data, &cached); err == nil {
			return domain.NewDocument(hash, cached.Text, cached.PageOffsets, cached.HasTables, len(content)), nil
		}
	}

	var extractor driven.TextExtractor
	for _, te := range s.textExtractors {
		if te.Supports(content) {
			extractor = te
			break
		}
	}
	if extractor == nil {
		return nil, fmt.Errorf("%w: unsupported document format", domain.ErrTextExtraction)
	}

	extracted, err := extractor.Extract(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("render document: %w", err)
	}

	if data, err := json.Marshal(extracted); err == nil {
		s.cache.Set(ctx, key, data, s.textTTL)
	}
	return domain.NewDocument(hash, extracted.Text, extracted.PageOffsets, extracted.HasTables, len(content)), nil
}

// Status implements ExtractionService.
func (s *extractionService) Status(ctx context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	handle, ok := s.running[jobID]
	s.mu.Unlock()
	if ok {
		if snap := handle.latest(); snap != nil {
			return snap, nil
		}
	}
	return s.jobStore.Get(ctx, jobID)
}

// Watch implements ExtractionService.
func (s *extractionService) Watch(jobID string) (<-chan *domain.Job, func(), error) {
	s.mu.Lock()
	handle, ok := s.running[jobID]
	s.mu.Unlock()
	if ok {
		ch, stop := handle.subscribe()
		return ch, stop, nil
	}

	// Not in flight: serve the stored snapshot as a single, final emit.
	job, err := s.jobStore.Get(context.Background(), jobID)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan *domain.Job, 1)
	ch <- job
	close(ch)
	return ch, func() {}, nil
}

// Cancel implements ExtractionService.
func (s *extractionService) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	handle, ok := s.running[jobID]
	s.mu.Unlock()
	if ok {
		handle.cancel(domain.ErrJobCancelled)
		s.logger.Info("job cancelled", "job_id", jobID)
		return nil
	}

	job, err := s.jobStore.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: %s", domain.ErrJobTerminal, job.Status)
	}
	return domain.ErrNotFound
}

// jobHandle tracks one in-flight job: its freshest snapshot, the
// cancellation hook and the Watch subscribers.
type jobHandle struct {
	cancel context.CancelCauseFunc

	mu       sync.Mutex
	snapshot *domain.Job
	subs     map[int]chan *domain.Job
	nextSub  int
	done     bool
}

func newJobHandle(initial *domain.Job, cancel context.CancelCauseFunc) *jobHandle {
	return &jobHandle{
		cancel:   cancel,
		snapshot: initial,
		subs:     make(map[int]chan *domain.Job),
	}
}

func (h *jobHandle) latest() *domain.Job {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.snapshot == nil {
		return nil
	}
	return h.snapshot.Clone()
}

// publish records the snapshot and forwards it to subscribers. Slow
// subscribers lose intermediate updates, never the terminal one.
func (h *jobHandle) publish(snapshot *domain.Job) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.snapshot = snapshot
	for _, ch := range h.subs {
		if snapshot.Status.Terminal() {
			// Make room for the terminal snapshot if the subscriber
			// is lagging; it must never be dropped.
			select {
			case ch <- snapshot.Clone():
			default:
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- snapshot.Clone():
				default:
				}
			}
			continue
		}
		select {
		case ch <- snapshot.Clone():
		default:
		}
	}
}

// finish closes all subscriber channels after the terminal publish.
func (h *jobHandle) finish() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.done = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

func (h *jobHandle) subscribe() (<-chan *domain.Job, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan *domain.Job, 16)
	if h.snapshot != nil {
		ch <- h.snapshot.Clone()
	}
	if h.done {
		close(ch)
		return ch, func() {}
	}

	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch

	stop := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			close(c)
			delete(h.subs, id)
		}
	}
	return ch, stop
}
