package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clinforge-labs/protex-core/internal/core/domain"
	"github.com/clinforge-labs/protex-core/internal/core/ports/driven"
	"github.com/clinforge-labs/protex-core/internal/core/ports/driven/mocks"
	"github.com/clinforge-labs/protex-core/internal/core/ports/driving"
)

// stubRegistry hands every field the same scorer.
type stubRegistry struct{ scorer driven.ConfidenceScorer }

func (stubRegistry) Register(string, driven.ConfidenceScorer) {}
func (r stubRegistry) For(string, domain.FieldClass) driven.ConfidenceScorer {
	return r.scorer
}

// countingExtractor wraps MockTextExtractor and counts Extract calls.
type countingExtractor struct {
	mocks.MockTextExtractor
	extracts int
}

func (c *countingExtractor) Extract(ctx context.Context, content []byte) (*driven.ExtractedText, error) {
	c.extracts++
	return c.MockTextExtractor.Extract(ctx, content)
}

type serviceFixture struct {
	svc       driving.ExtractionService
	cache     *mocks.MockCache
	store     *mocks.MockJobStore
	extractor *countingExtractor
}

func newServiceFixture(t *testing.T, completer driven.Completer) *serviceFixture {
	t.Helper()

	cache := mocks.NewMockCache()
	store := mocks.NewMockJobStore()
	extractor := &countingExtractor{}

	fields := make(map[string]domain.FieldSpec)
	for _, spec := range schedulerSpecs() {
		fields[spec.Name] = spec
	}

	svc := NewExtractionService(ExtractionConfig{
		TextExtractors: []driven.TextExtractor{extractor},
		Cache:          cache,
		Completer:      completer,
		Scorers:        stubRegistry{scorer: scoreFunc(func(string) float64 { return 1.0 })},
		JobStore:       store,
		Mapper:         NewDocumentMapper(MapperConfig{Cache: cache}),
		Windows:        NewWindowEngine(cache, 0),
		Scheduler:      NewScheduler(SchedulerConfig{Synthesizer: NewSynthesizer(SynthesizerConfig{}), JobStore: store}),
		Fields:         fields,
	})
	return &serviceFixture{svc: svc, cache: cache, store: store, extractor: extractor}
}

func waitForTerminal(t *testing.T, svc driving.ExtractionService, jobID string) *domain.Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, err := svc.Status(context.Background(), jobID)
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal status in time")
	return nil
}

func resolvingCompleter() *mocks.ScriptedCompleter {
	return mocks.NewScriptedCompleter(
		mocks.Rule{Contains: "MARKER_ALPHA", Response: `{"value": "Heartland Medical Center", "confidence": 0.9}`, Cost: 0.01},
		mocks.Rule{Contains: "MARKER_BETA", Response: `{"value": "120", "confidence": 0.85}`, Cost: 0.01},
		mocks.Rule{Contains: "MARKER_GAMMA", Response: `{"value": "reduction in migraine days", "confidence": 0.8}`, Cost: 0.01},
	)
}

func TestSubmitRunsJobToCompletion(t *testing.T) {
	fx := newServiceFixture(t, resolvingCompleter())

	jobID, err := fx.svc.Submit(context.Background(), []byte(protocolText),
		[]string{"alpha", "beta", "gamma"}, driving.SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if jobID == "" {
		t.Fatal("Submit() returned empty job ID")
	}

	job := waitForTerminal(t, fx.svc, jobID)
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("Status = %q, want completed", job.Status)
	}
	if len(job.Fields) != 3 {
		t.Fatalf("len(Fields) = %d, want 3", len(job.Fields))
	}
	if got := job.Fields["alpha"].Value; got != "Heartland Medical Center" {
		t.Errorf("alpha = %q", got)
	}
	if job.DocumentHash != domain.HashBytes([]byte(protocolText)) {
		t.Errorf("DocumentHash = %q, want content hash", job.DocumentHash)
	}
}

func TestSubmitValidatesInput(t *testing.T) {
	fx := newServiceFixture(t, resolvingCompleter())
	ctx := context.Background()

	tests := []struct {
		name    string
		content []byte
		fields  []string
		wantErr error
	}{
		{"empty document", nil, []string{"alpha"}, domain.ErrInvalidInput},
		{"no fields", []byte("text"), nil, domain.ErrInvalidInput},
		{"unknown field", []byte("text"), []string{"alpha", "bogus"}, domain.ErrUnknownField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := fx.svc.Submit(ctx, tt.content, tt.fields, driving.SubmitOptions{}); !errors.Is(err, tt.wantErr) {
				t.Errorf("Submit() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubmitReusesRenderedTextByHash(t *testing.T) {
	fx := newServiceFixture(t, resolvingCompleter())
	ctx := context.Background()

	first, err := fx.svc.Submit(ctx, []byte(protocolText), []string{"alpha"}, driving.SubmitOptions{})
	if err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	waitForTerminal(t, fx.svc, first)

	second, err := fx.svc.Submit(ctx, []byte(protocolText), []string{"alpha"}, driving.SubmitOptions{})
	if err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}
	waitForTerminal(t, fx.svc, second)

	if fx.extractor.extracts != 1 {
		t.Errorf("text extractions = %d, want 1 (second submit served from cache)", fx.extractor.extracts)
	}
}

func TestSubmitFailsWhenTextExtractionFails(t *testing.T) {
	fx := newServiceFixture(t, resolvingCompleter())
	fx.extractor.Fail = true

	_, err := fx.svc.Submit(context.Background(), []byte(protocolText), []string{"alpha"}, driving.SubmitOptions{})
	if !errors.Is(err, domain.ErrTextExtraction) {
		t.Fatalf("Submit() error = %v, want ErrTextExtraction", err)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	fx := newServiceFixture(t, resolvingCompleter())
	if _, err := fx.svc.Status(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Status() error = %v, want ErrNotFound", err)
	}
}

func TestWatchStreamsProgressAndCloses(t *testing.T) {
	fx := newServiceFixture(t, resolvingCompleter())

	jobID, err := fx.svc.Submit(context.Background(), []byte(protocolText),
		[]string{"alpha", "beta"}, driving.SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	ch, stop, err := fx.svc.Watch(jobID)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer stop()

	var last *domain.Job
	timeout := time.After(3 * time.Second)
	for {
		select {
		case job, ok := <-ch:
			if !ok {
				if last == nil || !last.Status.Terminal() {
					t.Fatalf("channel closed before a terminal snapshot; last = %+v", last)
				}
				if last.Progress != 1.0 {
					t.Errorf("final Progress = %v, want 1.0", last.Progress)
				}
				return
			}
			if last != nil && job.Progress < last.Progress {
				t.Errorf("progress regressed: %v -> %v", last.Progress, job.Progress)
			}
			last = job
		case <-timeout:
			t.Fatal("watch did not complete in time")
		}
	}
}

func TestWatchFinishedJobEmitsOneSnapshot(t *testing.T) {
	fx := newServiceFixture(t, resolvingCompleter())

	jobID, err := fx.svc.Submit(context.Background(), []byte(protocolText), []string{"alpha"}, driving.SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitForTerminal(t, fx.svc, jobID)

	ch, stop, err := fx.svc.Watch(jobID)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer stop()

	snapshot, ok := <-ch
	if !ok {
		t.Fatal("expected one snapshot before close")
	}
	if !snapshot.Status.Terminal() {
		t.Errorf("snapshot Status = %q, want terminal", snapshot.Status)
	}
	if _, ok := <-ch; ok {
		t.Error("expected channel to close after the final snapshot")
	}
}

func TestWatchUnknownJob(t *testing.T) {
	fx := newServiceFixture(t, resolvingCompleter())
	if _, _, err := fx.svc.Watch("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Watch() error = %v, want ErrNotFound", err)
	}
}

func TestCancelRunningJob(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	completer := completeFunc(func(ctx context.Context, prompt string) (*driven.Completion, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return nil, ctx.Err()
	})
	fx := newServiceFixture(t, completer)

	jobID, err := fx.svc.Submit(context.Background(), []byte(protocolText),
		[]string{"alpha", "beta"}, driving.SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	<-started
	if err := fx.svc.Cancel(context.Background(), jobID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	job := waitForTerminal(t, fx.svc, jobID)
	if job.Status != domain.JobStatusCancelled {
		t.Fatalf("Status = %q, want cancelled", job.Status)
	}
	if len(job.Fields) != 0 {
		t.Errorf("len(Fields) = %d, want 0 (in-flight results discarded)", len(job.Fields))
	}

	// A second cancel hits the stored terminal job.
	if err := fx.svc.Cancel(context.Background(), jobID); !errors.Is(err, domain.ErrJobTerminal) {
		t.Errorf("second Cancel() error = %v, want ErrJobTerminal", err)
	}
}

func TestJobTimeoutCompletesWithFailedFields(t *testing.T) {
	completer := completeFunc(func(ctx context.Context, prompt string) (*driven.Completion, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	fx := newServiceFixture(t, completer)

	jobID, err := fx.svc.Submit(context.Background(), []byte(protocolText),
		[]string{"alpha"}, driving.SubmitOptions{Timeout: 30 * time.Millisecond})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	job := waitForTerminal(t, fx.svc, jobID)
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("Status = %q, want completed at deadline", job.Status)
	}
	if got := job.Fields["alpha"].Status; got != domain.FieldStatusFailed {
		t.Errorf("alpha Status = %q, want failed", got)
	}
}
