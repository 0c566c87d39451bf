package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/clinforge-labs/protex-core/internal/core/domain"
)

func setupTestStore(t *testing.T) *JobStore {
	t.Helper()
	store, err := NewJobStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("NewJobStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleJob() *domain.Job {
	job := domain.NewJob("cafe01", []string{"sponsor", "phase"})
	job.Status = domain.JobStatusRunning
	job.Progress = 0.5
	job.Fields["sponsor"] = &domain.FieldResult{
		FieldName:  "sponsor",
		Value:      "Heartland Medical Center",
		Confidence: 0.92,
		Status:     domain.FieldStatusResolved,
		Attempts: []domain.ExtractionAttempt{
			{FieldName: "sponsor", Tier: domain.TierInitial, Value: "Heartland Medical Center", Confidence: 0.92, Strategy: "identifier", Cost: 0.01},
		},
	}
	return job
}

func TestJobStore_SaveGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	job := sampleJob()

	if err := store.Save(ctx, job); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != job.ID || got.DocumentHash != "cafe01" {
		t.Errorf("Get() = %+v", got)
	}
	if got.Progress != 0.5 {
		t.Errorf("Progress = %v, want 0.5", got.Progress)
	}
	fr := got.Fields["sponsor"]
	if fr == nil || fr.Value != "Heartland Medical Center" || len(fr.Attempts) != 1 {
		t.Errorf("sponsor result = %+v", fr)
	}
}

func TestJobStore_Get_NotFound(t *testing.T) {
	store := setupTestStore(t)

	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestJobStore_Save_UpdatesExisting(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	job := sampleJob()

	if err := store.Save(ctx, job); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	now := time.Now().UTC()
	job.Status = domain.JobStatusCompleted
	job.Progress = 1.0
	job.CompletedAt = &now
	if err := store.Save(ctx, job); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != domain.JobStatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not persisted")
	}
}

func TestJobStore_List_NewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		job := domain.NewJob("hash", nil)
		job.CreatedAt = time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC)
		if err := store.Save(ctx, job); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	jobs, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("len = %d, want 2", len(jobs))
	}
	if !jobs[0].CreatedAt.After(jobs[1].CreatedAt) {
		t.Errorf("List() not newest first: %v then %v", jobs[0].CreatedAt, jobs[1].CreatedAt)
	}
}

func TestJobStore_Ping(t *testing.T) {
	store := setupTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
