package domain

import (
	"testing"
)

func TestJobStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobStatusPending, false},
		{JobStatusRunning, false},
		{JobStatusCompleted, true},
		{JobStatusFailed, true},
		{JobStatusCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestNewJob(t *testing.T) {
	job := NewJob("hash-1", []string{"sponsor", "phase"})

	if job.ID == "" {
		t.Error("expected non-empty job ID")
	}
	if job.Status != JobStatusPending {
		t.Errorf("expected pending status, got %s", job.Status)
	}
	if len(job.Metadata.RequestedFields) != 2 {
		t.Errorf("expected 2 requested fields, got %d", len(job.Metadata.RequestedFields))
	}

	other := NewJob("hash-1", nil)
	if other.ID == job.ID {
		t.Error("expected unique job IDs")
	}
}

func TestFieldResult_TotalCost(t *testing.T) {
	r := &FieldResult{
		Attempts: []ExtractionAttempt{
			{Cost: 120},
			{Cost: 0},
			{Cost: 310},
		},
	}
	if got := r.TotalCost(); got != 430 {
		t.Errorf("expected total cost 430, got %v", got)
	}
}

func TestJob_Clone_Isolated(t *testing.T) {
	job := NewJob("hash-1", []string{"sponsor"})
	job.Fields["sponsor"] = &FieldResult{
		FieldName:  "sponsor",
		Value:      "Acme Pharma Inc.",
		Confidence: 0.9,
		Status:     FieldStatusResolved,
		Attempts:   []ExtractionAttempt{{FieldName: "sponsor", Tier: TierInitial, Confidence: 0.9}},
	}

	cp := job.Clone()

	// Mutating the clone must not leak into the original.
	cp.Fields["sponsor"].Value = "changed"
	cp.Fields["sponsor"].Attempts[0].Confidence = 0.1
	cp.Fields["phase"] = &FieldResult{FieldName: "phase"}

	if job.Fields["sponsor"].Value != "Acme Pharma Inc." {
		t.Error("clone mutation leaked into original field value")
	}
	if job.Fields["sponsor"].Attempts[0].Confidence != 0.9 {
		t.Error("clone mutation leaked into original attempts")
	}
	if _, ok := job.Fields["phase"]; ok {
		t.Error("clone map insertion leaked into original")
	}
}
