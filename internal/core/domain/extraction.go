package domain

import (
	"time"

	"github.com/google/uuid"
)

// NewJobID creates a unique identifier for an extraction job.
func NewJobID() string {
	return uuid.NewString()
}

// WindowTier identifies one of the progressively larger context windows
// an extractor may request for a field.
type WindowTier string

const (
	TierInitial  WindowTier = "initial"
	TierExpanded WindowTier = "expanded"
	TierMax      WindowTier = "max"
)

// Tiers lists the window tiers in escalation order.
var Tiers = []WindowTier{TierInitial, TierExpanded, TierMax}

// FieldStatus represents the terminal outcome of a field extraction
type FieldStatus string

const (
	FieldStatusResolved      FieldStatus = "resolved"
	FieldStatusLowConfidence FieldStatus = "low_confidence"
	FieldStatusFailed        FieldStatus = "failed"
	FieldStatusNeedsReview   FieldStatus = "needs_review"
)

// JobStatus represents the current state of an extraction job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is a terminal job state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// ExtractionAttempt records one completer call made for a field. The
// ordered sequence of attempts forms the field's audit trail.
type ExtractionAttempt struct {
	FieldName  string     `json:"field_name"`
	Tier       WindowTier `json:"tier"`
	Value      string     `json:"value,omitempty"`
	Confidence float64    `json:"confidence"`
	Strategy   string     `json:"strategy"`
	Cost       float64    `json:"cost"`
	Error      string     `json:"error,omitempty"`
}

// FieldResult is the terminal outcome for one field.
// Immutable once produced by an extractor.
type FieldResult struct {
	FieldName  string              `json:"field_name"`
	Value      string              `json:"value,omitempty"`
	Confidence float64             `json:"confidence"`
	Status     FieldStatus         `json:"status"`
	Attempts   []ExtractionAttempt `json:"attempts"`
}

// Resolved reports whether the field reached its confidence threshold.
func (r *FieldResult) Resolved() bool {
	return r.Status == FieldStatusResolved
}

// TotalCost sums the completer cost across all attempts.
func (r *FieldResult) TotalCost() float64 {
	var total float64
	for _, a := range r.Attempts {
		total += a.Cost
	}
	return total
}

// JobMetadata carries observability totals assembled by the synthesizer.
type JobMetadata struct {
	RequestedFields []string `json:"requested_fields"`
	TotalAttempts   int      `json:"total_attempts"`
	TotalCost       float64  `json:"total_cost"`
	MaxTierUsed     string   `json:"max_tier_used,omitempty"`
	FallbacksUsed   int      `json:"fallbacks_used"`
}

// Job is the unit of work created per submitted document. It doubles as
// the ExtractionResult returned by Status: progress and fields are folded
// in by the scheduler until the job reaches a terminal status, after
// which it is immutable.
type Job struct {
	ID                string                  `json:"id"`
	DocumentHash      string                  `json:"document_hash"`
	Status            JobStatus               `json:"status"`
	Progress          float64                 `json:"progress"`
	Fields            map[string]*FieldResult `json:"fields"`
	OverallConfidence float64                 `json:"overall_confidence"`
	NeedsReview       bool                    `json:"needs_review"`
	Metadata          JobMetadata             `json:"metadata"`
	Error             string                  `json:"error,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
	CompletedAt       *time.Time              `json:"completed_at,omitempty"`
}

// NewJob creates a pending job for the given document and field set.
func NewJob(documentHash string, fields []string) *Job {
	return &Job{
		ID:           NewJobID(),
		DocumentHash: documentHash,
		Status:       JobStatusPending,
		Fields:       make(map[string]*FieldResult, len(fields)),
		Metadata:     JobMetadata{RequestedFields: fields},
		CreatedAt:    time.Now().UTC(),
	}
}

// Clone returns a deep-enough copy safe to hand to subscribers while the
// scheduler keeps folding results into the original.
func (j *Job) Clone() *Job {
	cp := *j
	cp.Fields = make(map[string]*FieldResult, len(j.Fields))
	for name, fr := range j.Fields {
		frCopy := *fr
		frCopy.Attempts = append([]ExtractionAttempt(nil), fr.Attempts...)
		cp.Fields[name] = &frCopy
	}
	if j.Metadata.RequestedFields != nil {
		cp.Metadata.RequestedFields = append([]string(nil), j.Metadata.RequestedFields...)
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
