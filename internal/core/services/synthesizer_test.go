package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinforge-labs/protex-core/internal/core/domain"
)

func synthJob(fields map[string]*domain.FieldResult) *domain.Job {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	job := domain.NewJob("deadbeef", names)
	job.Fields = fields
	return job
}

func TestSynthesizeWeightedMean(t *testing.T) {
	synth := NewSynthesizer(SynthesizerConfig{
		Weights: map[string]float64{"sponsor": 2.0},
	})
	job := synthJob(map[string]*domain.FieldResult{
		"sponsor": {FieldName: "sponsor", Confidence: 0.9, Status: domain.FieldStatusResolved},
		"phase":   {FieldName: "phase", Confidence: 0.6, Status: domain.FieldStatusResolved},
	})

	synth.Synthesize(job)

	// (0.9*2 + 0.6*1) / 3
	assert.InDelta(t, 0.8, job.OverallConfidence, 1e-9)
	assert.False(t, job.NeedsReview)
}

func TestSynthesizeIsOrderIndependent(t *testing.T) {
	results := func() map[string]*domain.FieldResult {
		return map[string]*domain.FieldResult{
			"sponsor":    {FieldName: "sponsor", Confidence: 0.91, Status: domain.FieldStatusResolved},
			"phase":      {FieldName: "phase", Confidence: 0.43, Status: domain.FieldStatusNeedsReview},
			"conditions": {FieldName: "conditions", Confidence: 0.77, Status: domain.FieldStatusResolved},
			"nct_id":     {FieldName: "nct_id", Confidence: 0.99, Status: domain.FieldStatusResolved},
		}
	}
	synth := NewSynthesizer(SynthesizerConfig{Weights: map[string]float64{"nct_id": 3}})

	first := synthJob(results())
	synth.Synthesize(first)

	// Re-synthesize repeatedly over fresh maps; Go map iteration order
	// varies per run, the output must not.
	for i := 0; i < 10; i++ {
		job := synthJob(results())
		synth.Synthesize(job)
		require.Equal(t, first.OverallConfidence, job.OverallConfidence, "iteration %d", i)
		require.Equal(t, first.NeedsReview, job.NeedsReview)
	}
}

func TestSynthesizeFlagsRequiredFieldFailure(t *testing.T) {
	synth := NewSynthesizer(SynthesizerConfig{Required: []string{"sponsor"}})
	job := synthJob(map[string]*domain.FieldResult{
		"sponsor": {FieldName: "sponsor", Status: domain.FieldStatusFailed},
		"phase":   {FieldName: "phase", Confidence: 0.95, Status: domain.FieldStatusResolved},
	})

	synth.Synthesize(job)

	assert.True(t, job.NeedsReview, "a failed required field must flag the job")
}

func TestSynthesizeFlagsLowOverallConfidence(t *testing.T) {
	synth := NewSynthesizer(SynthesizerConfig{ReviewThreshold: 0.5})
	job := synthJob(map[string]*domain.FieldResult{
		"phase":      {FieldName: "phase", Confidence: 0.4, Status: domain.FieldStatusResolved},
		"conditions": {FieldName: "conditions", Confidence: 0.45, Status: domain.FieldStatusResolved},
	})

	synth.Synthesize(job)

	assert.True(t, job.NeedsReview, "overall confidence below threshold must flag the job")
}

func TestSynthesizeAssemblesMetadata(t *testing.T) {
	synth := NewSynthesizer(SynthesizerConfig{})
	job := synthJob(map[string]*domain.FieldResult{
		"sponsor": {
			FieldName:  "sponsor",
			Confidence: 0.9,
			Status:     domain.FieldStatusResolved,
			Attempts: []domain.ExtractionAttempt{
				{Tier: domain.TierInitial, Strategy: "identifier", Cost: 0.01},
				{Tier: domain.TierExpanded, Strategy: "identifier", Cost: 0.02},
				{Tier: domain.TierMax, Strategy: "fallback:cover_page", Cost: 0.03, Confidence: 0.9},
			},
		},
		"phase": {
			FieldName:  "phase",
			Confidence: 0.8,
			Status:     domain.FieldStatusResolved,
			Attempts: []domain.ExtractionAttempt{
				{Tier: domain.TierInitial, Strategy: "identifier", Cost: 0.01, Confidence: 0.8},
			},
		},
	})

	synth.Synthesize(job)

	assert.Equal(t, 4, job.Metadata.TotalAttempts)
	assert.InDelta(t, 0.07, job.Metadata.TotalCost, 1e-9)
	assert.Equal(t, 1, job.Metadata.FallbacksUsed)
	assert.Equal(t, string(domain.TierMax), job.Metadata.MaxTierUsed)
}
