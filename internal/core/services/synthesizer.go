package services

import (
	"sort"

	"github.com/clinforge-labs/protex-core/internal/core/domain"
)

// Synthesizer merges a job's terminal field results into the aggregate
// view: weighted overall confidence, the needs-review flag and the
// observability totals. Synthesis is deterministic and does no I/O;
// field iteration is sorted so equal inputs always produce equal
// output regardless of fold order.
type Synthesizer struct {
	weights         map[string]float64
	required        map[string]bool
	reviewThreshold float64
}

// SynthesizerConfig holds configuration for the Synthesizer.
type SynthesizerConfig struct {
	// Weights reflect field importance in the overall confidence.
	// Unlisted fields weigh 1.0.
	Weights map[string]float64
	// Required fields force the review flag when they end
	// failed/needs_review.
	Required []string
	// ReviewThreshold flags the whole result for review when overall
	// confidence falls below it (default 0.5).
	ReviewThreshold float64
}

// NewSynthesizer creates a new Synthesizer.
func NewSynthesizer(cfg SynthesizerConfig) *Synthesizer {
	required := make(map[string]bool, len(cfg.Required))
	for _, f := range cfg.Required {
		required[f] = true
	}
	threshold := cfg.ReviewThreshold
	if threshold <= 0 {
		threshold = 0.5
	}
	return &Synthesizer{
		weights:         cfg.Weights,
		required:        required,
		reviewThreshold: threshold,
	}
}

// Synthesize computes OverallConfidence, NeedsReview and metadata from
// the job's field results, in place.
func (s *Synthesizer) Synthesize(job *domain.Job) {
	names := make([]string, 0, len(job.Fields))
	for name := range job.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var weightedSum, weightTotal float64
	var attempts, fallbacks int
	var cost float64
	maxTier := domain.WindowTier("")
	review := false

	for _, name := range names {
		fr := job.Fields[name]

		w := 1.0
		if s.weights != nil {
			if override, ok := s.weights[name]; ok {
				w = override
			}
		}
		weightedSum += fr.Confidence * w
		weightTotal += w

		if s.required[name] &&
			(fr.Status == domain.FieldStatusFailed || fr.Status == domain.FieldStatusNeedsReview) {
			review = true
		}

		attempts += len(fr.Attempts)
		cost += fr.TotalCost()
		for _, a := range fr.Attempts {
			if tierRank(a.Tier) > tierRank(maxTier) {
				maxTier = a.Tier
			}
			if len(a.Strategy) > 9 && a.Strategy[:9] == "fallback:" {
				fallbacks++
			}
		}
	}

	if weightTotal > 0 {
		job.OverallConfidence = weightedSum / weightTotal
	}
	if job.OverallConfidence < s.reviewThreshold {
		review = true
	}
	job.NeedsReview = review
	job.Metadata.TotalAttempts = attempts
	job.Metadata.TotalCost = cost
	job.Metadata.FallbacksUsed = fallbacks
	job.Metadata.MaxTierUsed = string(maxTier)
}

func tierRank(t domain.WindowTier) int {
	switch t {
	case domain.TierInitial:
		return 1
	case domain.TierExpanded:
		return 2
	case domain.TierMax:
		return 3
	default:
		return 0
	}
}
