package driven

import "github.com/clinforge-labs/protex-core/internal/core/domain"

// ConfidenceScorer estimates the plausibility of an extracted value in
// [0,1]. Scorers are pure: pattern shape, length bounds and vocabulary
// membership, no I/O.
type ConfidenceScorer interface {
	// Score returns the confidence for a candidate value. An empty
	// value always scores 0.
	Score(value string) float64
}

// ScorerRegistry resolves the scorer for a field. Resolution order is
// field name, then field class, then a registry default, so specific
// fields can override their class heuristic.
type ScorerRegistry interface {
	// Register binds a scorer to a field name or field class key.
	Register(key string, scorer ConfidenceScorer)

	// For returns the scorer for the given field, never nil.
	For(fieldName string, class domain.FieldClass) ConfidenceScorer
}
