package scorers

import (
	"sync"

	"github.com/clinforge-labs/protex-core/internal/core/domain"
	"github.com/clinforge-labs/protex-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ScorerRegistry = (*Registry)(nil)

// Registry implements ScorerRegistry with name-over-class resolution:
// a scorer registered for a field name shadows the one registered for
// its class, which shadows the registry default.
type Registry struct {
	mu       sync.RWMutex
	scorers  map[string]driven.ConfidenceScorer
	fallback driven.ConfidenceScorer
}

// NewRegistry creates a registry with the given default scorer.
func NewRegistry(fallback driven.ConfidenceScorer) *Registry {
	if fallback == nil {
		fallback = &Narrative{MinLen: 1, MaxLen: 4000}
	}
	return &Registry{
		scorers:  make(map[string]driven.ConfidenceScorer),
		fallback: fallback,
	}
}

// Register binds a scorer to a field name or field class key.
func (r *Registry) Register(key string, scorer driven.ConfidenceScorer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scorers[key] = scorer
}

// For returns the scorer for the given field, never nil.
func (r *Registry) For(fieldName string, class domain.FieldClass) driven.ConfidenceScorer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.scorers[fieldName]; ok {
		return s
	}
	if s, ok := r.scorers[string(class)]; ok {
		return s
	}
	return r.fallback
}

// NewDefaultRegistry wires the built-in scorers for the protocol field
// catalogue: class heuristics plus tighter per-field patterns where the
// value shape is known.
func NewDefaultRegistry() *Registry {
	r := NewRegistry(nil)

	r.Register(string(domain.ClassIdentifier), &Identifier{MinLen: 2, MaxLen: 200})
	r.Register(string(domain.ClassNarrative), &Narrative{MinLen: 20, MaxLen: 4000})
	r.Register(string(domain.ClassList), &List{MinItems: 2})

	r.Register("nct_id", NewPattern(`^NCT\d{8}$`))
	r.Register("enrollment", NewPattern(`^\d{1,7}$`))
	r.Register("phase", NewVocabulary(
		"early phase 1", "phase 1", "phase 1/2", "phase 2", "phase 2/3",
		"phase 3", "phase 4", "n/a", "not applicable",
	))
	r.Register("sponsor", &Organization{})

	return r
}

// clamp bounds a score to [0,1].
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
