package scorers

import (
	"regexp"
	"strings"

	"github.com/clinforge-labs/protex-core/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.ConfidenceScorer = (*Identifier)(nil)
	_ driven.ConfidenceScorer = (*Narrative)(nil)
	_ driven.ConfidenceScorer = (*List)(nil)
	_ driven.ConfidenceScorer = (*Pattern)(nil)
	_ driven.ConfidenceScorer = (*Vocabulary)(nil)
	_ driven.ConfidenceScorer = (*Organization)(nil)
)

// Identifier scores short, single-line values. Length bounds give the
// base score; line breaks and filler phrases pull it down.
type Identifier struct {
	MinLen int
	MaxLen int
}

// Score implements ConfidenceScorer.
func (s *Identifier) Score(value string) float64 {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0
	}
	score := 0.8
	if len(v) < s.MinLen || (s.MaxLen > 0 && len(v) > s.MaxLen) {
		score -= 0.4
	}
	if strings.Contains(v, "\n") {
		score -= 0.2
	}
	if looksLikeRefusal(v) {
		return 0.05
	}
	return clamp(score)
}

// Narrative scores prose values by length band: long enough to carry
// content, short enough to be an answer rather than a dump.
type Narrative struct {
	MinLen int
	MaxLen int
}

// Score implements ConfidenceScorer.
func (s *Narrative) Score(value string) float64 {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0
	}
	if looksLikeRefusal(v) {
		return 0.05
	}
	score := 0.5
	if len(v) >= s.MinLen {
		score += 0.25
	}
	if s.MaxLen > 0 && len(v) > s.MaxLen {
		score -= 0.3
	}
	// Sentence structure suggests an actual summary.
	if strings.ContainsAny(v, ".;") {
		score += 0.1
	}
	return clamp(score)
}

// List scores enumerated values: bullet markers, semicolons or numbered
// items each count as one item.
type List struct {
	MinItems int
}

var listMarker = regexp.MustCompile(`(?m)(^\s*[-*\x{2022}]|\d+[.)]\s|;)`)

// Score implements ConfidenceScorer.
func (s *List) Score(value string) float64 {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0
	}
	if looksLikeRefusal(v) {
		return 0.05
	}
	items := len(listMarker.FindAllString(v, -1))
	if items == 0 {
		items = len(strings.Split(v, ","))
	}
	score := 0.45
	if items >= s.MinItems {
		score += 0.3
	}
	if len(v) >= 40 {
		score += 0.1
	}
	return clamp(score)
}

// Pattern scores 1.0 on a full regexp match and near zero otherwise.
// Used for rigidly shaped fields such as registry identifiers.
type Pattern struct {
	re *regexp.Regexp
}

// NewPattern compiles expr into a Pattern scorer. The expression should
// be anchored; matching is case-insensitive.
func NewPattern(expr string) *Pattern {
	return &Pattern{re: regexp.MustCompile(`(?i)` + expr)}
}

// Score implements ConfidenceScorer.
func (s *Pattern) Score(value string) float64 {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0
	}
	if s.re.MatchString(v) {
		return 1.0
	}
	return 0.1
}

// Vocabulary scores 1.0 for exact membership in a known value set,
// 0.6 for a partial overlap, low otherwise.
type Vocabulary struct {
	terms map[string]struct{}
}

// NewVocabulary creates a Vocabulary scorer; matching is
// case-insensitive on trimmed values.
func NewVocabulary(terms ...string) *Vocabulary {
	m := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		m[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return &Vocabulary{terms: m}
}

// Score implements ConfidenceScorer.
func (s *Vocabulary) Score(value string) float64 {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return 0
	}
	if _, ok := s.terms[v]; ok {
		return 1.0
	}
	for t := range s.terms {
		if strings.Contains(v, t) {
			return 0.6
		}
	}
	return 0.15
}

// Organization scores sponsor-shaped values: short names boosted by
// corporate and academic suffixes.
type Organization struct{}

var orgMarkers = []string{
	"inc", "ltd", "llc", "gmbh", "ag", "s.a", "corp", "pharma",
	"pharmaceutical", "therapeutics", "biosciences", "university",
	"hospital", "institute", "medical center", "foundation", "laboratories",
}

// Score implements ConfidenceScorer.
func (s *Organization) Score(value string) float64 {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0
	}
	if looksLikeRefusal(v) {
		return 0.05
	}
	score := 0.55
	if len(v) >= 3 && len(v) <= 120 && !strings.Contains(v, "\n") {
		score += 0.1
	}
	lower := strings.ToLower(v)
	for _, m := range orgMarkers {
		if strings.Contains(lower, m) {
			score += 0.25
			break
		}
	}
	return clamp(score)
}

// looksLikeRefusal catches the common model non-answers so they never
// clear a threshold.
func looksLikeRefusal(v string) bool {
	lower := strings.ToLower(v)
	for _, phrase := range []string{
		"not found", "not specified", "not mentioned", "unknown",
		"n/a", "unable to", "cannot determine", "no information",
	} {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
