package domain

// FieldClass groups fields that share a context strategy and a default
// confidence scorer.
type FieldClass string

const (
	// ClassIdentifier covers short, pattern-shaped values: registry IDs,
	// phase labels, sponsor names, enrollment counts.
	ClassIdentifier FieldClass = "identifier"
	// ClassNarrative covers prose values: eligibility criteria, outcome
	// descriptions, condition summaries.
	ClassNarrative FieldClass = "narrative"
	// ClassList covers enumerated values such as criteria bullet lists.
	ClassList FieldClass = "list"
)

// WindowSpan is the number of lines taken either side of an anchor.
type WindowSpan struct {
	LinesBefore int `json:"lines_before" toml:"lines_before"`
	LinesAfter  int `json:"lines_after" toml:"lines_after"`
}

// ContextStrategy is the named tuple of window sizes for one field class.
// Chosen once per field at extractor creation, immutable afterwards.
type ContextStrategy struct {
	Name        string     `json:"name"`
	Initial     WindowSpan `json:"initial"`
	Expanded    WindowSpan `json:"expanded"`
	Max         WindowSpan `json:"max"`
	MaxAttempts int        `json:"max_attempts"`
}

// Span returns the window span for the given tier.
func (s ContextStrategy) Span(tier WindowTier) WindowSpan {
	switch tier {
	case TierExpanded:
		return s.Expanded
	case TierMax:
		return s.Max
	default:
		return s.Initial
	}
}

// DefaultStrategies returns the built-in strategy per field class.
// Identifier fields live close to their anchors; narrative fields need
// room to capture full paragraphs.
func DefaultStrategies() map[FieldClass]ContextStrategy {
	return map[FieldClass]ContextStrategy{
		ClassIdentifier: {
			Name:        string(ClassIdentifier),
			Initial:     WindowSpan{LinesBefore: 2, LinesAfter: 8},
			Expanded:    WindowSpan{LinesBefore: 5, LinesAfter: 25},
			Max:         WindowSpan{LinesBefore: 10, LinesAfter: 80},
			MaxAttempts: 3,
		},
		ClassNarrative: {
			Name:        string(ClassNarrative),
			Initial:     WindowSpan{LinesBefore: 2, LinesAfter: 30},
			Expanded:    WindowSpan{LinesBefore: 5, LinesAfter: 90},
			Max:         WindowSpan{LinesBefore: 10, LinesAfter: 250},
			MaxAttempts: 3,
		},
		ClassList: {
			Name:        string(ClassList),
			Initial:     WindowSpan{LinesBefore: 1, LinesAfter: 40},
			Expanded:    WindowSpan{LinesBefore: 4, LinesAfter: 120},
			Max:         WindowSpan{LinesBefore: 8, LinesAfter: 300},
			MaxAttempts: 3,
		},
	}
}
