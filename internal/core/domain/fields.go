package domain

import "sort"

// FallbackSpec is one alternative extraction strategy in a field's
// ordered fallback chain, tried after every window tier has failed to
// reach the field's confidence threshold.
type FallbackSpec struct {
	Name string `json:"name"`
	// AnchorKeywords locate the fallback's own anchor section. Ignored
	// when CoverPage is set.
	AnchorKeywords []string `json:"anchor_keywords,omitempty"`
	// CoverPage anchors the attempt at the top of the document instead
	// of a detected section.
	CoverPage   bool   `json:"cover_page,omitempty"`
	Instruction string `json:"instruction"`
}

// FieldSpec describes one extractable field: where to look for it, how
// to ask the completer about it, and how strictly to score the answer.
type FieldSpec struct {
	Name           string       `json:"name"`
	Class          FieldClass   `json:"class"`
	Threshold      float64      `json:"threshold"`
	AnchorKeywords []string     `json:"anchor_keywords"`
	Instruction    string       `json:"instruction"`
	Fallbacks      []FallbackSpec `json:"fallbacks,omitempty"`
}

// BuiltinFields returns the field catalogue for clinical-trial
// protocols. Thresholds here are defaults; submit options may override
// them per job.
func BuiltinFields() map[string]FieldSpec {
	return map[string]FieldSpec{
		"sponsor": {
			Name:           "sponsor",
			Class:          ClassIdentifier,
			Threshold:      0.75,
			AnchorKeywords: []string{"sponsor"},
			Instruction: "Identify the trial sponsor: the organization funding and " +
				"responsible for the study. Return the organization name exactly as written.",
			Fallbacks: []FallbackSpec{
				{
					Name:           "pi_institution",
					AnchorKeywords: []string{"principal investigator", "investigator"},
					Instruction: "No explicit sponsor was found. Identify the institution " +
						"affiliated with the principal investigator; that institution acts as sponsor.",
				},
				{
					Name:      "cover_page",
					CoverPage: true,
					Instruction: "This is the cover page of a clinical trial protocol. " +
						"Identify the organization most likely to be the trial sponsor.",
				},
			},
		},
		"conditions": {
			Name:           "conditions",
			Class:          ClassNarrative,
			Threshold:      0.7,
			AnchorKeywords: []string{"condition", "indication", "disease", "background"},
			Instruction: "List the medical conditions or indications this trial studies, " +
				"comma-separated.",
			Fallbacks: []FallbackSpec{
				{
					Name:      "cover_page",
					CoverPage: true,
					Instruction: "From this protocol cover page, identify the medical " +
						"condition under study, typically part of the trial title.",
				},
			},
		},
		"eligibility_criteria": {
			Name:           "eligibility_criteria",
			Class:          ClassList,
			Threshold:      0.7,
			AnchorKeywords: []string{"inclusion criteria", "exclusion criteria", "eligibility"},
			Instruction: "Summarise the inclusion and exclusion criteria for trial " +
				"participation. Preserve numeric bounds (age, lab values) exactly.",
		},
		"primary_outcomes": {
			Name:           "primary_outcomes",
			Class:          ClassNarrative,
			Threshold:      0.7,
			AnchorKeywords: []string{"primary outcome", "primary endpoint", "outcome measures", "objectives"},
			Instruction: "State the primary outcome measures of the trial, including " +
				"the timeframe over which each is assessed.",
		},
		"enrollment": {
			Name:           "enrollment",
			Class:          ClassIdentifier,
			Threshold:      0.75,
			AnchorKeywords: []string{"enrollment", "sample size", "number of subjects", "participants"},
			Instruction: "State the planned number of enrolled participants as a bare integer.",
		},
		"phase": {
			Name:           "phase",
			Class:          ClassIdentifier,
			Threshold:      0.8,
			AnchorKeywords: []string{"phase", "study design"},
			Instruction: "State the trial phase (e.g. \"Phase 1\", \"Phase 2/3\").",
			Fallbacks: []FallbackSpec{
				{
					Name:      "cover_page",
					CoverPage: true,
					Instruction: "From this protocol cover page, identify the trial phase " +
						"if stated in the title or header.",
				},
			},
		},
		"nct_id": {
			Name:           "nct_id",
			Class:          ClassIdentifier,
			Threshold:      0.85,
			AnchorKeywords: []string{"nct", "clinicaltrials.gov", "registry", "protocol number"},
			Instruction: "Find the ClinicalTrials.gov registry identifier, format " +
				"NCT followed by 8 digits.",
			Fallbacks: []FallbackSpec{
				{
					Name:      "cover_page",
					CoverPage: true,
					Instruction: "Find the ClinicalTrials.gov identifier (NCT########) on " +
						"this protocol cover page.",
				},
			},
		},
	}
}

// FieldNames returns the built-in field names in sorted order.
func FieldNames() []string {
	fields := BuiltinFields()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
