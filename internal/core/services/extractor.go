package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/clinforge-labs/protex-core/internal/core/domain"
	"github.com/clinforge-labs/protex-core/internal/core/ports/driven"
)

// extractorState is the state of one field extraction run.
type extractorState int

const (
	stateInitial extractorState = iota
	stateExpanding
	stateFallingBack
	stateResolved
	stateFailed
)

// completionSchema validates the JSON shape every field prompt asks the
// completer to return. Anything that fails here is a malformed
/// response: scored zero and never retried with the same prompt.
var completionSchema = jsonschema.MustCompileString("completion.json", `{
	"type": "object",
	"required": ["value"],
	"properties": {
		"value": {"type": ["string", "number", "null"]},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1}
	}
}`)

// coverSpan is the ad-hoc window used by cover-page fallbacks.
var coverSpan = domain.WindowSpan{LinesBefore: 0, LinesAfter: 40}

// FieldExtractor runs the escalate/fallback protocol for one
// (document, field) pair: extract from the smallest window that yields
// acceptable confidence, escalate tiers on demand, then walk the
// fallback chain. One instance per field per job; not reusable.
type FieldExtractor struct {
	doc       *domain.Document
	docMap    *domain.DocumentMap
	spec      domain.FieldSpec
	strategy  domain.ContextStrategy
	threshold float64

	windows   *WindowEngine
	completer driven.Completer
	cache     driven.Cache
	scorer    driven.ConfidenceScorer
	logger    *slog.Logger

	maxRetries  int
	backoffBase time.Duration
	backoffCap  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error

	attemptTTL    time.Duration
	completionTTL time.Duration

	state    extractorState
	attempts []domain.ExtractionAttempt
}

// ExtractorConfig holds dependencies and tuning for one FieldExtractor.
type ExtractorConfig struct {
	Document  *domain.Document
	Map       *domain.DocumentMap
	Spec      domain.FieldSpec
	Strategy  domain.ContextStrategy
	Threshold float64 // 0 means the field's default

	Windows   *WindowEngine
	Completer driven.Completer
	Cache     driven.Cache
	Scorer    driven.ConfidenceScorer
	Logger    *slog.Logger

	MaxTransientRetries int           // per completer call (default 2)
	BackoffBase         time.Duration // default 200ms
	BackoffCap          time.Duration // default 5s
	Sleep               func(ctx context.Context, d time.Duration) error

	AttemptTTL    time.Duration // extraction-domain cache TTL
	CompletionTTL time.Duration // completion-domain cache TTL
}

// NewFieldExtractor creates an extractor in the INITIAL state.
func NewFieldExtractor(cfg ExtractorConfig) *FieldExtractor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = cfg.Spec.Threshold
	}
	retries := cfg.MaxTransientRetries
	if retries <= 0 {
		retries = 2
	}
	base := cfg.BackoffBase
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	cap := cfg.BackoffCap
	if cap <= 0 {
		cap = 5 * time.Second
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	attemptTTL := cfg.AttemptTTL
	if attemptTTL <= 0 {
		attemptTTL = time.Hour
	}
	completionTTL := cfg.CompletionTTL
	if completionTTL <= 0 {
		completionTTL = time.Hour
	}
	return &FieldExtractor{
		doc:           cfg.Document,
		docMap:        cfg.Map,
		spec:          cfg.Spec,
		strategy:      cfg.Strategy,
		threshold:     threshold,
		windows:       cfg.Windows,
		completer:     cfg.Completer,
		cache:         cfg.Cache,
		scorer:        cfg.Scorer,
		logger:        logger.With("field", cfg.Spec.Name),
		maxRetries:    retries,
		backoffBase:   base,
		backoffCap:    cap,
		sleep:         sleep,
		attemptTTL:    attemptTTL,
		completionTTL: completionTTL,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes the state machine to a terminal state and returns the
// FieldResult exactly once. When ctx ends first, Run returns the forced
// result alongside the context error; the scheduler decides whether to
// fold it (deadline) or discard it (cancellation).
func (e *FieldExtractor) Run(ctx context.Context) (*domain.FieldResult, error) {
	anchor := e.anchorLine()

	// Tier escalation is monotonic: a larger tier is never followed by
	// a smaller one.
	tiersTried := 0
	for _, tier := range domain.Tiers {
		if tiersTried >= e.strategy.MaxAttempts {
			break
		}
		if err := ctx.Err(); err != nil {
			return e.forced(), err
		}
		if tier != domain.TierInitial {
			e.state = stateExpanding
		}
		tiersTried++

		window := e.windows.Window(ctx, e.doc, e.spec.Name, anchor, tier, e.strategy)
		attempt, err := e.attempt(ctx, tier, e.strategy.Name, e.spec.Instruction, window)
		if err != nil {
			return e.forced(), err
		}
		if attempt.Confidence >= e.threshold {
			e.state = stateResolved
			return e.result(domain.FieldStatusResolved, attempt), nil
		}
	}

	// All tiers exhausted below threshold: walk the fallback chain.
	e.state = stateFallingBack
	for _, fb := range e.spec.Fallbacks {
		if err := ctx.Err(); err != nil {
			return e.forced(), err
		}
		window, ok := e.fallbackWindow(fb)
		if !ok {
			e.logger.Debug("fallback anchor not found, skipping", "fallback", fb.Name)
			continue
		}
		attempt, err := e.attempt(ctx, domain.TierMax, "fallback:"+fb.Name, fb.Instruction, window)
		if err != nil {
			return e.forced(), err
		}
		if attempt.Confidence >= e.threshold {
			e.state = stateResolved
			return e.result(domain.FieldStatusResolved, attempt), nil
		}
	}

	// Nothing cleared the threshold: report the best attempt for review.
	e.state = stateFailed
	best := e.best()
	status := domain.FieldStatusFailed
	if best != nil && best.Value != "" {
		status = domain.FieldStatusNeedsReview
	}
	return e.result(status, best), nil
}

// anchorLine resolves the field's primary anchor. A document with no
// matching section anchors at the top, which degrades to a cover-page
// read at the initial tier.
func (e *FieldExtractor) anchorLine() int {
	if s := e.docMap.FindSection(e.spec.AnchorKeywords...); s != nil {
		return s.StartLine
	}
	return 0
}

// fallbackWindow produces the text window for one fallback attempt.
func (e *FieldExtractor) fallbackWindow(fb domain.FallbackSpec) (string, bool) {
	if fb.CoverPage {
		return Slice(e.doc, 0, coverSpan), true
	}
	s := e.docMap.FindSection(fb.AnchorKeywords...)
	if s == nil {
		return "", false
	}
	return Slice(e.doc, s.StartLine, e.strategy.Span(domain.TierExpanded)), true
}

// attempt makes one scored extraction attempt: cache lookups, the
// completer call with transient retries, response parsing and
// confidence scoring. Every completer call lands in the audit trail,
// including failed ones at zero confidence.
func (e *FieldExtractor) attempt(ctx context.Context, tier domain.WindowTier, strategyName, instruction, window string) (domain.ExtractionAttempt, error) {
	attemptKey := domain.AttemptKey(e.doc.Hash, e.spec.Name, tier, strategyName)
	if data, ok := e.cache.Get(ctx, attemptKey); ok {
		var cached domain.ExtractionAttempt
		if err := json.Unmarshal(data, &cached); err == nil {
			cached.Cost = 0 // reused work costs nothing
			e.attempts = append(e.attempts, cached)
			return cached, nil
		}
	}

	prompt := buildPrompt(instruction, window)
	comp, err := e.complete(ctx, tier, strategyName, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return domain.ExtractionAttempt{}, ctx.Err()
		}
		// Retries exhausted or malformed transport response: a
		// zero-confidence attempt, never a job failure.
		a := e.record(domain.ExtractionAttempt{
			FieldName: e.spec.Name,
			Tier:      tier,
			Strategy:  strategyName,
			Error:     err.Error(),
		})
		return a, nil
	}

	value, modelConf, perr := parseCompletion(comp.Text)
	if perr != nil {
		a := e.record(domain.ExtractionAttempt{
			FieldName: e.spec.Name,
			Tier:      tier,
			Strategy:  strategyName,
			Cost:      comp.Cost,
			Error:     perr.Error(),
		})
		return a, nil
	}

	confidence := e.scorer.Score(value)
	if modelConf != nil && *modelConf < confidence {
		// The model's own uncertainty caps the heuristic score.
		confidence = *modelConf
	}

	a := e.record(domain.ExtractionAttempt{
		FieldName:  e.spec.Name,
		Tier:       tier,
		Value:      value,
		Confidence: confidence,
		Strategy:   strategyName,
		Cost:       comp.Cost,
	})

	// A cancelled job must not leave cache writes behind.
	if ctx.Err() == nil {
		if data, err := json.Marshal(a); err == nil {
			e.cache.Set(ctx, attemptKey, data, e.attemptTTL)
		}
	}
	return a, nil
}

// complete invokes the completer with the completion cache in front and
// bounded exponential backoff on transient errors. Malformed responses
// are returned immediately: retrying the identical prompt is unlikely
// to help.
func (e *FieldExtractor) complete(ctx context.Context, tier domain.WindowTier, strategyName, prompt string) (*driven.Completion, error) {
	compKey := domain.CompletionKey(e.doc.Hash, prompt)
	if data, ok := e.cache.Get(ctx, compKey); ok {
		return &driven.Completion{Text: string(data)}, nil
	}

	for retry := 0; ; retry++ {
		comp, err := e.completer.Complete(ctx, prompt)
		if err == nil {
			if ctx.Err() == nil {
				e.cache.Set(ctx, compKey, []byte(comp.Text), e.completionTTL)
			}
			return comp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, domain.ErrCompleterTransient) || retry >= e.maxRetries {
			return nil, err
		}

		// The failed call is part of the audit trail.
		e.record(domain.ExtractionAttempt{
			FieldName: e.spec.Name,
			Tier:      tier,
			Strategy:  strategyName,
			Error:     err.Error(),
		})

		delay := e.backoffBase << retry
		if delay > e.backoffCap {
			delay = e.backoffCap
		}
		e.logger.Debug("transient completer error, backing off",
			"retry", retry+1, "delay", delay, "error", err)
		if serr := e.sleep(ctx, delay); serr != nil {
			return nil, serr
		}
	}
}

// record appends an attempt to the audit trail.
func (e *FieldExtractor) record(a domain.ExtractionAttempt) domain.ExtractionAttempt {
	e.attempts = append(e.attempts, a)
	return a
}

// best returns the winning attempt: highest confidence, ties broken by
// earliest attempt for stability. Nil when no attempt was made.
func (e *FieldExtractor) best() *domain.ExtractionAttempt {
	var best *domain.ExtractionAttempt
	for i := range e.attempts {
		if best == nil || e.attempts[i].Confidence > best.Confidence {
			best = &e.attempts[i]
		}
	}
	return best
}

// result builds the terminal FieldResult.
func (e *FieldExtractor) result(status domain.FieldStatus, winning *domain.ExtractionAttempt) *domain.FieldResult {
	r := &domain.FieldResult{
		FieldName: e.spec.Name,
		Status:    status,
		Attempts:  e.attempts,
	}
	if winning != nil {
		r.Value = winning.Value
		r.Confidence = winning.Confidence
	}
	return r
}

// forced is the terminal result when the job deadline interrupts the
// extractor: FAILED with whatever attempts were made, keeping the best
// value as a low-confidence answer when one exists.
func (e *FieldExtractor) forced() *domain.FieldResult {
	e.state = stateFailed
	best := e.best()
	status := domain.FieldStatusFailed
	if best != nil && best.Value != "" {
		status = domain.FieldStatusLowConfidence
	}
	return e.result(status, best)
}

// buildPrompt composes the completer prompt for one attempt.
func buildPrompt(instruction, window string) string {
	var b strings.Builder
	b.WriteString("You are extracting structured metadata from a clinical trial protocol.\n\n")
	b.WriteString(instruction)
	b.WriteString("\n\nDocument excerpt:\n---\n")
	b.WriteString(window)
	b.WriteString("\n---\n\nRespond with ONLY a JSON object of the form ")
	b.WriteString(`{"value": <extracted value as a string, or null if not present>, "confidence": <your certainty, 0.0-1.0>}.`)
	return b.String()
}

// parseCompletion interprets the completer output. Code fences are
// tolerated; everything else must validate against completionSchema.
func parseCompletion(text string) (string, *float64, error) {
	raw := strings.TrimSpace(text)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return "", nil, fmt.Errorf("%w: %v", domain.ErrCompleterMalformed, err)
	}
	if err := completionSchema.Validate(v); err != nil {
		return "", nil, fmt.Errorf("%w: %v", domain.ErrCompleterMalformed, err)
	}

	obj := v.(map[string]any)
	var value string
	switch t := obj["value"].(type) {
	case string:
		value = strings.TrimSpace(t)
	case float64:
		value = strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		value = ""
	}

	var modelConf *float64
	if c, ok := obj["confidence"].(float64); ok {
		modelConf = &c
	}
	return value, modelConf, nil
}
