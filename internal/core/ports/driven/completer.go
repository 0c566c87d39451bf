package driven

import "context"

// Completion is the result of one language-model call.
type Completion struct {
	// Text is the raw model output.
	Text string
	// Cost is the provider-reported cost of the call, in the provider's
	// own units (typically tokens).
	Cost float64
}

// Completer is the pluggable text-interpretation capability used to
// extract a field value from a context window.
//
// Failures are classified through the domain sentinels: errors wrapping
// domain.ErrCompleterTransient may be retried with backoff, errors
// wrapping domain.ErrCompleterMalformed must not be retried with the
// same prompt. A completer error is never fatal to a job, only to the
// attempt that made the call.
type Completer interface {
	// Complete sends a prompt and returns the model response.
	Complete(ctx context.Context, prompt string) (*Completion, error)
}
