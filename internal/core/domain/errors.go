package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownField indicates a requested field has no registered spec
	ErrUnknownField = errors.New("unknown field")

	// ErrCompleterTransient indicates a recoverable completer failure
	// (network error, rate limit, provider outage). Retried with backoff.
	ErrCompleterTransient = errors.New("transient completer error")

	// ErrCompleterMalformed indicates the completer returned output that
	// could not be interpreted. Never retried with the same prompt.
	ErrCompleterMalformed = errors.New("malformed completer response")

	// ErrTextExtraction indicates the document could not be rendered to
	// text. Fatal to the whole job.
	ErrTextExtraction = errors.New("text extraction failed")

	// ErrJobCancelled is the cancellation cause attached to a job's
	// context when the caller cancels it.
	ErrJobCancelled = errors.New("job cancelled")

	// ErrJobTerminal indicates an operation on a job that has already
	// reached a terminal status.
	ErrJobTerminal = errors.New("job already terminal")
)
