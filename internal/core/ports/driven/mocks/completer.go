package mocks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/clinforge-labs/protex-core/internal/core/domain"
	"github.com/clinforge-labs/protex-core/internal/core/ports/driven"
)

// Ensure mock completers implement Completer
var (
	_ driven.Completer = (*ScriptedCompleter)(nil)
	_ driven.Completer = (*FlakyCompleter)(nil)
)

// Rule maps a prompt substring to a canned completer response.
type Rule struct {
	// Contains matches when the prompt contains this substring.
	Contains string
	// Response is returned verbatim as the completion text.
	Response string
	// Err, when set, is returned instead of a completion.
	Err error
	// Cost is the reported cost of the call.
	Cost float64
}

// ScriptedCompleter is a deterministic Completer for testing the
// extraction state machine. The first matching rule wins; prompts with
// no matching rule get a null-value answer.
type ScriptedCompleter struct {
	mu      sync.Mutex
	rules   []Rule
	calls   int
	prompts []string
}

// NewScriptedCompleter creates a completer answering per the rules.
func NewScriptedCompleter(rules ...Rule) *ScriptedCompleter {
	return &ScriptedCompleter{rules: rules}
}

// Complete returns the first matching scripted response.
func (c *ScriptedCompleter) Complete(ctx context.Context, prompt string) (*driven.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCompleterTransient, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	c.prompts = append(c.prompts, prompt)

	for _, r := range c.rules {
		if strings.Contains(prompt, r.Contains) {
			if r.Err != nil {
				return nil, r.Err
			}
			return &driven.Completion{Text: r.Response, Cost: r.Cost}, nil
		}
	}
	return &driven.Completion{Text: `{"value": null}`}, nil
}

// Calls returns how many times Complete was invoked.
func (c *ScriptedCompleter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Prompts returns the prompts seen so far, in order.
func (c *ScriptedCompleter) Prompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}

// FlakyCompleter fails with a transient error a fixed number of times,
// then delegates to the wrapped completer. Used to exercise the retry
// and backoff path.
type FlakyCompleter struct {
	mu        sync.Mutex
	failures  int
	failed    int
	delegate  driven.Completer
}

// NewFlakyCompleter wraps delegate, failing the first n calls.
func NewFlakyCompleter(n int, delegate driven.Completer) *FlakyCompleter {
	return &FlakyCompleter{failures: n, delegate: delegate}
}

// Complete fails transiently until the failure budget is exhausted.
func (c *FlakyCompleter) Complete(ctx context.Context, prompt string) (*driven.Completion, error) {
	c.mu.Lock()
	if c.failed < c.failures {
		c.failed++
		n := c.failed
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: simulated outage %d", domain.ErrCompleterTransient, n)
	}
	c.mu.Unlock()
	return c.delegate.Complete(ctx, prompt)
}
