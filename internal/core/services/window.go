package services

import (
	"context"
	"strings"
	"time"

	"github.com/clinforge-labs/protex-core/internal/core/domain"
	"github.com/clinforge-labs/protex-core/internal/core/ports/driven"
)

// WindowEngine produces progressively larger text windows around an
// anchor line. Slicing is a pure function of (document, anchor, tier,
// strategy); results are cached under the window key so escalation
// retries of the same field reuse earlier windows instead of
// re-substringing the document.
type WindowEngine struct {
	cache driven.Cache
	ttl   time.Duration
}

// NewWindowEngine creates a WindowEngine. ttl is the extraction-domain
// cache TTL.
func NewWindowEngine(cache driven.Cache, ttl time.Duration) *WindowEngine {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &WindowEngine{cache: cache, ttl: ttl}
}

// Window returns the text spanning [anchorLine-before, anchorLine+after]
// for the given tier, clipped to document bounds.
func (e *WindowEngine) Window(ctx context.Context, doc *domain.Document, fieldName string, anchorLine int, tier domain.WindowTier, strategy domain.ContextStrategy) string {
	key := domain.WindowKey(doc.Hash, fieldName, tier, strategy.Name)
	if data, ok := e.cache.Get(ctx, key); ok {
		return string(data)
	}

	text := Slice(doc, anchorLine, strategy.Span(tier))
	e.cache.Set(ctx, key, []byte(text), e.ttl)
	return text
}

// Slice clips [anchor-before, anchor+after] to document bounds and
// joins the lines. Exported for fallback attempts that window ad-hoc
// regions without a tier key.
func Slice(doc *domain.Document, anchorLine int, span domain.WindowSpan) string {
	start := anchorLine - span.LinesBefore
	if start < 0 {
		start = 0
	}
	end := anchorLine + span.LinesAfter
	if max := doc.LineCount() - 1; end > max {
		end = max
	}
	if start > end {
		return ""
	}
	return strings.Join(doc.Lines[start:end+1], "\n")
}
