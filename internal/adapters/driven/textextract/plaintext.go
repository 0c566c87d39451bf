package textextract

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"

	"github.com/clinforge-labs/protex-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.TextExtractor = (*PlainText)(nil)

// PlainText renders UTF-8 text documents. Form feeds mark page breaks;
// a document without them is a single page.
type PlainText struct{}

// NewPlainText creates the plain-text extractor.
func NewPlainText() *PlainText {
	return &PlainText{}
}

// Supports accepts valid UTF-8 with no NUL bytes.
func (p *PlainText) Supports(content []byte) bool {
	return len(content) > 0 && !bytes.ContainsRune(content, 0) && utf8.Valid(content)
}

// Extract splits the text on form feeds and records the line offset at
// which each page starts.
func (p *PlainText) Extract(_ context.Context, content []byte) (*driven.ExtractedText, error) {
	pages := strings.Split(string(content), "\f")

	var lines []string
	offsets := make([]int, 0, len(pages))
	for _, page := range pages {
		offsets = append(offsets, len(lines))
		page = strings.TrimPrefix(page, "\n")
		lines = append(lines, strings.Split(page, "\n")...)
	}

	return &driven.ExtractedText{
		Text:        strings.Join(lines, "\n"),
		PageOffsets: offsets,
		HasTables:   looksTabular(lines),
	}, nil
}

// looksTabular reports whether the text contains runs of column-shaped
// lines: pipes or tab-separated cells on several consecutive lines.
func looksTabular(lines []string) bool {
	run := 0
	for _, line := range lines {
		if strings.Count(line, "|") >= 2 || strings.Count(line, "\t") >= 2 {
			run++
			if run >= 3 {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}
