package driven

import "context"

// ExtractedText is the plain-text rendering of an uploaded document.
type ExtractedText struct {
	// Text is the full rendering, one line per source line.
	Text string
	// PageOffsets holds the line index at which each page starts.
	// Empty means the format has no page structure.
	PageOffsets []int
	// HasTables reports whether the document structure suggests tables.
	// Derived from structure metadata, never from the anchor scan.
	HasTables bool
}

// TextExtractor renders a binary document format to plain text with
// page boundaries. OCR, table recognition and multi-language handling
// are concerns of individual implementations, not of this port.
type TextExtractor interface {
	// Extract renders content to text. A failure wraps
	// domain.ErrTextExtraction and is fatal to the submitting job.
	Extract(ctx context.Context, content []byte) (*ExtractedText, error)

	// Supports reports whether this extractor can handle the content,
	// typically by sniffing magic bytes.
	Supports(content []byte) bool
}
