package mocks

import (
	"context"
	"fmt"

	"github.com/clinforge-labs/protex-core/internal/core/domain"
	"github.com/clinforge-labs/protex-core/internal/core/ports/driven"
)

// Ensure MockTextExtractor implements TextExtractor
var _ driven.TextExtractor = (*MockTextExtractor)(nil)

// MockTextExtractor passes document bytes through as plain text, or
// fails when Fail is set. Accepts everything.
type MockTextExtractor struct {
	PageOffsets []int
	HasTables   bool
	Fail        bool
}

// Extract returns the bytes as text.
func (m *MockTextExtractor) Extract(_ context.Context, content []byte) (*driven.ExtractedText, error) {
	if m.Fail {
		return nil, fmt.Errorf("%w: mock failure", domain.ErrTextExtraction)
	}
	return &driven.ExtractedText{
		Text:        string(content),
		PageOffsets: m.PageOffsets,
		HasTables:   m.HasTables,
	}, nil
}

// Supports always reports true.
func (m *MockTextExtractor) Supports([]byte) bool { return true }
