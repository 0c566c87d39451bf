package textextract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/clinforge-labs/protex-core/internal/core/domain"
	"github.com/clinforge-labs/protex-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.TextExtractor = (*PDF)(nil)

var pdfMagic = []byte("%PDF-")

// PDF renders PDF documents via pdfcpu page content streams. Relaxed
// validation: real-world protocol PDFs are frequently not
// spec-conformant and should still render.
type PDF struct {
	conf *model.Configuration
}

// NewPDF creates the PDF extractor.
func NewPDF() *PDF {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDF{conf: conf}
}

// Supports sniffs the PDF magic bytes.
func (p *PDF) Supports(content []byte) bool {
	return bytes.HasPrefix(content, pdfMagic)
}

// Extract renders every page to text and records per-page line offsets.
func (p *PDF) Extract(ctx context.Context, content []byte) (*driven.ExtractedText, error) {
	rs := bytes.NewReader(content)

	pageCount, err := api.PageCount(rs, p.conf)
	if err != nil {
		return nil, fmt.Errorf("%w: page count: %v", domain.ErrTextExtraction, err)
	}

	var lines []string
	offsets := make([]int, 0, pageCount)
	hasTables := false
	for pageNr := 1; pageNr <= pageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r, err := api.ExtractPageContent(rs, pageNr, p.conf)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", domain.ErrTextExtraction, pageNr, err)
		}
		stream, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", domain.ErrTextExtraction, pageNr, err)
		}

		offsets = append(offsets, len(lines))
		pageText := contentStreamText(stream)
		lines = append(lines, strings.Split(pageText, "\n")...)
		if rectangleCount(stream) >= tableRectThreshold {
			hasTables = true
		}
	}

	return &driven.ExtractedText{
		Text:        strings.Join(lines, "\n"),
		PageOffsets: offsets,
		HasTables:   hasTables,
	}, nil
}

// tableRectThreshold is the number of drawn rectangles on one page
// above which the page is assumed to contain a table grid.
const tableRectThreshold = 8

var (
	// Text-showing operators: (string) Tj and [(s1) (s2)] TJ.
	tjOp       = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)\s*Tj`)
	tjArrayOp  = regexp.MustCompile(`\[((?:\\.|[^\]])*)\]\s*TJ`)
	tjArrayStr = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)`)
	// Text positioning operators that imply a line break.
	newlineOp = regexp.MustCompile(`(?:T\*|TD|Td|ET)`)
	rectOp    = regexp.MustCompile(`\bre\b`)
)

// contentStreamText pulls the literal strings shown by Tj/TJ operators
// out of a decoded page content stream, inserting line breaks at text
// positioning operators. Glyph-level layout is out of scope; anchor
// keywords and window text only need the reading order to survive.
func contentStreamText(stream []byte) string {
	var b strings.Builder

	segments := newlineOp.Split(string(stream), -1)
	for _, seg := range segments {
		var parts []string
		for _, m := range tjOp.FindAllStringSubmatch(seg, -1) {
			parts = append(parts, decodePDFString(m[1]))
		}
		for _, m := range tjArrayOp.FindAllStringSubmatch(seg, -1) {
			for _, s := range tjArrayStr.FindAllStringSubmatch(m[1], -1) {
				parts = append(parts, decodePDFString(s[1]))
			}
		}
		if len(parts) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Join(parts, ""))
	}
	return b.String()
}

// decodePDFString unescapes a PDF literal string.
func decodePDFString(s string) string {
	replacer := strings.NewReplacer(
		`\(`, "(",
		`\)`, ")",
		`\\`, `\`,
		`\n`, "\n",
		`\r`, "",
		`\t`, "\t",
	)
	return replacer.Replace(s)
}

func rectangleCount(stream []byte) int {
	return len(rectOp.FindAllIndex(stream, -1))
}
