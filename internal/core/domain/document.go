package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Document is the immutable, text-rendered form of an uploaded protocol.
// It is identified by the SHA-256 hash of the original bytes, which also
// namespaces every cache entry derived from it.
type Document struct {
	Hash        string   `json:"hash"`
	Text        string   `json:"text"`
	Lines       []string `json:"-"`
	PageOffsets []int    `json:"page_offsets"` // line index where each page starts
	PageCount   int      `json:"page_count"`
	HasTables   bool     `json:"has_tables"`
	Size        int      `json:"size"` // original byte size
}

// HashBytes returns the content hash used as a document's identity.
func HashBytes(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// NewDocument builds a Document from extracted text and page boundaries.
// Lines are pre-split once so window slicing never re-scans the text.
func NewDocument(hash, text string, pageOffsets []int, hasTables bool, size int) *Document {
	if len(pageOffsets) == 0 {
		pageOffsets = []int{0}
	}
	return &Document{
		Hash:        hash,
		Text:        text,
		Lines:       strings.Split(text, "\n"),
		PageOffsets: pageOffsets,
		PageCount:   len(pageOffsets),
		HasTables:   hasTables,
		Size:        size,
	}
}

// LineCount returns the number of lines in the rendered text.
func (d *Document) LineCount() int {
	return len(d.Lines)
}

// PageOf returns the 1-based page number containing the given line.
func (d *Document) PageOf(line int) int {
	i := sort.Search(len(d.PageOffsets), func(i int) bool {
		return d.PageOffsets[i] > line
	})
	if i == 0 {
		return 1
	}
	return i
}

// Section is a region of the document rooted at a matched anchor line.
type Section struct {
	Name      string `json:"name"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	StartPage int    `json:"start_page"`
	EndPage   int    `json:"end_page"`
}

// DocumentMap is the navigable structure produced by the mapper's anchor
// scan. Sections are ordered by StartLine and never overlap.
type DocumentMap struct {
	DocumentHash string            `json:"document_hash"`
	Sections     []Section         `json:"sections"`
	PageCount    int               `json:"page_count"`
	HasTables    bool              `json:"has_tables"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// FindSection returns the first section whose name contains any of the
// given keywords (case-insensitive). Returns nil if none match.
func (m *DocumentMap) FindSection(keywords ...string) *Section {
	for i := range m.Sections {
		name := strings.ToLower(m.Sections[i].Name)
		for _, kw := range keywords {
			if strings.Contains(name, strings.ToLower(kw)) {
				return &m.Sections[i]
			}
		}
	}
	return nil
}
