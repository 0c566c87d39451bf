package domain

import (
	"strings"
	"testing"
)

func TestHashBytes_Deterministic(t *testing.T) {
	a := HashBytes([]byte("protocol body"))
	b := HashBytes([]byte("protocol body"))
	if a != b {
		t.Errorf("expected identical hashes, got %s and %s", a, b)
	}
	if a == HashBytes([]byte("different body")) {
		t.Error("expected different content to hash differently")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestNewDocument_Defaults(t *testing.T) {
	doc := NewDocument("abc", "line one\nline two", nil, false, 17)
	if doc.PageCount != 1 {
		t.Errorf("expected default page count 1, got %d", doc.PageCount)
	}
	if doc.LineCount() != 2 {
		t.Errorf("expected 2 lines, got %d", doc.LineCount())
	}
}

func TestDocument_PageOf(t *testing.T) {
	// 3 pages starting at lines 0, 10, 25
	doc := NewDocument("abc", strings.Repeat("x\n", 40), []int{0, 10, 25}, false, 0)

	tests := []struct {
		line int
		page int
	}{
		{0, 1},
		{9, 1},
		{10, 2},
		{24, 2},
		{25, 3},
		{39, 3},
	}
	for _, tt := range tests {
		if got := doc.PageOf(tt.line); got != tt.page {
			t.Errorf("PageOf(%d) = %d, want %d", tt.line, got, tt.page)
		}
	}
}

func TestDocumentMap_FindSection(t *testing.T) {
	m := &DocumentMap{
		Sections: []Section{
			{Name: "background", StartLine: 0},
			{Name: "inclusion criteria", StartLine: 40},
			{Name: "sponsor", StartLine: 90},
		},
	}

	if s := m.FindSection("Sponsor"); s == nil || s.StartLine != 90 {
		t.Errorf("expected sponsor section at line 90, got %+v", s)
	}
	if s := m.FindSection("inclusion"); s == nil || s.StartLine != 40 {
		t.Errorf("expected inclusion section at line 40, got %+v", s)
	}
	if s := m.FindSection("no such section"); s != nil {
		t.Errorf("expected nil for unknown keyword, got %+v", s)
	}
	// first keyword match wins
	if s := m.FindSection("randomisation", "background"); s == nil || s.Name != "background" {
		t.Errorf("expected background section, got %+v", s)
	}
}
