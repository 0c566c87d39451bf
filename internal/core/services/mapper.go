package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/clinforge-labs/protex-core/internal/core/domain"
	"github.com/clinforge-labs/protex-core/internal/core/ports/driven"
)

// defaultAnchorKeywords are the section-header keywords scanned for in
// clinical-trial protocols. The scan matches case-insensitively per
// line and records hits as section anchors; it never reads field
// content.
var defaultAnchorKeywords = []string{
	"sponsor",
	"principal investigator",
	"inclusion criteria",
	"exclusion criteria",
	"eligibility",
	"objectives",
	"primary outcome",
	"secondary outcome",
	"outcome measures",
	"study design",
	"background",
	"statistical analysis",
	"adverse events",
	"informed consent",
	"randomization",
	"enrollment",
	"sample size",
}

// DocumentMapper builds the navigable structure map for a document:
// one cheap O(n) keyword pass over the text, cached by document hash.
// Concurrent scans of the same uncached document coalesce into a single
// in-flight computation.
type DocumentMapper struct {
	cache      driven.Cache
	ttl        time.Duration
	keywords   []string
	mergeLines int
	logger     *slog.Logger

	group singleflight.Group
	scans atomic.Int64 // underlying scan executions, for tests
}

// MapperConfig holds configuration for the DocumentMapper.
type MapperConfig struct {
	Cache      driven.Cache
	TTL        time.Duration // structure-domain cache TTL
	Keywords   []string      // anchor keywords (default: protocol set)
	MergeLines int           // anchor merge distance (default: 3)
	Logger     *slog.Logger
}

// NewDocumentMapper creates a new DocumentMapper.
func NewDocumentMapper(cfg MapperConfig) *DocumentMapper {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	keywords := cfg.Keywords
	if len(keywords) == 0 {
		keywords = defaultAnchorKeywords
	}
	mergeLines := cfg.MergeLines
	if mergeLines <= 0 {
		mergeLines = 3
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DocumentMapper{
		cache:      cfg.Cache,
		ttl:        ttl,
		keywords:   keywords,
		mergeLines: mergeLines,
		logger:     logger,
	}
}

// Scan returns the DocumentMap for doc, computing it at most once per
// document hash even under concurrent callers (single-flight), and
// caching the result so a second job on the same document skips the
// scan entirely.
func (m *DocumentMapper) Scan(ctx context.Context, doc *domain.Document) (*domain.DocumentMap, error) {
	key := domain.StructureKey(doc.Hash)

	if data, ok := m.cache.Get(ctx, key); ok {
		var cached domain.DocumentMap
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
		// Undecodable entry: fall through and rebuild.
		m.logger.Warn("discarding undecodable document map cache entry", "key", key)
	}

	v, err, _ := m.group.Do(doc.Hash, func() (any, error) {
		// Re-check under the flight: a racing caller may have populated
		// the cache between our miss and the flight start.
		if data, ok := m.cache.Get(ctx, key); ok {
			var cached domain.DocumentMap
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}

		docMap := m.scan(doc)

		if data, err := json.Marshal(docMap); err == nil {
			m.cache.Set(ctx, key, data, m.ttl)
		}
		return docMap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.DocumentMap), nil
}

// scan runs the anchor pass. Adjacent matches within mergeLines
// collapse into one section so near-duplicate headers do not fragment
// the map.
func (m *DocumentMapper) scan(doc *domain.Document) *domain.DocumentMap {
	m.scans.Add(1)
	start := time.Now()

	type hit struct {
		line int
		name string
	}
	var hits []hit
	for i, line := range doc.Lines {
		lower := strings.ToLower(line)
		for _, kw := range m.keywords {
			if strings.Contains(lower, kw) {
				hits = append(hits, hit{line: i, name: kw})
				break
			}
		}
	}

	var sections []domain.Section
	for i := 0; i < len(hits); i++ {
		start := hits[i]
		name := start.name
		end := start.line
		// Merge the run of hits within mergeLines of the previous one.
		for i+1 < len(hits) && hits[i+1].line-hits[i].line <= m.mergeLines {
			i++
			end = hits[i].line
		}
		sections = append(sections, domain.Section{
			Name:      name,
			StartLine: start.line,
			EndLine:   end,
			StartPage: doc.PageOf(start.line),
			EndPage:   doc.PageOf(end),
		})
	}

	// Close each section at the next anchor so ranges never overlap.
	for i := range sections {
		if i+1 < len(sections) {
			sections[i].EndLine = sections[i+1].StartLine - 1
		} else {
			sections[i].EndLine = doc.LineCount() - 1
		}
		sections[i].EndPage = doc.PageOf(sections[i].EndLine)
	}

	m.logger.Debug("document scanned",
		"document_hash", doc.Hash,
		"sections", len(sections),
		"lines", doc.LineCount(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return &domain.DocumentMap{
		DocumentHash: doc.Hash,
		Sections:     sections,
		PageCount:    doc.PageCount,
		HasTables:    doc.HasTables,
	}
}
