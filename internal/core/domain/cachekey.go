package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Cache-domain prefixes. Every cache key starts with one of these, so
// TTLs can differ per domain and invalidation can target a whole domain
// or a whole document.
const (
	CacheDomainStructure  = "structure"
	CacheDomainExtraction = "extraction"
	CacheDomainCompletion = "completion"
)

const cacheKeySep = ":"

// cacheKey joins key parts with the canonical separator.
func cacheKey(parts ...string) string {
	return strings.Join(parts, cacheKeySep)
}

// StructureKey is the cache key for a document's DocumentMap.
func StructureKey(documentHash string) string {
	return cacheKey(CacheDomainStructure, documentHash)
}

// TextKey is the cache key for a document's extracted plain text.
func TextKey(documentHash string) string {
	return cacheKey(CacheDomainStructure, "text", documentHash)
}

// WindowKey is the cache key for one context window. Identical
// (document, field, tier, strategy) inputs always yield the same key,
// so escalation retries reuse earlier windows.
func WindowKey(documentHash, fieldName string, tier WindowTier, strategy string) string {
	return cacheKey(CacheDomainExtraction, "window", documentHash, fieldName, string(tier), strategy)
}

// AttemptKey is the cache key for a scored extraction attempt, enabling
// cross-job reuse of identical (document, field, tier, strategy) work.
func AttemptKey(documentHash, fieldName string, tier WindowTier, strategy string) string {
	return cacheKey(CacheDomainExtraction, documentHash, fieldName, string(tier), strategy)
}

// CompletionKey is the cache key for a raw completer response.
func CompletionKey(documentHash, prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return cacheKey(CacheDomainCompletion, documentHash, hex.EncodeToString(sum[:16]))
}

// DocumentPrefix returns the key prefix covering every extraction-domain
// entry for a document, for targeted invalidation.
func DocumentPrefix(domainPrefix, documentHash string) string {
	return cacheKey(domainPrefix, documentHash)
}
