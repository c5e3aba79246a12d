// Package hashutil mints the identifiers and digests used across the
// pipeline: job and scraper ids, monitor ids, and the url hashes that key
// both caches and the scheduler's message groups.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

func shortUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// NewJobID returns a fresh job identifier, "job_" plus 12 hex characters.
func NewJobID() string {
	return "job_" + shortUUID()
}

// NewScraperID returns a fresh scraper identifier, "scr_" plus 12 hex
// characters.
func NewScraperID() string {
	return "scr_" + shortUUID()
}

// HashURL returns the first 12 hex characters of sha256(url). Used for
// monitor ids and as the message group of scheduled runs.
func HashURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:12]
}

// HashURLFull returns the full sha256 hex digest of the url, the content
// cache key.
func HashURLFull(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// MonitorID derives the deterministic monitor id for a (scraper, url)
// pair. The same pair always maps to the same monitor.
func MonitorID(scraperID, url string) string {
	return scraperID + "_" + HashURL(url)
}

// ExtractionCacheKey derives the 16-hex extraction cache key from the url
// and the canonical schema text.
func ExtractionCacheKey(url, canonicalSchema string) string {
	sum := sha256.Sum256([]byte(url + "|" + canonicalSchema))
	return hex.EncodeToString(sum[:])[:16]
}
