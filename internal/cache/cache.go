// Package cache implements the two advisory caches over the state store:
// the extraction cache, keyed by url plus canonical schema, which skips
// both scraping and extraction; and the content cache, keyed by url alone,
// which skips only the scrape. Both are best-effort: a miss is normal and
// a failed write never fails the caller.
package cache

import (
	"context"
	"log/slog"

	"webtap/internal/hashutil"
	"webtap/internal/model"
	"webtap/internal/state"
)

// ExtractionEntry is a cached final extraction.
type ExtractionEntry struct {
	Data      map[string]any `json:"data"`
	URL       string         `json:"url"`
	Schema    model.Schema   `json:"schema"`
	ScraperID string         `json:"scraper_id,omitempty"`
	Model     string         `json:"model,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CachedAt  string         `json:"cached_at"`
}

// ContentEntry is cached page content.
type ContentEntry struct {
	Markdown string         `json:"markdown"`
	URL      string         `json:"url"`
	Metadata map[string]any `json:"metadata,omitempty"`
	CachedAt string         `json:"cached_at"`
}

// Cache wraps the state store with the two cache namespaces.
type Cache struct {
	store  state.Store
	logger *slog.Logger
}

func New(store state.Store, logger *slog.Logger) *Cache {
	return &Cache{store: store, logger: logger}
}

// GetExtraction looks up a cached extraction for (url, schema). The second
// return is false on miss, on read error, and on an entry with no data.
func (c *Cache) GetExtraction(ctx context.Context, url string, schema model.Schema) (ExtractionEntry, bool) {
	key := hashutil.ExtractionCacheKey(url, schema.Canonical())
	var entry ExtractionEntry
	if err := state.Load(ctx, c.store, state.GroupExtractionCache, key, &entry); err != nil {
		return ExtractionEntry{}, false
	}
	if len(entry.Data) == 0 {
		return ExtractionEntry{}, false
	}
	return entry, true
}

// PutExtraction stores an extraction result. Write failures are logged and
// swallowed.
func (c *Cache) PutExtraction(ctx context.Context, url string, schema model.Schema, data map[string]any, llmModel, scraperID string, metadata map[string]any) {
	key := hashutil.ExtractionCacheKey(url, schema.Canonical())
	entry := ExtractionEntry{
		Data:      data,
		URL:       url,
		Schema:    schema,
		ScraperID: scraperID,
		Model:     llmModel,
		Metadata:  metadata,
		CachedAt:  model.Now(),
	}
	if err := c.store.Set(ctx, state.GroupExtractionCache, key, entry); err != nil {
		c.logger.Warn("extraction cache write failed", "url", url, "error", err)
	}
}

// GetContent looks up cached page content for a url.
func (c *Cache) GetContent(ctx context.Context, url string) (ContentEntry, bool) {
	key := hashutil.HashURLFull(url)
	var entry ContentEntry
	if err := state.Load(ctx, c.store, state.GroupContentCache, key, &entry); err != nil {
		return ContentEntry{}, false
	}
	if entry.Markdown == "" {
		return ContentEntry{}, false
	}
	return entry, true
}

// PutContent stores scraped page content. Write failures are logged and
// swallowed.
func (c *Cache) PutContent(ctx context.Context, url, markdown string, metadata map[string]any) {
	key := hashutil.HashURLFull(url)
	entry := ContentEntry{
		Markdown: markdown,
		URL:      url,
		Metadata: metadata,
		CachedAt: model.Now(),
	}
	if err := c.store.Set(ctx, state.GroupContentCache, key, entry); err != nil {
		c.logger.Warn("content cache write failed", "url", url, "error", err)
	}
}
