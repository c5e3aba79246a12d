package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"webtap/internal/bus"
	"webtap/internal/cleaner"
	"webtap/internal/metrics"
	"webtap/internal/model"
	"webtap/internal/progress"
	"webtap/internal/scraper"
	"webtap/internal/state"
)

// HandleFetch consumes extraction.requested. It rechecks the extraction
// cache, then the content cache, scrapes only when both miss, and hands
// the markdown to the Extract stage through fetch_payloads.
func (s *Stages) HandleFetch(ctx context.Context, msg bus.Message) error {
	var ev model.ExtractionRequested
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		s.Logger.Error("undecodable extraction.requested event", "error", err)
		return nil
	}
	if ev.JobID == "" {
		s.emitFailure(ctx, ev.JobID, "job_id is required", model.StageFetching, ev.URL, nil)
		return nil
	}
	if ev.URL == "" {
		s.emitFailure(ctx, ev.JobID, "url is required", model.StageFetching, "", nil)
		return nil
	}

	payload, err := s.loadJobPayload(ctx, ev.JobID)
	if err != nil {
		s.emitFailure(ctx, ev.JobID, "Job payload not found in state", model.StageFetching, ev.URL, nil)
		metrics.RecordStage(model.StageFetching, "failed")
		return nil
	}
	if payload.Schema.IsZero() {
		s.emitFailure(ctx, ev.JobID, "schema is required", model.StageFetching, ev.URL, nil)
		metrics.RecordStage(model.StageFetching, "failed")
		return nil
	}

	s.Logger.Info("processing extraction request",
		"job_id", ev.JobID, "url", ev.URL, "use_cache", ev.Options.UseCache)

	// Extraction cache first: a hit skips both the scrape and the LLM.
	if ev.Options.UseCache {
		if entry, ok := s.Cache.GetExtraction(ctx, ev.URL, payload.Schema); ok {
			s.Logger.Info("extraction cache hit", "job_id", ev.JobID, "url", ev.URL,
				"cached_at", entry.CachedAt)
			metrics.RecordCacheHit("extraction")

			progress.Push(ctx, s.Progress, s.Logger, ev.JobID, model.StatusCompleted, "Using cached result")

			if err := s.Store.Set(ctx, state.GroupExtractionPayloads, ev.JobID, model.ExtractionPayload{
				Data:     entry.Data,
				Schema:   payload.Schema,
				Model:    entry.Model,
				Metadata: entry.Metadata,
			}); err != nil {
				s.emitFailure(ctx, ev.JobID, fmt.Sprintf("Failed to stage cached result: %v", err), model.StageFetching, ev.URL, nil)
				metrics.RecordStage(model.StageFetching, "failed")
				return nil
			}

			completed := model.ExtractionCompleted{
				JobID:     ev.JobID,
				URL:       ev.URL,
				ScraperID: ev.ScraperID,
				Cached:    true,
				CacheType: "extraction",
			}
			if err := s.Bus.Publish(ctx, bus.TopicExtractionCompleted, msg.GroupID, completed); err != nil {
				return err
			}
			metrics.RecordStage(model.StageFetching, "ok")
			return nil
		}
	}

	progress.Push(ctx, s.Progress, s.Logger, ev.JobID, model.StatusFetching, "Fetching webpage...")

	// Content cache next: a hit skips only the scrape.
	var markdown string
	var metadata map[string]any
	contentCached := false
	if ev.Options.UseCache {
		if entry, ok := s.Cache.GetContent(ctx, ev.URL); ok {
			markdown = entry.Markdown
			metadata = entry.Metadata
			contentCached = true
			metrics.RecordCacheHit("content")
			s.Logger.Info("content cache hit", "job_id", ev.JobID, "url", ev.URL)
		}
	}

	if markdown == "" {
		sc := s.Heavy
		engine := "browser"
		if ev.Options.UseSimpleScraper || sc == nil {
			sc = s.Simple
			engine = "http"
		}
		s.Logger.Info("scraping webpage", "job_id", ev.JobID, "scraper", engine)

		result, err := sc.Scrape(ctx, scraper.Request{
			URL:       ev.URL,
			TimeoutMs: ev.Options.Timeout,
			WaitForMs: ev.Options.WaitFor,
		})
		if err != nil {
			s.emitFailure(ctx, ev.JobID, "Scraping failed: "+scrapeErrorMessage(err), model.StageFetching, ev.URL, nil)
			metrics.RecordStage(model.StageFetching, "failed")
			return nil
		}

		markdown = cleaner.ToMarkdown(result.HTML)
		metadata = result.Metadata
		if markdown == "" {
			s.emitFailure(ctx, ev.JobID, "Empty content after conversion", model.StageFetching, ev.URL, nil)
			metrics.RecordStage(model.StageFetching, "failed")
			return nil
		}

		s.Cache.PutContent(ctx, ev.URL, markdown, metadata)
	}

	if err := s.Store.Set(ctx, state.GroupFetchPayloads, ev.JobID, model.FetchPayload{
		Markdown: markdown,
		Schema:   payload.Schema,
		Metadata: metadata,
	}); err != nil {
		s.emitFailure(ctx, ev.JobID, fmt.Sprintf("Failed to store fetch payload: %v", err), model.StageFetching, ev.URL, nil)
		metrics.RecordStage(model.StageFetching, "failed")
		return nil
	}

	progress.Push(ctx, s.Progress, s.Logger, ev.JobID, model.StatusFetched, "Content fetched, extracting...")

	cacheType := ""
	if contentCached {
		cacheType = "content"
	}
	fetched := model.WebpageFetched{
		JobID:          ev.JobID,
		URL:            ev.URL,
		ScraperID:      ev.ScraperID,
		Options:        ev.Options,
		Cached:         contentCached,
		CacheType:      cacheType,
		MarkdownLength: len(markdown),
	}
	if err := s.Bus.Publish(ctx, bus.TopicWebpageFetched, msg.GroupID, fetched); err != nil {
		return err
	}

	s.Logger.Info("fetch completed", "job_id", ev.JobID,
		"content_cached", contentCached, "markdown_length", len(markdown))
	metrics.RecordStage(model.StageFetching, "ok")
	return nil
}

// scrapeErrorMessage surfaces the provider failure class in the job's
// error string.
func scrapeErrorMessage(err error) string {
	switch {
	case errors.Is(err, scraper.ErrTimeout):
		return "Request timeout: " + err.Error()
	case errors.Is(err, scraper.ErrRateLimited):
		return "Rate limit exceeded: " + err.Error()
	case errors.Is(err, scraper.ErrNotFound):
		return "Invalid URL or page not found: " + err.Error()
	}
	return err.Error()
}
