package gateway

import (
	"context"
	"errors"
	"strings"

	"webtap/internal/bus"
	"webtap/internal/hashutil"
	"webtap/internal/model"
	"webtap/internal/monitor"
	"webtap/internal/state"
)

// CreateScraperRequest is the body of a create-scraper call.
type CreateScraperRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      *model.Schema   `json:"schema"`
	ExampleURL  string          `json:"example_url,omitempty"`
	WebhookURL  string          `json:"webhook_url,omitempty"`
	Schedule    *model.Schedule `json:"schedule,omitempty"`
	MonitorURLs []string        `json:"monitor_urls,omitempty"`
	Options     *struct {
		Timeout          *int  `json:"timeout,omitempty"`
		WaitFor          *int  `json:"wait_for,omitempty"`
		UseSimpleScraper *bool `json:"use_simple_scraper,omitempty"`
	} `json:"options,omitempty"`
}

// CreateScraperResult is the created-scraper response envelope.
type CreateScraperResult struct {
	ScraperID        string          `json:"scraper_id"`
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	Endpoint         string          `json:"endpoint"`
	Schema           model.Schema    `json:"schema"`
	Schedule         *model.Schedule `json:"schedule,omitempty"`
	CreatedAt        string          `json:"created_at"`
	MonitorsCreated  int             `json:"monitors_created,omitempty"`
	CacheWarmingJobs int             `json:"cache_warming_jobs,omitempty"`
}

// ValidationError marks a client mistake the HTTP layer answers 400 with.
type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

func invalid(msg string) error { return &ValidationError{msg: msg} }

// IsValidationError reports whether err is a request validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// CreateScraper validates and persists a new scraper configuration,
// creating monitors for any monitor_urls and queuing a cache-warming job
// per url.
func (g *Gateway) CreateScraper(ctx context.Context, req CreateScraperRequest) (*CreateScraperResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("name is required")
	}
	if req.Schema == nil || req.Schema.IsZero() {
		return nil, invalid("schema is required")
	}

	scheduleInfo, err := monitor.ParseSchedule(req.Schedule)
	if err != nil {
		return nil, invalid(err.Error())
	}

	scraperID := hashutil.NewScraperID()
	createdAt := model.Now()

	options := model.ScraperOptions{Timeout: 30000, WaitFor: 2000}
	if req.Options != nil {
		if req.Options.Timeout != nil {
			options.Timeout = *req.Options.Timeout
		}
		if req.Options.WaitFor != nil {
			options.WaitFor = *req.Options.WaitFor
		}
		if req.Options.UseSimpleScraper != nil {
			options.UseSimpleScraper = *req.Options.UseSimpleScraper
		}
	}

	scr := model.Scraper{
		ScraperID:    scraperID,
		Name:         name,
		Description:  req.Description,
		Schema:       *req.Schema,
		ExampleURL:   req.ExampleURL,
		WebhookURL:   req.WebhookURL,
		Schedule:     req.Schedule,
		ScheduleInfo: scheduleInfo,
		Options:      options,
		CreatedAt:    createdAt,
	}
	if err := g.Store.Set(ctx, state.GroupScrapers, scraperID, scr); err != nil {
		return nil, err
	}

	monitorsCreated := 0
	if scheduleInfo != nil && len(req.MonitorURLs) > 0 {
		monitorsCreated = monitor.CreateForURLs(ctx, g.Store, scraperID, req.MonitorURLs, scheduleInfo)
	}

	warmJobs := g.queueWarmJobs(ctx, &scr, req.MonitorURLs)

	g.Logger.Info("scraper created", "scraper_id", scraperID, "name", name,
		"monitors_created", monitorsCreated, "cache_warming_jobs", warmJobs)

	return &CreateScraperResult{
		ScraperID:        scraperID,
		Name:             name,
		Description:      req.Description,
		Endpoint:         "/api/scrape/" + scraperID,
		Schema:           *req.Schema,
		Schedule:         req.Schedule,
		CreatedAt:        createdAt,
		MonitorsCreated:  monitorsCreated,
		CacheWarmingJobs: warmJobs,
	}, nil
}

// queueWarmJobs runs the monitor urls through the pipeline once right
// away so the caches are hot before the first scheduled tick. Per-url
// failures are logged and skipped.
func (g *Gateway) queueWarmJobs(ctx context.Context, scr *model.Scraper, urls []string) int {
	queued := 0
	for _, url := range urls {
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}

		jobID := hashutil.NewJobID()
		opts := model.JobOptions{
			UseCache:         true,
			Timeout:          scr.Options.Timeout,
			WaitFor:          scr.Options.WaitFor,
			UseSimpleScraper: scr.Options.UseSimpleScraper,
		}
		job := model.Job{
			JobID:     jobID,
			ScraperID: scr.ScraperID,
			URL:       url,
			Status:    model.StatusQueued,
			Options:   opts,
			CreatedAt: model.Now(),
		}
		if err := g.Store.Set(ctx, state.GroupJobs, jobID, job); err != nil {
			g.Logger.Warn("failed to queue warm cache job", "url", url, "error", err)
			continue
		}
		if err := g.Store.Set(ctx, state.GroupJobPayloads, jobID, model.JobPayload{
			Schema:    scr.Schema,
			ScraperID: scr.ScraperID,
		}); err != nil {
			g.Logger.Warn("failed to queue warm cache job", "url", url, "error", err)
			continue
		}

		ev := model.ExtractionRequested{
			JobID:     jobID,
			URL:       url,
			ScraperID: scr.ScraperID,
			Options:   opts,
		}
		if err := g.Bus.Publish(ctx, bus.TopicExtractionRequested, jobID, ev); err != nil {
			g.Logger.Warn("failed to queue warm cache job", "url", url, "error", err)
			continue
		}
		queued++
	}
	return queued
}
