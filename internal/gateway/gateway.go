// Package gateway is the entry point between the public API and the
// pipeline. It creates jobs, emits the first event, upserts monitors, and
// in sync mode waits for the terminal state before answering.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"webtap/internal/bus"
	"webtap/internal/cache"
	"webtap/internal/hashutil"
	"webtap/internal/metrics"
	"webtap/internal/model"
	"webtap/internal/monitor"
	"webtap/internal/progress"
	"webtap/internal/state"
)

// ErrScraperNotFound distinguishes a missing scraper from internal
// failures so the HTTP layer can answer 404.
var ErrScraperNotFound = errors.New("scraper not found")

// Gateway bundles the collaborators of the public operations.
type Gateway struct {
	Store       state.Store
	Bus         bus.Bus
	Cache       *cache.Cache
	Progress    progress.Stream
	Logger      *slog.Logger
	SyncTimeout time.Duration
	PollEvery   time.Duration
}

// RequestOptions is the per-request option set of a run call.
type RequestOptions struct {
	UseCache         *bool  `json:"use_cache,omitempty"`
	WaitFor          *int   `json:"wait_for,omitempty"`
	Timeout          *int   `json:"timeout,omitempty"`
	UseSimpleScraper *bool  `json:"use_simple_scraper,omitempty"`
	Async            bool   `json:"async,omitempty"`
	SkipMonitoring   bool   `json:"skip_monitoring,omitempty"`
	Model            string `json:"model,omitempty"`
}

// MonitoringInfo is attached to every run response.
type MonitoringInfo struct {
	Monitoring bool   `json:"monitoring"`
	MonitorID  string `json:"monitor_id,omitempty"`
	NextRun    string `json:"next_run,omitempty"`
	Action     string `json:"action,omitempty"`
}

// RunResult is one of the three response envelopes of a run call:
// completed, failed, or queued (async or sync timeout).
type RunResult struct {
	HTTPStatus int            `json:"-"`
	JobID      string         `json:"job_id"`
	ScraperID  string         `json:"scraper_id"`
	Status     model.Status   `json:"status"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	URL        string         `json:"url,omitempty"`
	Cached     bool           `json:"cached,omitempty"`
	CacheType  string         `json:"cache_type,omitempty"`
	Message    string         `json:"message,omitempty"`
	StatusURL  string         `json:"status_url,omitempty"`
	ResultsURL string         `json:"results_url,omitempty"`
	Monitoring MonitoringInfo `json:"monitoring_info"`
}

// RunScraper executes one scraper run end to end.
func (g *Gateway) RunScraper(ctx context.Context, scraperID, url string, opts RequestOptions) (*RunResult, error) {
	url = strings.TrimSpace(url)
	if scraperID == "" {
		return nil, errors.New("scraper id is required")
	}
	if url == "" {
		return nil, errors.New("url is required")
	}

	var scr model.Scraper
	if err := state.Load(ctx, g.Store, state.GroupScrapers, scraperID, &scr); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrScraperNotFound, scraperID)
		}
		return nil, err
	}

	merged := mergeOptions(scr.Options, opts)
	jobID := hashutil.NewJobID()
	now := model.Now()

	job := model.Job{
		JobID:     jobID,
		ScraperID: scraperID,
		URL:       url,
		Status:    model.StatusQueued,
		Options:   merged,
		CreatedAt: now,
	}
	if err := g.Store.Set(ctx, state.GroupJobs, jobID, job); err != nil {
		return nil, fmt.Errorf("store job: %w", err)
	}

	g.Logger.Info("job created", "job_id", jobID, "scraper_id", scraperID, "url", url)

	// Sync cache-hit fast path: a single cache read collapses the whole
	// pipeline. No events are emitted and no side-tables are written.
	if !opts.Async && merged.UseCache {
		if entry, ok := g.Cache.GetExtraction(ctx, url, scr.Schema); ok {
			metrics.RecordCacheHit("extraction")
			g.Logger.Info("extraction cache fast path", "job_id", jobID, "url", url)
			return g.fastPathResult(ctx, jobID, scraperID, url, &scr, opts, entry), nil
		}
	}

	if err := g.Store.Set(ctx, state.GroupJobPayloads, jobID, model.JobPayload{
		Schema:    scr.Schema,
		ScraperID: scraperID,
	}); err != nil {
		return nil, fmt.Errorf("store job payload: %w", err)
	}

	ev := model.ExtractionRequested{
		JobID:     jobID,
		URL:       url,
		ScraperID: scraperID,
		Options:   merged,
	}
	// Group by job_id so same-url requests do not queue behind each
	// other; each job gets its own FIFO lane.
	if err := g.Bus.Publish(ctx, bus.TopicExtractionRequested, jobID, ev); err != nil {
		return nil, fmt.Errorf("publish extraction request: %w", err)
	}

	mon := g.monitorInfo(ctx, scraperID, url, &scr, opts)

	if opts.Async {
		return queuedResult(jobID, scraperID, mon, ""), nil
	}

	return g.pollForCompletion(ctx, jobID, scraperID, url, mon)
}

// fastPathResult finalizes a cache-served job: the job and extractions
// rows become terminal so the status and results endpoints agree with the
// response.
func (g *Gateway) fastPathResult(ctx context.Context, jobID, scraperID, url string, scr *model.Scraper, opts RequestOptions, entry cache.ExtractionEntry) *RunResult {
	completedAt := model.Now()

	extraction := model.Extraction{
		JobID:       jobID,
		Status:      model.StatusCompleted,
		Data:        entry.Data,
		URL:         url,
		Schema:      &scr.Schema,
		ScraperID:   scraperID,
		CompletedAt: completedAt,
		Model:       entry.Model,
		Cached:      true,
		Metadata:    entry.Metadata,
	}
	if err := g.Store.Set(ctx, state.GroupExtractions, jobID, extraction); err != nil {
		g.Logger.Warn("fast path extractions write failed", "job_id", jobID, "error", err)
	}

	var job model.Job
	if err := state.Load(ctx, g.Store, state.GroupJobs, jobID, &job); err != nil {
		job = model.Job{JobID: jobID, ScraperID: scraperID, URL: url}
	}
	job.Status = model.StatusCompleted
	job.CompletedAt = completedAt
	job.UpdatedAt = completedAt
	if err := g.Store.Set(ctx, state.GroupJobs, jobID, job); err != nil {
		g.Logger.Warn("fast path job write failed", "job_id", jobID, "error", err)
	}

	progress.Push(ctx, g.Progress, g.Logger, jobID, model.StatusCompleted, "Using cached result")

	mon := g.monitorInfo(ctx, scraperID, url, scr, opts)

	return &RunResult{
		HTTPStatus: 200,
		JobID:      jobID,
		ScraperID:  scraperID,
		Status:     model.StatusCompleted,
		Data:       entry.Data,
		URL:        url,
		Cached:     true,
		CacheType:  "extraction",
		Monitoring: mon,
	}
}

// monitorInfo upserts the monitor for a scheduled scraper unless the
// request opts out. Failures degrade to "not monitoring".
func (g *Gateway) monitorInfo(ctx context.Context, scraperID, url string, scr *model.Scraper, opts RequestOptions) MonitoringInfo {
	if scr.ScheduleInfo == nil || opts.SkipMonitoring {
		return MonitoringInfo{}
	}
	m, existed, err := monitor.AutoAdd(ctx, g.Store, scraperID, url, scr.ScheduleInfo)
	if err != nil || m == nil {
		if err != nil {
			g.Logger.Warn("monitor upsert failed", "scraper_id", scraperID, "url", url, "error", err)
		}
		return MonitoringInfo{}
	}
	action := "created"
	if existed {
		action = "updated"
	}
	return MonitoringInfo{
		Monitoring: true,
		MonitorID:  m.MonitorID,
		NextRun:    m.NextRun,
		Action:     action,
	}
}

// pollForCompletion waits for the job to reach a terminal state, checking
// every PollEvery up to SyncTimeout. On timeout the caller gets the
// queued envelope and the pipeline keeps running.
func (g *Gateway) pollForCompletion(ctx context.Context, jobID, scraperID, url string, mon MonitoringInfo) (*RunResult, error) {
	timeout := g.SyncTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	interval := g.PollEvery
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var job model.Job
		if err := state.Load(ctx, g.Store, state.GroupJobs, jobID, &job); err == nil {
			switch job.Status {
			case model.StatusCompleted:
				var extraction model.Extraction
				if err := state.Load(ctx, g.Store, state.GroupExtractions, jobID, &extraction); err == nil {
					return &RunResult{
						HTTPStatus: 200,
						JobID:      jobID,
						ScraperID:  scraperID,
						Status:     model.StatusCompleted,
						Data:       extraction.Data,
						URL:        url,
						Cached:     extraction.Cached,
						Monitoring: mon,
					}, nil
				}
			case model.StatusFailed:
				errMsg := job.Error
				if errMsg == "" {
					errMsg = "Extraction failed"
				}
				return &RunResult{
					HTTPStatus: 200,
					JobID:      jobID,
					ScraperID:  scraperID,
					Status:     model.StatusFailed,
					Error:      errMsg,
					URL:        url,
					Monitoring: mon,
				}, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}

	return queuedResult(jobID, scraperID, mon,
		"Request timed out, processing continues in background"), nil
}

func queuedResult(jobID, scraperID string, mon MonitoringInfo, message string) *RunResult {
	return &RunResult{
		HTTPStatus: 202,
		JobID:      jobID,
		ScraperID:  scraperID,
		Status:     model.StatusQueued,
		Message:    message,
		StatusURL:  "/api/status/" + jobID,
		ResultsURL: "/api/results/" + jobID,
		Monitoring: mon,
	}
}

// mergeOptions layers the request options over the scraper's saved
// defaults; the request wins per key.
func mergeOptions(saved model.ScraperOptions, opts RequestOptions) model.JobOptions {
	merged := model.JobOptions{
		UseCache:         true,
		WaitFor:          saved.WaitFor,
		Timeout:          saved.Timeout,
		UseSimpleScraper: saved.UseSimpleScraper,
		Model:            opts.Model,
	}
	if merged.WaitFor == 0 {
		merged.WaitFor = 2000
	}
	if merged.Timeout == 0 {
		merged.Timeout = 30000
	}
	if opts.UseCache != nil {
		merged.UseCache = *opts.UseCache
	}
	if opts.WaitFor != nil {
		merged.WaitFor = *opts.WaitFor
	}
	if opts.Timeout != nil {
		merged.Timeout = *opts.Timeout
	}
	if opts.UseSimpleScraper != nil {
		merged.UseSimpleScraper = *opts.UseSimpleScraper
	}
	return merged
}
