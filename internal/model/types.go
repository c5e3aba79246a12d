package model

import (
	"time"
)

// Status represents the lifecycle state of an extraction job. The values
// match the text stored in the jobs state group and reported on the
// progress stream. Centralizing them here avoids scattering string
// literals like "queued" or "completed" across packages.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusFetching   Status = "fetching"
	StatusFetched    Status = "fetched"
	StatusExtracting Status = "extracting"
	StatusExtracted  Status = "extracted"
	StatusValidating Status = "validating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether a status is one of the two terminal states.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stage names used in failure envelopes and results.
const (
	StageFetching   = "fetching"
	StageExtracting = "extracting"
	StageStoring    = "storing"
)

// JobOptions is the merged, fully-resolved option set carried by a job and
// its pipeline events. Timeout and WaitFor are milliseconds.
type JobOptions struct {
	UseCache         bool   `json:"use_cache"`
	WaitFor          int    `json:"wait_for"`
	Timeout          int    `json:"timeout"`
	UseSimpleScraper bool   `json:"use_simple_scraper"`
	Model            string `json:"model,omitempty"`
}

// ScraperOptions are the defaults saved with a scraper configuration.
type ScraperOptions struct {
	Timeout          int  `json:"timeout"`
	WaitFor          int  `json:"wait_for"`
	UseSimpleScraper bool `json:"use_simple_scraper"`
}

// ScheduleInfo is the parsed form of a scraper's schedule.
type ScheduleInfo struct {
	Type            string `json:"type"` // "interval" or "cron"
	IntervalMinutes int    `json:"interval_minutes,omitempty"`
	Cron            string `json:"cron,omitempty"`
}

const (
	ScheduleInterval = "interval"
	ScheduleCron     = "cron"
)

// Scraper is a persisted extraction configuration addressed by id.
type Scraper struct {
	ScraperID    string         `json:"scraper_id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Schema       Schema         `json:"schema"`
	ExampleURL   string         `json:"example_url,omitempty"`
	WebhookURL   string         `json:"webhook_url,omitempty"`
	Schedule     *Schedule      `json:"schedule,omitempty"`
	ScheduleInfo *ScheduleInfo  `json:"schedule_info,omitempty"`
	Options      ScraperOptions `json:"options"`
	CreatedAt    string         `json:"created_at"`
}

// Job is one run of the pipeline for a single URL through one scraper.
type Job struct {
	JobID       string     `json:"job_id"`
	ScraperID   string     `json:"scraper_id"`
	URL         string     `json:"url"`
	Status      Status     `json:"status"`
	Options     JobOptions `json:"options"`
	CreatedAt   string     `json:"created_at"`
	UpdatedAt   string     `json:"updated_at,omitempty"`
	CompletedAt string     `json:"completed_at,omitempty"`
	FailedAt    string     `json:"failed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Stage       string     `json:"stage,omitempty"`
}

// Monitor is a (scraper, url) pair scheduled for periodic refresh.
type Monitor struct {
	MonitorID       string `json:"monitor_id"`
	ScraperID       string `json:"scraper_id"`
	URL             string `json:"url"`
	ScheduleType    string `json:"schedule_type"`
	IntervalMinutes int    `json:"interval_minutes,omitempty"`
	Cron            string `json:"cron,omitempty"`
	Active          bool   `json:"active"`
	LastRun         string `json:"last_run,omitempty"`
	NextRun         string `json:"next_run"`
	RunCount        int    `json:"run_count"`
	LastJobID       string `json:"last_job_id,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// Extraction is the final result row for a job, stored in the extractions
// group. Failed jobs reuse the same row with the failure triple filled in.
type Extraction struct {
	JobID            string         `json:"job_id"`
	Status           Status         `json:"status"`
	Data             map[string]any `json:"data,omitempty"`
	URL              string         `json:"url,omitempty"`
	Schema           *Schema        `json:"schema,omitempty"`
	ScraperID        string         `json:"scraper_id,omitempty"`
	CompletedAt      string         `json:"completed_at,omitempty"`
	Model            string         `json:"model,omitempty"`
	Usage            map[string]any `json:"usage,omitempty"`
	Cached           bool           `json:"cached"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Error            string         `json:"error,omitempty"`
	Stage            string         `json:"stage,omitempty"`
	FailedAt         string         `json:"failed_at,omitempty"`
	ValidationErrors []string       `json:"validation_errors,omitempty"`
}

// Now returns the current UTC time as an RFC 3339 string, the timestamp
// format used everywhere in the state store.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// ParseTime parses an RFC 3339 timestamp as written by Now.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
