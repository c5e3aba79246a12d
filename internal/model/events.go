package model

// Event envelopes carried on the bus. They stay small on purpose: the bus
// caps message size, so large bodies go into the payload side-tables and
// the envelope only references them by job_id.

// ExtractionRequested starts the pipeline for one job.
type ExtractionRequested struct {
	JobID     string     `json:"job_id"`
	URL       string     `json:"url"`
	ScraperID string     `json:"scraper_id"`
	Options   JobOptions `json:"options"`
}

// WebpageFetched announces that page content is ready in fetch_payloads.
type WebpageFetched struct {
	JobID          string     `json:"job_id"`
	URL            string     `json:"url"`
	ScraperID      string     `json:"scraper_id"`
	Options        JobOptions `json:"options"`
	Cached         bool       `json:"cached"`
	CacheType      string     `json:"cache_type,omitempty"`
	MarkdownLength int        `json:"markdown_length"`
}

// ExtractionCompleted announces that extracted data is ready in
// extraction_payloads.
type ExtractionCompleted struct {
	JobID     string `json:"job_id"`
	URL       string `json:"url"`
	ScraperID string `json:"scraper_id"`
	Cached    bool   `json:"cached"`
	CacheType string `json:"cache_type,omitempty"`
}

// ResultsStored is the terminal success event.
type ResultsStored struct {
	JobID       string `json:"job_id"`
	URL         string `json:"url"`
	ScraperID   string `json:"scraper_id"`
	CompletedAt string `json:"completed_at"`
	Cached      bool   `json:"cached"`
}

// ExtractionFailed routes any stage failure to the error handler.
type ExtractionFailed struct {
	JobID            string   `json:"job_id"`
	Error            string   `json:"error"`
	Stage            string   `json:"stage"`
	URL              string   `json:"url,omitempty"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
}

// JobPayload is the job_payloads side-table row.
type JobPayload struct {
	Schema    Schema `json:"schema"`
	ScraperID string `json:"scraper_id"`
}

// FetchPayload is the fetch_payloads side-table row.
type FetchPayload struct {
	Markdown string         `json:"markdown"`
	Schema   Schema         `json:"schema"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ExtractionPayload is the extraction_payloads side-table row.
type ExtractionPayload struct {
	Data     map[string]any `json:"data"`
	Schema   Schema         `json:"schema"`
	Model    string         `json:"model,omitempty"`
	Usage    map[string]any `json:"usage,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
