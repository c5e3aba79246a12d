package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"webtap/internal/model"
	"webtap/internal/progress"
	"webtap/internal/state"
)

// StatusResponse combines the jobs row with the live progress stream; the
// stream wins where both have a value because it is the fresher source.
type StatusResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Percent   int    `json:"percent"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
	URL       string `json:"url"`
	ScraperID string `json:"scraper_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	Stage     string `json:"stage,omitempty"`
}

// ResultsResponse is the terminal result envelope, in both its completed
// and failed shapes.
type ResultsResponse struct {
	JobID            string         `json:"job_id"`
	Status           model.Status   `json:"status"`
	Data             map[string]any `json:"data,omitempty"`
	URL              string         `json:"url"`
	CompletedAt      string         `json:"completed_at,omitempty"`
	Cached           *bool          `json:"cached,omitempty"`
	ScraperID        string         `json:"scraper_id,omitempty"`
	Model            string         `json:"model,omitempty"`
	Usage            map[string]any `json:"usage,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Error            string         `json:"error,omitempty"`
	Stage            string         `json:"stage,omitempty"`
	FailedAt         string         `json:"failed_at,omitempty"`
	Schema           *model.Schema  `json:"schema,omitempty"`
	ValidationErrors []string       `json:"validation_errors,omitempty"`
}

func getStatusHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(state.Store)
	stream := c.Locals("progress").(progress.Stream)

	jobID := c.Params("jobId")
	if jobID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Job ID is required",
		})
	}

	var job model.Job
	if err := state.Load(c.Context(), st, state.GroupJobs, jobID, &job); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Job with ID '" + jobID + "' not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get job status",
		})
	}

	resp := StatusResponse{
		JobID:     jobID,
		Status:    string(job.Status),
		CreatedAt: job.CreatedAt,
		URL:       job.URL,
		ScraperID: job.ScraperID,
	}

	if u, err := stream.Get(c.Context(), jobID); err == nil {
		resp.Status = u.Status
		if resp.Status == "" {
			resp.Status = string(job.Status)
		}
		resp.Percent = u.Percent
		resp.Message = u.Message
		resp.UpdatedAt = u.Timestamp
	} else {
		resp.UpdatedAt = firstNonEmpty(job.UpdatedAt, job.CompletedAt, job.FailedAt, job.CreatedAt)
	}

	if resp.Status == string(model.StatusFailed) {
		resp.Error = job.Error
		if resp.Error == "" {
			var extraction model.Extraction
			if err := state.Load(c.Context(), st, state.GroupExtractions, jobID, &extraction); err == nil {
				resp.Error = extraction.Error
				resp.Stage = extraction.Stage
			}
		}
	}

	return c.JSON(resp)
}

func getResultsHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(state.Store)

	jobID := c.Params("jobId")
	if jobID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Job ID is required",
		})
	}

	var extraction model.Extraction
	if err := state.Load(c.Context(), st, state.GroupExtractions, jobID, &extraction); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Extraction results for job ID '" + jobID + "' not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get extraction results",
		})
	}

	if extraction.Error != "" {
		stage := extraction.Stage
		if stage == "" {
			stage = "unknown"
		}
		resp := ResultsResponse{
			JobID:            jobID,
			Status:           model.StatusFailed,
			URL:              extraction.URL,
			Error:            extraction.Error,
			Stage:            stage,
			FailedAt:         extraction.FailedAt,
			ValidationErrors: extraction.ValidationErrors,
			ScraperID:        extraction.ScraperID,
		}
		if extraction.Schema != nil && !extraction.Schema.IsZero() {
			resp.Schema = extraction.Schema
		}
		return c.JSON(resp)
	}

	data := extraction.Data
	if data == nil {
		data = map[string]any{}
	}
	cached := extraction.Cached
	return c.JSON(ResultsResponse{
		JobID:            jobID,
		Status:           model.StatusCompleted,
		Data:             data,
		URL:              extraction.URL,
		CompletedAt:      extraction.CompletedAt,
		Cached:           &cached,
		ScraperID:        extraction.ScraperID,
		Model:            extraction.Model,
		Usage:            extraction.Usage,
		Metadata:         extraction.Metadata,
		ValidationErrors: extraction.ValidationErrors,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
