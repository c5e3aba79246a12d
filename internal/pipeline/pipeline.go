// Package pipeline implements the four event-driven stages that take a
// job from queued to a terminal state: Fetch (extraction.requested),
// Extract (webpage.fetched), Store (extraction.completed), and the Error
// handler (extraction.failed). Stages communicate through minimal bus
// envelopes and keep large bodies in the state store's payload
// side-tables, so every handler is safe to re-run on redelivery.
package pipeline

import (
	"context"
	"log/slog"

	"webtap/internal/bus"
	"webtap/internal/cache"
	"webtap/internal/llm"
	"webtap/internal/model"
	"webtap/internal/progress"
	"webtap/internal/scraper"
	"webtap/internal/state"
)

// Stages bundles the collaborators every stage shares.
type Stages struct {
	Store    state.Store
	Bus      bus.Bus
	Progress progress.Stream
	Cache    *cache.Cache
	Simple   scraper.Scraper
	Heavy    scraper.Scraper
	LLM      llm.Client
	Logger   *slog.Logger
}

// Register subscribes all four stages on the bus.
func (s *Stages) Register() {
	s.Bus.Subscribe(bus.TopicExtractionRequested, s.HandleFetch)
	s.Bus.Subscribe(bus.TopicWebpageFetched, s.HandleExtract)
	s.Bus.Subscribe(bus.TopicExtractionCompleted, s.HandleStore)
	s.Bus.Subscribe(bus.TopicExtractionFailed, s.HandleError)
}

// emitFailure publishes extraction.failed for a job. The failure envelope
// keeps the job's lane so the error handler runs after any in-flight
// stage work for the same job.
func (s *Stages) emitFailure(ctx context.Context, jobID, errMsg, stage, url string, validationErrors []string) {
	s.Logger.Error("stage failed", "job_id", jobID, "stage", stage, "error", errMsg)
	ev := model.ExtractionFailed{
		JobID:            jobID,
		Error:            errMsg,
		Stage:            stage,
		URL:              url,
		ValidationErrors: validationErrors,
	}
	if err := s.Bus.Publish(ctx, bus.TopicExtractionFailed, jobID, ev); err != nil {
		s.Logger.Error("failed to publish failure event", "job_id", jobID, "error", err)
	}
}

// jobTerminal reports whether the jobs row is already completed or
// failed. Used by the Store stage and the Error handler to keep duplicate
// deliveries from re-terminalizing a job.
func (s *Stages) jobTerminal(ctx context.Context, jobID string) (model.Job, bool) {
	var job model.Job
	if err := state.Load(ctx, s.Store, state.GroupJobs, jobID, &job); err != nil {
		return model.Job{}, false
	}
	return job, job.Status.Terminal()
}
