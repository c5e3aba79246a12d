package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"webtap/internal/bus"
	"webtap/internal/model"
	"webtap/internal/progress"
	"webtap/internal/state"
)

// HandleError consumes extraction.failed. It marks the job and the
// extractions row failed and pushes the terminal progress update. A job
// that is already terminal is left alone: a late duplicate must not
// clobber a stored result or re-stamp an existing failure.
func (s *Stages) HandleError(ctx context.Context, msg bus.Message) error {
	var ev model.ExtractionFailed
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		s.Logger.Error("undecodable extraction.failed event", "error", err)
		return nil
	}
	if ev.JobID == "" {
		s.Logger.Error("failure event missing job_id", "error", ev.Error)
		return nil
	}

	failedAt := model.Now()
	s.Logger.Error("extraction failed", "job_id", ev.JobID,
		"stage", ev.Stage, "url", ev.URL, "error", truncate(ev.Error, 200))

	var job model.Job
	if err := state.Load(ctx, s.Store, state.GroupJobs, ev.JobID, &job); err != nil {
		job = model.Job{JobID: ev.JobID}
	}
	if job.Status.Terminal() {
		s.Logger.Info("job already terminal, ignoring failure event",
			"job_id", ev.JobID, "status", job.Status)
		return nil
	}

	job.Status = model.StatusFailed
	job.Error = ev.Error
	job.Stage = ev.Stage
	job.FailedAt = failedAt
	job.UpdatedAt = failedAt
	if ev.URL != "" {
		job.URL = ev.URL
	}
	if err := s.Store.Set(ctx, state.GroupJobs, ev.JobID, job); err != nil {
		s.Logger.Error("failed to store job failure", "job_id", ev.JobID, "error", err)
	}

	errRow := model.Extraction{
		JobID:            ev.JobID,
		Status:           model.StatusFailed,
		Error:            ev.Error,
		Stage:            ev.Stage,
		FailedAt:         failedAt,
		URL:              ev.URL,
		ValidationErrors: ev.ValidationErrors,
	}
	if err := s.Store.Set(ctx, state.GroupExtractions, ev.JobID, errRow); err != nil {
		s.Logger.Error("failed to store error details", "job_id", ev.JobID, "error", err)
	}

	progress.PushFailure(ctx, s.Progress, s.Logger, ev.JobID, ev.Stage,
		fmt.Sprintf("[%s] %s", ev.Stage, truncate(ev.Error, 100)))

	s.Logger.Info("error handling completed", "job_id", ev.JobID)
	return nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
