package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"webtap/internal/bus"
	"webtap/internal/metrics"
	"webtap/internal/model"
	"webtap/internal/progress"
	"webtap/internal/state"
	"webtap/internal/validator"
)

// HandleStore consumes extraction.completed. It validates structured
// extractions against the schema, writes the terminal extractions and
// jobs rows, feeds the extraction cache, and cleans up every side-table
// row for the job. A job that is already terminal is left untouched so a
// redelivered event cannot change the stored result.
func (s *Stages) HandleStore(ctx context.Context, msg bus.Message) error {
	var ev model.ExtractionCompleted
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		s.Logger.Error("undecodable extraction.completed event", "error", err)
		return nil
	}
	if ev.JobID == "" {
		s.emitFailure(ctx, ev.JobID, "job_id is required", model.StageStoring, ev.URL, nil)
		return nil
	}

	if job, terminal := s.jobTerminal(ctx, ev.JobID); terminal {
		s.Logger.Info("job already terminal, skipping store",
			"job_id", ev.JobID, "status", job.Status)
		metrics.RecordStage(model.StageStoring, "skipped")
		return nil
	}

	payload, err := s.loadExtractionPayload(ctx, ev.JobID)
	if err != nil {
		s.emitFailure(ctx, ev.JobID, "Extraction payload not found in state", model.StageStoring, ev.URL, nil)
		metrics.RecordStage(model.StageStoring, "failed")
		return nil
	}
	if len(payload.Data) == 0 {
		s.emitFailure(ctx, ev.JobID, "data is required", model.StageStoring, ev.URL, nil)
		metrics.RecordStage(model.StageStoring, "failed")
		return nil
	}

	s.Logger.Info("storing extraction results", "job_id", ev.JobID,
		"url", ev.URL, "cached", ev.Cached, "cache_type", ev.CacheType)
	progress.Push(ctx, s.Progress, s.Logger, ev.JobID, model.StatusValidating, "Validating results...")

	if payload.Schema.Structured() {
		valid, errs := validator.Validate(payload.Data, payload.Schema.Object)
		if !valid {
			s.emitFailure(ctx, ev.JobID, validator.FailureMessage(errs), model.StageStoring, ev.URL, errs)
			metrics.RecordStage(model.StageStoring, "failed")
			return nil
		}
	}

	completedAt := model.Now()
	extraction := model.Extraction{
		JobID:       ev.JobID,
		Status:      model.StatusCompleted,
		Data:        payload.Data,
		URL:         ev.URL,
		Schema:      &payload.Schema,
		ScraperID:   ev.ScraperID,
		CompletedAt: completedAt,
		Model:       payload.Model,
		Usage:       payload.Usage,
		Cached:      ev.Cached,
		Metadata:    payload.Metadata,
	}
	if err := s.Store.Set(ctx, state.GroupExtractions, ev.JobID, extraction); err != nil {
		s.emitFailure(ctx, ev.JobID, fmt.Sprintf("Failed to store results: %v", err), model.StageStoring, ev.URL, nil)
		metrics.RecordStage(model.StageStoring, "failed")
		return nil
	}

	// Merge the terminal status into the existing job row rather than
	// overwriting it, keeping created_at and options intact.
	var job model.Job
	if err := state.Load(ctx, s.Store, state.GroupJobs, ev.JobID, &job); err != nil {
		job = model.Job{JobID: ev.JobID}
	}
	job.Status = model.StatusCompleted
	job.CompletedAt = completedAt
	job.UpdatedAt = completedAt
	job.URL = ev.URL
	job.ScraperID = ev.ScraperID
	if err := s.Store.Set(ctx, state.GroupJobs, ev.JobID, job); err != nil {
		s.Logger.Warn("job status update failed", "job_id", ev.JobID, "error", err)
	}

	// Feed the extraction cache unless this run was itself served from it.
	if (!ev.Cached || ev.CacheType != "extraction") && ev.URL != "" && !payload.Schema.IsZero() {
		s.Cache.PutExtraction(ctx, ev.URL, payload.Schema, payload.Data, payload.Model, ev.ScraperID, payload.Metadata)
	}

	s.deletePayload(ctx, state.GroupFetchPayloads, ev.JobID)
	s.deletePayload(ctx, state.GroupExtractionPayloads, ev.JobID)
	s.deletePayload(ctx, state.GroupJobPayloads, ev.JobID)

	progress.Push(ctx, s.Progress, s.Logger, ev.JobID, model.StatusCompleted, "Extraction completed")

	stored := model.ResultsStored{
		JobID:       ev.JobID,
		URL:         ev.URL,
		ScraperID:   ev.ScraperID,
		CompletedAt: completedAt,
		Cached:      ev.Cached,
	}
	if err := s.Bus.Publish(ctx, bus.TopicResultsStored, msg.GroupID, stored); err != nil {
		return err
	}

	s.Logger.Info("store completed", "job_id", ev.JobID, "url", ev.URL)
	metrics.RecordStage(model.StageStoring, "ok")
	return nil
}
