package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"webtap/internal/bus"
	"webtap/internal/llm"
	"webtap/internal/metrics"
	"webtap/internal/model"
	"webtap/internal/progress"
	"webtap/internal/state"
)

// HandleExtract consumes webpage.fetched. It loads the markdown from
// fetch_payloads, runs the language model, and hands the extracted data to
// the Store stage through extraction_payloads. The fetch payload is left
// in place; the Store stage owns its cleanup.
func (s *Stages) HandleExtract(ctx context.Context, msg bus.Message) error {
	var ev model.WebpageFetched
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		s.Logger.Error("undecodable webpage.fetched event", "error", err)
		return nil
	}
	if ev.JobID == "" {
		s.emitFailure(ctx, ev.JobID, "job_id is required", model.StageExtracting, ev.URL, nil)
		return nil
	}

	payload, err := s.loadFetchPayload(ctx, ev.JobID)
	if err != nil {
		s.emitFailure(ctx, ev.JobID, "Fetch payload not found in state", model.StageExtracting, ev.URL, nil)
		metrics.RecordStage(model.StageExtracting, "failed")
		return nil
	}
	if payload.Markdown == "" {
		s.emitFailure(ctx, ev.JobID, "markdown is required", model.StageExtracting, ev.URL, nil)
		metrics.RecordStage(model.StageExtracting, "failed")
		return nil
	}
	if payload.Schema.IsZero() {
		s.emitFailure(ctx, ev.JobID, "schema is required", model.StageExtracting, ev.URL, nil)
		metrics.RecordStage(model.StageExtracting, "failed")
		return nil
	}

	llmModel := ev.Options.Model
	if llmModel == "" {
		llmModel = llm.DefaultModel
	}

	s.Logger.Info("extracting with llm", "job_id", ev.JobID,
		"model", llmModel, "content_length", len(payload.Markdown))
	progress.Push(ctx, s.Progress, s.Logger, ev.JobID, model.StatusExtracting,
		fmt.Sprintf("Extracting with %s...", llmModel))

	result, err := s.LLM.Extract(ctx, llm.Request{
		Markdown: payload.Markdown,
		Schema:   payload.Schema,
		Model:    ev.Options.Model,
	})
	if err != nil {
		metrics.RecordLLMExtract(llmModel, false)
		s.emitFailure(ctx, ev.JobID, "Extraction failed: "+err.Error(), model.StageExtracting, ev.URL, nil)
		metrics.RecordStage(model.StageExtracting, "failed")
		return nil
	}
	metrics.RecordLLMExtract(result.Model, true)

	if len(result.Data) == 0 {
		s.emitFailure(ctx, ev.JobID, "Extraction returned empty data", model.StageExtracting, ev.URL, nil)
		metrics.RecordStage(model.StageExtracting, "failed")
		return nil
	}

	if err := s.Store.Set(ctx, state.GroupExtractionPayloads, ev.JobID, model.ExtractionPayload{
		Data:     result.Data,
		Schema:   payload.Schema,
		Model:    result.Model,
		Usage:    result.Usage,
		Metadata: payload.Metadata,
	}); err != nil {
		s.emitFailure(ctx, ev.JobID, fmt.Sprintf("Failed to store extraction payload: %v", err), model.StageExtracting, ev.URL, nil)
		metrics.RecordStage(model.StageExtracting, "failed")
		return nil
	}

	progress.Push(ctx, s.Progress, s.Logger, ev.JobID, model.StatusExtracted, "Data extracted")

	completed := model.ExtractionCompleted{
		JobID:     ev.JobID,
		URL:       ev.URL,
		ScraperID: ev.ScraperID,
		Cached:    ev.Cached,
	}
	if err := s.Bus.Publish(ctx, bus.TopicExtractionCompleted, msg.GroupID, completed); err != nil {
		return err
	}

	s.Logger.Info("extraction completed", "job_id", ev.JobID, "model", result.Model)
	metrics.RecordStage(model.StageExtracting, "ok")
	return nil
}
