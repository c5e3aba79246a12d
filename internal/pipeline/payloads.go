package pipeline

import (
	"context"

	"webtap/internal/model"
	"webtap/internal/state"
)

// Typed handles for the payload side-tables. Each stage's event envelope
// only references state by job_id; these resolve the reference.

func (s *Stages) loadJobPayload(ctx context.Context, jobID string) (model.JobPayload, error) {
	var p model.JobPayload
	err := state.Load(ctx, s.Store, state.GroupJobPayloads, jobID, &p)
	return p, err
}

func (s *Stages) loadFetchPayload(ctx context.Context, jobID string) (model.FetchPayload, error) {
	var p model.FetchPayload
	err := state.Load(ctx, s.Store, state.GroupFetchPayloads, jobID, &p)
	return p, err
}

func (s *Stages) loadExtractionPayload(ctx context.Context, jobID string) (model.ExtractionPayload, error) {
	var p model.ExtractionPayload
	err := state.Load(ctx, s.Store, state.GroupExtractionPayloads, jobID, &p)
	return p, err
}

// deletePayload is best-effort cleanup; a failed delete only leaves a row
// behind.
func (s *Stages) deletePayload(ctx context.Context, group, jobID string) {
	if err := s.Store.Delete(ctx, group, jobID); err != nil {
		s.Logger.Warn("payload cleanup failed", "group", group, "job_id", jobID, "error", err)
	}
}
