// Package progress maintains the per-job progress stream: a last-write-wins
// status row consumers poll or subscribe to while a job is in flight.
package progress

import (
	"context"
	"errors"
	"log/slog"

	"webtap/internal/model"
)

// ErrNotFound is returned by Get when a job has no progress row yet.
var ErrNotFound = errors.New("progress: not found")

// Update is one progress row. Writes for the same id overwrite each other;
// only the latest matters.
type Update struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Percent   int    `json:"percent"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Stream is the progress store contract.
type Stream interface {
	Set(ctx context.Context, u Update) error
	Get(ctx context.Context, jobID string) (Update, error)
}

// Progress percents per status.
var percents = map[model.Status]int{
	model.StatusFetching:   20,
	model.StatusFetched:    40,
	model.StatusExtracting: 60,
	model.StatusExtracted:  80,
	model.StatusValidating: 90,
	model.StatusCompleted:  100,
}

// Failure percents per failed stage.
var failurePercents = map[string]int{
	model.StageFetching:   20,
	model.StageExtracting: 60,
	model.StageStoring:    90,
}

// Percent returns the progress percent for a non-failed status.
func Percent(status model.Status) int {
	return percents[status]
}

// FailurePercent returns the percent recorded for a failure in the given
// stage, 50 when the stage is unknown.
func FailurePercent(stage string) int {
	if p, ok := failurePercents[stage]; ok {
		return p
	}
	return 50
}

// Push writes a status update for a job. Progress is advisory: failures
// are logged and swallowed so they never fail the stage that pushed.
func Push(ctx context.Context, s Stream, logger *slog.Logger, jobID string, status model.Status, message string) {
	u := Update{
		ID:        jobID,
		Status:    string(status),
		Percent:   Percent(status),
		Message:   message,
		Timestamp: model.Now(),
	}
	if err := s.Set(ctx, u); err != nil {
		logger.Warn("progress write failed", "job_id", jobID, "status", status, "error", err)
	}
}

// PushFailure writes the terminal failed update for a job.
func PushFailure(ctx context.Context, s Stream, logger *slog.Logger, jobID, stage, message string) {
	u := Update{
		ID:        jobID,
		Status:    string(model.StatusFailed),
		Percent:   FailurePercent(stage),
		Message:   message,
		Timestamp: model.Now(),
	}
	if err := s.Set(ctx, u); err != nil {
		logger.Warn("progress write failed", "job_id", jobID, "status", model.StatusFailed, "error", err)
	}
}
