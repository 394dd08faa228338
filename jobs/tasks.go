package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockd/internal/importer"
	"github.com/odyssey-erp/stockd/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskImportRun runs a stored import job.
	TaskImportRun = "import:run"
	// TaskUploadSweep removes upload files older than the job retention.
	TaskUploadSweep = "import:sweep-uploads"
)

// ImportPayload identifies the import job to run.
type ImportPayload struct {
	JobID string `json:"job_id"`
}

// NewImportTask constructs an import task. Retries are disabled: a re-run
// is idempotent but its report would no longer describe a single run.
func NewImportTask(jobID string) (*asynq.Task, error) {
	data, err := json.Marshal(ImportPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskImportRun, data, asynq.Queue(QueueDefault), asynq.MaxRetry(0)), nil
}

// ImportProcessor executes stored import jobs.
type ImportProcessor interface {
	Process(ctx context.Context, jobID string) (importer.Job, error)
}

// NewImportHandler processes TaskImportRun tasks.
func NewImportHandler(processor ImportProcessor, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ImportPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.JobID == "" {
			return fmt.Errorf("jobs: bad import payload: %w", asynq.SkipRetry)
		}
		job, err := processor.Process(ctx, payload.JobID)
		if errors.Is(err, shared.ErrNotFound) {
			// the job expired before a worker picked it up
			logger.Warn("import job not found", slog.String("job_id", payload.JobID))
			return fmt.Errorf("jobs: %w: %w", err, asynq.SkipRetry)
		}
		if err != nil {
			return err
		}
		logger.Info("import job processed", slog.String("job_id", job.ID), slog.String("stage", string(job.Stage)))
		return nil
	}
}

// UploadSweeper deletes stale uploads.
type UploadSweeper interface {
	Sweep(olderThan time.Time) (int, error)
}

// NewUploadSweepTask constructs the periodic sweep task.
func NewUploadSweepTask() *asynq.Task {
	return asynq.NewTask(TaskUploadSweep, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}

// NewUploadSweepHandler removes uploads older than retention.
func NewUploadSweepHandler(sweeper UploadSweeper, retention time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		removed, err := sweeper.Sweep(time.Now().Add(-retention))
		if err != nil {
			return err
		}
		if removed > 0 {
			logger.Info("stale uploads removed", slog.Int("count", removed))
		}
		return nil
	}
}
