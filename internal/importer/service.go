package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	jobmetrics "github.com/odyssey-erp/stockd/internal/jobs"
)

// ErrJobFailed is returned by Process when the job ends in StageFailed.
var ErrJobFailed = errors.New("import job failed")

// Enqueuer hands a stored job over to a background worker.
type Enqueuer interface {
	EnqueueImport(ctx context.Context, jobID string) error
}

// Upload is a file submitted for import.
type Upload struct {
	Kind     Kind
	FileName string
	Body     io.Reader
}

// ServiceConfig toggles background execution.
type ServiceConfig struct {
	Async bool
}

// Service owns the lifecycle of import jobs.
type Service struct {
	reconciler *Reconciler
	jobs       JobStore
	uploads    *UploadStore
	enqueuer   Enqueuer
	async      bool
	logger     *slog.Logger
	metrics    *jobmetrics.Metrics
	now        func() time.Time
}

// NewService builds the import service. enqueuer may be nil when cfg.Async
// is false.
func NewService(reconciler *Reconciler, jobs JobStore, uploads *UploadStore, enqueuer Enqueuer, cfg ServiceConfig, logger *slog.Logger, metrics *jobmetrics.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		reconciler: reconciler,
		jobs:       jobs,
		uploads:    uploads,
		enqueuer:   enqueuer,
		async:      cfg.Async && enqueuer != nil,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Submit stores the upload, records a job and either runs it inline or
// queues it. A job that fails while running inline is returned with
// StageFailed and a nil error.
func (s *Service) Submit(ctx context.Context, up Upload) (Job, error) {
	if _, err := FormatFromName(up.FileName); err != nil {
		return Job{}, err
	}
	stored, err := s.uploads.Save(up.FileName, up.Body)
	if err != nil {
		return Job{}, err
	}
	now := s.now().UTC()
	job := Job{
		ID:        uuid.NewString(),
		Kind:      up.Kind,
		FileName:  up.FileName,
		Path:      stored.Path,
		Checksum:  stored.Checksum,
		Size:      stored.Size,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.logger.Info("import submitted",
		slog.String("job_id", job.ID),
		slog.String("kind", string(job.Kind)),
		slog.String("file", job.FileName),
		slog.String("checksum", job.Checksum))

	if s.async {
		job.Stage = StageQueued
		if err := s.jobs.Save(ctx, job); err != nil {
			return Job{}, err
		}
		if err := s.enqueuer.EnqueueImport(ctx, job.ID); err != nil {
			return s.fail(ctx, job, fmt.Errorf("enqueue: %w", err))
		}
		return job, nil
	}
	return s.execute(ctx, job)
}

// Process runs a stored job. Jobs already in a terminal stage are returned
// untouched.
func (s *Service) Process(ctx context.Context, id string) (Job, error) {
	job, err := s.jobs.Load(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if job.Stage.Done() {
		return job, nil
	}
	job, err = s.execute(ctx, job)
	if err != nil {
		return job, err
	}
	if job.Stage == StageFailed {
		return job, fmt.Errorf("%w: %s", ErrJobFailed, job.Error)
	}
	return job, nil
}

// Job returns the current state of a job.
func (s *Service) Job(ctx context.Context, id string) (Job, error) {
	return s.jobs.Load(ctx, id)
}

func (s *Service) execute(ctx context.Context, job Job) (Job, error) {
	tracker := s.metrics.Track("import_" + string(job.Kind))

	rows, err := s.readRows(job)
	if err != nil {
		_ = tracker.End(err)
		return s.fail(ctx, job, err)
	}
	job.Rows = max(len(rows)-1, 0)
	if err := s.advance(ctx, &job, StageParsed); err != nil {
		return job, tracker.End(err)
	}
	if err := s.advance(ctx, &job, StageReconciling); err != nil {
		return job, tracker.End(err)
	}

	report, err := s.reconciler.Run(ctx, job.Kind, rows)
	job.Report = &report
	if err != nil {
		_ = tracker.End(err)
		return s.fail(ctx, job, err)
	}
	_ = tracker.End(nil)
	if err := s.advance(ctx, &job, StageCompleted); err != nil {
		return job, err
	}
	return job, nil
}

func (s *Service) readRows(job Job) ([][]string, error) {
	format, err := FormatFromName(job.FileName)
	if err != nil {
		return nil, err
	}
	f, err := s.uploads.Open(job.Path)
	if err != nil {
		return nil, fmt.Errorf("importer: open upload: %w", err)
	}
	defer f.Close()
	return ReadRows(f, format)
}

func (s *Service) advance(ctx context.Context, job *Job, stage Stage) error {
	job.Stage = stage
	job.UpdatedAt = s.now().UTC()
	return s.jobs.Save(ctx, *job)
}

func (s *Service) fail(ctx context.Context, job Job, cause error) (Job, error) {
	s.logger.Error("import failed", slog.String("job_id", job.ID), slog.Any("error", cause))
	job.Error = cause.Error()
	// the request context may be the reason for failure
	saveCtx := context.WithoutCancel(ctx)
	if err := s.advance(saveCtx, &job, StageFailed); err != nil {
		return job, err
	}
	return job, nil
}
