package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/stockd/internal/shared"
)

// Stage is the position of a job in its lifecycle.
type Stage string

const (
	StageQueued      Stage = "queued"
	StageParsed      Stage = "parsed"
	StageReconciling Stage = "reconciling"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)

// Done reports whether the stage is terminal.
func (s Stage) Done() bool {
	return s == StageCompleted || s == StageFailed
}

// Job tracks one uploaded file through parsing and reconciliation.
type Job struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"type"`
	Stage     Stage     `json:"stage"`
	FileName  string    `json:"file_name"`
	Path      string    `json:"-"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	Rows      int       `json:"rows,omitempty"`
	Report    *Report   `json:"report,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobStore persists job state.
type JobStore interface {
	Save(ctx context.Context, job Job) error
	Load(ctx context.Context, id string) (Job, error)
}

// RedisJobStore keeps jobs as JSON documents with a TTL.
type RedisJobStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisJobStore builds the store. A non-positive ttl defaults to 24h.
func NewRedisJobStore(client *redis.Client, ttl time.Duration) *RedisJobStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisJobStore{client: client, ttl: ttl, prefix: "stockd:import:job:"}
}

// storedJob is the Redis document; it keeps the upload path the public
// JSON view leaves out.
type storedJob struct {
	Job
	Path string `json:"path"`
}

// Save writes the job and refreshes its TTL.
func (s *RedisJobStore) Save(ctx context.Context, job Job) error {
	raw, err := json.Marshal(storedJob{Job: job, Path: job.Path})
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+job.ID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("importer: save job %s: %w", job.ID, err)
	}
	return nil
}

// Load returns a stored job or shared.ErrNotFound.
func (s *RedisJobStore) Load(ctx context.Context, id string) (Job, error) {
	raw, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Job{}, fmt.Errorf("importer: job %s: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Job{}, fmt.Errorf("importer: load job %s: %w", id, err)
	}
	var stored storedJob
	if err := json.Unmarshal(raw, &stored); err != nil {
		return Job{}, fmt.Errorf("importer: decode job %s: %w", id, err)
	}
	job := stored.Job
	job.Path = stored.Path
	return job, nil
}
