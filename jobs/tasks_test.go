package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockd/internal/importer"
	"github.com/odyssey-erp/stockd/internal/shared"
)

type stubProcessor struct {
	ids []string
	err error
}

func (p *stubProcessor) Process(ctx context.Context, jobID string) (importer.Job, error) {
	p.ids = append(p.ids, jobID)
	return importer.Job{ID: jobID, Stage: importer.StageCompleted}, p.err
}

func TestImportTaskRoundTrip(t *testing.T) {
	task, err := NewImportTask("job-1")
	require.NoError(t, err)
	require.Equal(t, TaskImportRun, task.Type())

	proc := &stubProcessor{}
	handler := NewImportHandler(proc, slog.Default())
	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, []string{"job-1"}, proc.ids)
}

func TestImportHandlerSkipsRetryForBadOrMissingJobs(t *testing.T) {
	proc := &stubProcessor{}
	handler := NewImportHandler(proc, slog.Default())

	err := handler(context.Background(), asynq.NewTask(TaskImportRun, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	proc.err = shared.ErrNotFound
	task, err := NewImportTask("gone")
	require.NoError(t, err)
	err = handler(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, shared.ErrNotFound)

	proc.err = importer.ErrJobFailed
	err = handler(context.Background(), task)
	require.ErrorIs(t, err, importer.ErrJobFailed)
	require.False(t, errors.Is(err, asynq.SkipRetry))
}

type stubSweeper struct{ cutoff time.Time }

func (s *stubSweeper) Sweep(olderThan time.Time) (int, error) {
	s.cutoff = olderThan
	return 2, nil
}

func TestUploadSweepHandlerUsesRetention(t *testing.T) {
	sw := &stubSweeper{}
	handler := NewUploadSweepHandler(sw, time.Hour, slog.Default())
	require.NoError(t, handler(context.Background(), NewUploadSweepTask()))
	require.WithinDuration(t, time.Now().Add(-time.Hour), sw.cutoff, 5*time.Second)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthEndpoint(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   int
	}{
		{name: "inline", inspector: nil, status: http.StatusOK},
		{name: "queue", inspector: stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3}}, status: http.StatusOK, pending: 3},
		{name: "down", inspector: stubInspector{err: errors.New("dial")}, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Route("/jobs", NewHandler(tc.inspector, nil).MountRoutes)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
			require.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				var body queueHealth
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				require.Equal(t, tc.pending, body.Pending)
			}
		})
	}
}
