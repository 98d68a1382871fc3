package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/veranda-ops/veranda-ops/internal/jobs"
	"github.com/veranda-ops/veranda-ops/internal/transfer"
)

type memoryStaleStore struct {
	requests  []transfer.Request
	olderThan time.Duration
}

func (m *memoryStaleStore) ListStalePending(ctx context.Context, olderThan time.Duration) ([]transfer.Request, error) {
	m.olderThan = olderThan
	return m.requests, nil
}

func TestStaleTransferScanUsesPayloadWindow(t *testing.T) {
	store := &memoryStaleStore{requests: []transfer.Request{
		{ID: 11, Reference: "ref-a", FromDepartment: 1, Status: transfer.StatusPending},
	}}
	job := NewStaleTransferScanJob(store, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()), 72*time.Hour)

	task, err := NewStaleTransferScanTask(24 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 24*time.Hour, store.olderThan)
}

func TestStaleTransferScanFallsBackToConfiguredWindow(t *testing.T) {
	store := &memoryStaleStore{}
	job := NewStaleTransferScanJob(store, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()), 48*time.Hour)

	task, err := NewStaleTransferScanTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, store.olderThan)
}

func TestStaleTransferScanRejectsMalformedPayload(t *testing.T) {
	store := &memoryStaleStore{}
	job := NewStaleTransferScanJob(store, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()), time.Hour)

	err := job.Handle(context.Background(), asynq.NewTask(TaskStaleTransferScan, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
