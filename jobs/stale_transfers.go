package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/veranda-ops/veranda-ops/internal/jobs"
	"github.com/veranda-ops/veranda-ops/internal/transfer"
)

// StaleTransferStore lists transfer requests stuck before execution.
type StaleTransferStore interface {
	ListStalePending(ctx context.Context, olderThan time.Duration) ([]transfer.Request, error)
}

// StaleTransferScanJob reports transfer requests that were created but never
// executed within the configured window. The scan only observes; requests are
// never failed or expired automatically.
type StaleTransferScanJob struct {
	Store     StaleTransferStore
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	OlderThan time.Duration
}

// NewStaleTransferScanJob initialises the stale transfer scan handler.
func NewStaleTransferScanJob(store StaleTransferStore, logger *slog.Logger, metrics *jobmetrics.Metrics, olderThan time.Duration) *StaleTransferScanJob {
	return &StaleTransferScanJob{Store: store, Logger: logger, Metrics: metrics, OlderThan: olderThan}
}

// Handle executes one scan.
func (j *StaleTransferScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("stale transfer scan: handler not configured")
	}
	var payload StaleTransferScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	olderThan := payload.OlderThan
	if olderThan <= 0 {
		olderThan = j.OlderThan
	}
	if olderThan <= 0 {
		olderThan = 72 * time.Hour
	}

	tracker := j.Metrics.Track(TaskStaleTransferScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	stale, err := j.Store.ListStalePending(ctx, olderThan)
	if err != nil {
		resultErr = err
		j.logger().Error("list stale transfers", slog.Any("error", err))
		return resultErr
	}
	j.Metrics.SetStalePending(string(transfer.StatusPending), len(stale))
	for _, req := range stale {
		j.logger().Warn("transfer request stale",
			slog.Int64("transfer_id", req.ID),
			slog.String("reference", req.Reference),
			slog.Int64("from_department", req.FromDepartment),
			slog.Time("created_at", req.CreatedAt))
	}
	j.logger().Info("stale transfer scan finished",
		slog.Duration("older_than", olderThan),
		slog.Int("stale", len(stale)))
	return nil
}

func (j *StaleTransferScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
