package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLegacyBackfill sweeps legacy product tables and materializes ledger rows.
	TaskLegacyBackfill = "ledger:legacy_backfill"
	// TaskStaleTransferScan reports transfer requests stuck in pending.
	TaskStaleTransferScan = "transfer:stale_scan"
)

// LegacyBackfillPayload carries scheduling metadata for the backfill sweep.
type LegacyBackfillPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLegacyBackfillTask constructs an Asynq task for the legacy backfill sweep.
func NewLegacyBackfillTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LegacyBackfillPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLegacyBackfill, body, asynq.Queue(QueueDefault)), nil
}

// StaleTransferScanPayload tunes the staleness window for one scan.
type StaleTransferScanPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewStaleTransferScanTask constructs an Asynq task for the stale transfer scan.
func NewStaleTransferScanTask(olderThan time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(StaleTransferScanPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStaleTransferScan, body, asynq.Queue(QueueDefault)), nil
}
