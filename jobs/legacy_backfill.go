package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/veranda-ops/veranda-ops/internal/jobs"
	"github.com/veranda-ops/veranda-ops/internal/ledger"
	"github.com/veranda-ops/veranda-ops/internal/location"
)

const backfillBatchSize = 200

// DepartmentLister enumerates departments for the sweep.
type DepartmentLister interface {
	ListDepartments(ctx context.Context) ([]location.Department, error)
}

// LegacyLister enumerates legacy product ids per product type.
type LegacyLister interface {
	ListLegacyProductIDs(ctx context.Context, productType ledger.ProductType) ([]int64, error)
}

// BalanceReader reads balances, materializing missing ledger rows as a side
// effect of the read path.
type BalanceReader interface {
	GetBalances(ctx context.Context, productType ledger.ProductType, productIDs []int64, departmentID int64, sectionID *int64) map[int64]int64
}

// LegacyBackfillJob walks every department and legacy product and reads each
// balance once, so the ledger is populated ahead of first interactive read
// instead of lazily on request.
type LegacyBackfillJob struct {
	Departments DepartmentLister
	Legacy      LegacyLister
	Balances    BalanceReader
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewLegacyBackfillJob initialises the backfill handler.
func NewLegacyBackfillJob(departments DepartmentLister, legacy LegacyLister, balances BalanceReader, logger *slog.Logger, metrics *jobmetrics.Metrics) *LegacyBackfillJob {
	return &LegacyBackfillJob{
		Departments: departments,
		Legacy:      legacy,
		Balances:    balances,
		Logger:      logger,
		Metrics:     metrics,
	}
}

// Handle executes one backfill sweep.
func (j *LegacyBackfillJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Departments == nil || j.Legacy == nil || j.Balances == nil {
		return errors.New("legacy backfill: handler not configured")
	}
	var payload LegacyBackfillPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskLegacyBackfill)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Time("scheduled_for", payload.ScheduledFor))
	logger.Info("starting legacy backfill sweep")
	start := time.Now()

	departments, err := j.Departments.ListDepartments(ctx)
	if err != nil {
		resultErr = err
		logger.Error("list departments", slog.Any("error", err))
		return resultErr
	}

	productTypes := []ledger.ProductType{ledger.ProductTypeDrink, ledger.ProductTypeInventoryItem}
	var swept int
	for _, productType := range productTypes {
		ids, err := j.Legacy.ListLegacyProductIDs(ctx, productType)
		if err != nil {
			resultErr = err
			logger.Error("list legacy products", slog.String("product_type", string(productType)), slog.Any("error", err))
			return resultErr
		}
		if len(ids) == 0 {
			continue
		}
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(4)
		for _, dept := range departments {
			dept := dept
			group.Go(func() error {
				for offset := 0; offset < len(ids); offset += backfillBatchSize {
					end := offset + backfillBatchSize
					if end > len(ids) {
						end = len(ids)
					}
					if err := groupCtx.Err(); err != nil {
						return err
					}
					j.Balances.GetBalances(groupCtx, productType, ids[offset:end], dept.ID, nil)
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			resultErr = err
			return resultErr
		}
		swept += len(ids) * len(departments)
	}

	logger.Info("legacy backfill sweep finished",
		slog.Int("departments", len(departments)),
		slog.Int("reads", swept),
		slog.Duration("took", time.Since(start)))
	return nil
}

func (j *LegacyBackfillJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
