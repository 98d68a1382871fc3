package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/veranda-ops/veranda-ops/internal/ledger"
	"github.com/veranda-ops/veranda-ops/internal/location"
)

// Store abstracts transfer persistence for the engine.
type Store interface {
	CreateRequest(ctx context.Context, req Request) (Request, error)
	GetRequest(ctx context.Context, id int64) (Request, error)
	WithTx(ctx context.Context, timeout time.Duration, fn func(context.Context, TxStore) error) error
}

// BalanceSource abstracts the ledger resolver reads the engine plans against.
type BalanceSource interface {
	CheckAvailabilityBatch(ctx context.Context, productType ledger.ProductType, requirements []ledger.Requirement, departmentID int64, sectionID *int64) []ledger.Availability
	Entries(ctx context.Context, departmentID int64, sectionID *int64, productType ledger.ProductType, productIDs []int64) (map[int64]ledger.Entry, error)
	LegacyProducts(ctx context.Context, productType ledger.ProductType, productIDs []int64) (map[int64]ledger.LegacyProduct, error)
}

// Locations abstracts destination resolution.
type Locations interface {
	Department(ctx context.Context, id int64) (location.Department, error)
	ResolveDestination(ctx context.Context, departmentID int64, code string) (location.Destination, error)
}

// EngineRecorder observes engine outcomes for metrics.
type EngineRecorder interface {
	TransferCompleted()
	TransferFailed(reason string)
}

// Config groups tuning knobs for the execution loop.
type Config struct {
	MaxAttempts  int
	RetryBackoff time.Duration
	TxTimeout    time.Duration
}

const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 200 * time.Millisecond
	defaultTxTimeout    = 15 * time.Second
)

// Engine moves stock between locations as atomic, retryable, multi-item
// transfers. Preflight reads are unsynchronized snapshots used to build the
// write plan and fail fast; the real guarantee is the conditional decrement at
// commit time.
type Engine struct {
	store     Store
	balances  BalanceSource
	locations Locations
	logger    *slog.Logger
	recorder  EngineRecorder

	maxAttempts  int
	retryBackoff time.Duration
	txTimeout    time.Duration
}

// NewEngine constructs Engine. recorder may be nil.
func NewEngine(store Store, balances BalanceSource, locations Locations, logger *slog.Logger, cfg Config, recorder EngineRecorder) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = defaultTxTimeout
	}
	return &Engine{
		store:        store,
		balances:     balances,
		locations:    locations,
		logger:       logger,
		recorder:     recorder,
		maxAttempts:  cfg.MaxAttempts,
		retryBackoff: cfg.RetryBackoff,
		txTimeout:    cfg.TxTimeout,
	}
}

// Create persists a new pending transfer request. Stock is deliberately not
// validated here; that waits until execution, tolerating the gap between when
// a transfer is requested and when it is approved. The destination, however,
// is resolved exactly once at creation and stored resolved, so a renamed
// section slug cannot redirect the transfer later.
func (e *Engine) Create(ctx context.Context, input CreateInput) (Request, error) {
	if len(input.Items) == 0 {
		return Request{}, fmt.Errorf("%w: at least one item required", ErrInvalidInput)
	}
	items := make([]Item, 0, len(input.Items))
	for i, in := range input.Items {
		productType := ledger.ProductType(in.ProductType)
		if !productType.Valid() {
			return Request{}, fmt.Errorf("%w: item %d: unknown product type %q", ErrInvalidInput, i, in.ProductType)
		}
		if in.Quantity <= 0 {
			return Request{}, fmt.Errorf("%w: item %d: quantity must be positive", ErrInvalidInput, i)
		}
		if in.ProductID <= 0 {
			return Request{}, fmt.Errorf("%w: item %d: product id required", ErrInvalidInput, i)
		}
		items = append(items, Item{ProductType: productType, ProductID: in.ProductID, Quantity: in.Quantity})
	}

	source, err := e.locations.Department(ctx, input.FromDepartmentID)
	if err != nil {
		return Request{}, wrapLocationErr(err)
	}

	dest, err := e.locations.ResolveDestination(ctx, input.ToDepartmentID, input.DestinationCode)
	if err != nil {
		return Request{}, wrapLocationErr(err)
	}
	if dest.DepartmentID == source.ID && !dest.IsSection() {
		return Request{}, fmt.Errorf("%w: source and destination must differ", ErrInvalidInput)
	}

	req := Request{
		Reference:       uuid.NewString(),
		FromDepartment:  source.ID,
		Destination:     dest,
		DestinationCode: input.DestinationCode,
		Status:          StatusPending,
		CreatedBy:       input.CreatedBy,
		Items:           items,
	}
	return e.store.CreateRequest(ctx, req)
}

// Approve executes a transfer to completion or reports why it cannot run.
// Either every item moves and the status becomes completed, or nothing moves
// and the status is unchanged.
func (e *Engine) Approve(ctx context.Context, transferID int64) (Request, error) {
	req, err := e.store.GetRequest(ctx, transferID)
	if err != nil {
		e.recordFailure(err)
		return Request{}, err
	}
	if !req.Status.Executable() {
		e.recordFailure(ErrAlreadyProcessed)
		return req, ErrAlreadyProcessed
	}

	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := e.sleep(ctx, time.Duration(attempt-1)*e.retryBackoff); err != nil {
				break
			}
		}
		err := e.execute(ctx, &req)
		if err == nil {
			req.Status = StatusCompleted
			if e.recorder != nil {
				e.recorder.TransferCompleted()
			}
			return req, nil
		}
		if isTerminal(err) {
			e.recordFailure(err)
			return req, err
		}
		lastErr = err
		e.logger.Warn("transfer attempt failed",
			slog.Int64("transfer_id", req.ID),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
	}

	e.recordFailure(ErrExecutionFailed)
	return req, fmt.Errorf("%w: %v", ErrExecutionFailed, lastErr)
}

// execute runs one attempt: preflight, plan, then a single guarded
// transaction.
func (e *Engine) execute(ctx context.Context, req *Request) error {
	groups := groupByType(req.Items)

	// Preflight: fail fast on obvious shortfalls before opening a transaction.
	var shortfalls []ledger.Availability
	for productType, items := range groups {
		reqs := make([]ledger.Requirement, 0, len(items))
		for _, item := range items {
			reqs = append(reqs, ledger.Requirement{ProductID: item.ProductID, Quantity: item.Quantity})
		}
		for _, avail := range e.balances.CheckAvailabilityBatch(ctx, productType, reqs, req.FromDepartment, nil) {
			if !avail.HasStock {
				shortfalls = append(shortfalls, avail)
			}
		}
	}
	if len(shortfalls) > 0 {
		return &InsufficientStockError{Shortfalls: shortfalls}
	}

	// Plan: which destination rows exist, and the legacy prices for the ones
	// that will be created.
	type destPlan struct {
		existing map[int64]ledger.Entry
		legacy   map[int64]ledger.LegacyProduct
	}
	plans := make(map[ledger.ProductType]destPlan, len(groups))
	for productType, items := range groups {
		ids := make([]int64, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.ProductID)
		}
		existing, err := e.balances.Entries(ctx, req.Destination.DepartmentID, req.Destination.SectionID, productType, ids)
		if err != nil {
			return err
		}
		var missing []int64
		for _, id := range ids {
			if _, ok := existing[id]; !ok {
				missing = append(missing, id)
			}
		}
		legacy := map[int64]ledger.LegacyProduct{}
		if len(missing) > 0 {
			legacy, err = e.balances.LegacyProducts(ctx, productType, missing)
			if err != nil {
				return err
			}
		}
		plans[productType] = destPlan{existing: existing, legacy: legacy}
	}

	var toCreate []ledger.Entry
	var movements []Movement
	for _, item := range req.Items {
		plan := plans[item.ProductType]
		if _, ok := plan.existing[item.ProductID]; !ok {
			toCreate = append(toCreate, ledger.Entry{
				DepartmentID: req.Destination.DepartmentID,
				SectionID:    req.Destination.SectionID,
				ProductType:  item.ProductType,
				ProductID:    item.ProductID,
				Quantity:     0,
				UnitPrice:    plan.legacy[item.ProductID].UnitPrice,
			})
		}
		reason := fmt.Sprintf("stock transfer #%d", req.ID)
		movements = append(movements,
			Movement{
				Type:         MovementOut,
				Quantity:     item.Quantity,
				Reason:       reason,
				Reference:    req.Reference,
				ProductType:  item.ProductType,
				ProductID:    item.ProductID,
				DepartmentID: req.FromDepartment,
			},
			Movement{
				Type:         MovementIn,
				Quantity:     item.Quantity,
				Reason:       reason,
				Reference:    req.Reference,
				ProductType:  item.ProductType,
				ProductID:    item.ProductID,
				DepartmentID: req.Destination.DepartmentID,
				SectionID:    req.Destination.SectionID,
			},
		)
	}

	// Execute: one short-lived transaction, all or nothing.
	return e.store.WithTx(ctx, e.txTimeout, func(ctx context.Context, tx TxStore) error {
		for _, item := range req.Items {
			ok, err := tx.DecrementIfAvailable(ctx, req.FromDepartment, item.ProductType, item.ProductID, item.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				// Preflight passed, so a concurrent writer won the row between
				// snapshot and commit. Surfaced as insufficient stock rather
				// than retried: retrying under contention could spin forever.
				return &InsufficientStockError{Shortfalls: []ledger.Availability{{
					ProductID: item.ProductID,
					Required:  item.Quantity,
					Message:   ledger.ShortfallMessage(0, item.Quantity) + " (stock changed concurrently)",
				}}}
			}
		}
		if err := tx.CreateEntriesSkipExisting(ctx, toCreate); err != nil {
			return err
		}
		for _, item := range req.Items {
			if err := tx.IncrementEntry(ctx, req.Destination.DepartmentID, req.Destination.SectionID, item.ProductType, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		if err := tx.InsertMovements(ctx, movements); err != nil {
			return err
		}
		return tx.SetStatus(ctx, req.ID, StatusCompleted)
	})
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Engine) recordFailure(err error) {
	if e.recorder == nil {
		return
	}
	e.recorder.TransferFailed(failureReason(err))
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyProcessed):
		return "already_processed"
	default:
		return "execution_failed"
	}
}

// isTerminal reports whether an attempt error must not be retried.
func isTerminal(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyProcessed) ||
		errors.Is(err, ErrInvalidInput)
}

func groupByType(items []Item) map[ledger.ProductType][]Item {
	groups := make(map[ledger.ProductType][]Item)
	for _, item := range items {
		groups[item.ProductType] = append(groups[item.ProductType], item)
	}
	return groups
}

func wrapLocationErr(err error) error {
	if errors.Is(err, location.ErrDepartmentNotFound) || errors.Is(err, location.ErrSectionNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
