package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"
)

// Store abstracts persistence for the resolver.
type Store interface {
	GetEntry(ctx context.Context, departmentID int64, sectionID *int64, productType ProductType, productID int64) (Entry, error)
	ListEntries(ctx context.Context, departmentID int64, sectionID *int64, productType ProductType, productIDs []int64) ([]Entry, error)
	UpsertMissing(ctx context.Context, entry Entry) error
	GetLegacyProduct(ctx context.Context, productType ProductType, productID int64) (LegacyProduct, error)
	ListLegacyProducts(ctx context.Context, productType ProductType, productIDs []int64) ([]LegacyProduct, error)
}

// Recorder observes resolver side effects for metrics.
type Recorder interface {
	LazyMigration()
}

// Resolver answers how much of a product exists at a location, bridging the
// legacy per-product quantity fields until every key has a ledger row. Read
// paths never raise: lookup failures degrade to the next source and ultimately
// to zero, so menu display and validation stay available when the store is
// momentarily degraded.
type Resolver struct {
	store    Store
	logger   *slog.Logger
	recorder Recorder
	migrate  singleflight.Group
}

// NewResolver constructs Resolver. recorder may be nil.
func NewResolver(store Store, logger *slog.Logger, recorder Recorder) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, logger: logger, recorder: recorder}
}

// GetBalance returns the authoritative balance for a product at a location.
// A present ledger row wins; otherwise the legacy quantity is used and, when
// positive, adopted into the ledger so future reads skip the legacy source.
func (r *Resolver) GetBalance(ctx context.Context, productType ProductType, productID, departmentID int64, sectionID *int64) int64 {
	entry, err := r.store.GetEntry(ctx, departmentID, sectionID, productType, productID)
	if err == nil {
		return entry.Quantity
	}
	if !errors.Is(err, ErrEntryNotFound) {
		r.logger.Warn("ledger lookup failed, falling back to legacy",
			slog.String("product_type", string(productType)),
			slog.Int64("product_id", productID),
			slog.Any("error", err))
	}

	legacy, err := r.store.GetLegacyProduct(ctx, productType, productID)
	if err != nil {
		if !errors.Is(err, ErrEntryNotFound) {
			r.logger.Warn("legacy lookup failed, defaulting to zero",
				slog.String("product_type", string(productType)),
				slog.Int64("product_id", productID),
				slog.Any("error", err))
		}
		return 0
	}

	if legacy.Quantity > 0 {
		r.materialize(ctx, productType, legacy, departmentID, sectionID)
	}
	return legacy.Quantity
}

// GetBalances is the batched form of GetBalance. Every requested id appears in
// the result map, defaulting to 0; callers rely on this postcondition.
func (r *Resolver) GetBalances(ctx context.Context, productType ProductType, productIDs []int64, departmentID int64, sectionID *int64) map[int64]int64 {
	out := make(map[int64]int64, len(productIDs))
	for _, id := range productIDs {
		out[id] = 0
	}

	entries, err := r.store.ListEntries(ctx, departmentID, sectionID, productType, productIDs)
	if err != nil {
		r.logger.Warn("ledger batch lookup failed, falling back to legacy",
			slog.String("product_type", string(productType)),
			slog.Any("error", err))
		entries = nil
	}
	covered := make(map[int64]bool, len(entries))
	for _, entry := range entries {
		out[entry.ProductID] = entry.Quantity
		covered[entry.ProductID] = true
	}

	var missing []int64
	seen := make(map[int64]bool, len(productIDs))
	for _, id := range productIDs {
		if covered[id] || seen[id] {
			continue
		}
		seen[id] = true
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out
	}

	legacy, err := r.store.ListLegacyProducts(ctx, productType, missing)
	if err != nil {
		r.logger.Warn("legacy batch lookup failed, defaulting to zero",
			slog.String("product_type", string(productType)),
			slog.Any("error", err))
		return out
	}
	for _, product := range legacy {
		out[product.ID] = product.Quantity
		if product.Quantity > 0 {
			r.materialize(ctx, productType, product, departmentID, sectionID)
		}
	}
	return out
}

// CheckAvailability reports whether the location can cover the required
// quantity of a product.
func (r *Resolver) CheckAvailability(ctx context.Context, productType ProductType, productID, departmentID, required int64, sectionID *int64) Availability {
	available := r.GetBalance(ctx, productType, productID, departmentID, sectionID)
	return availability(productID, available, required)
}

// CheckAvailabilityBatch checks a set of requirements against one location.
func (r *Resolver) CheckAvailabilityBatch(ctx context.Context, productType ProductType, requirements []Requirement, departmentID int64, sectionID *int64) []Availability {
	ids := make([]int64, 0, len(requirements))
	for _, req := range requirements {
		ids = append(ids, req.ProductID)
	}
	balances := r.GetBalances(ctx, productType, ids, departmentID, sectionID)
	results := make([]Availability, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, availability(req.ProductID, balances[req.ProductID], req.Quantity))
	}
	return results
}

// Entries returns the existing ledger rows for a product set at one location,
// keyed by product id. Unlike the balance reads this propagates errors; it
// feeds write planning, where a degraded answer is not acceptable.
func (r *Resolver) Entries(ctx context.Context, departmentID int64, sectionID *int64, productType ProductType, productIDs []int64) (map[int64]Entry, error) {
	entries, err := r.store.ListEntries(ctx, departmentID, sectionID, productType, productIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]Entry, len(entries))
	for _, entry := range entries {
		out[entry.ProductID] = entry
	}
	return out, nil
}

// LegacyProducts returns legacy records keyed by product id.
func (r *Resolver) LegacyProducts(ctx context.Context, productType ProductType, productIDs []int64) (map[int64]LegacyProduct, error) {
	products, err := r.store.ListLegacyProducts(ctx, productType, productIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]LegacyProduct, len(products))
	for _, product := range products {
		out[product.ID] = product
	}
	return out, nil
}

// materialize adopts a positive legacy quantity into the ledger. Best effort:
// a write failure must not fail the read that triggered it. The singleflight
// group collapses concurrent first-reads of the same key; the insert itself is
// keyed on the unique quadruple, so a concurrent winner is simply kept.
func (r *Resolver) materialize(ctx context.Context, productType ProductType, legacy LegacyProduct, departmentID int64, sectionID *int64) {
	key := migrationKey(productType, legacy.ID, departmentID, sectionID)
	_, _, _ = r.migrate.Do(key, func() (any, error) {
		err := r.store.UpsertMissing(ctx, Entry{
			DepartmentID: departmentID,
			SectionID:    sectionID,
			ProductType:  productType,
			ProductID:    legacy.ID,
			Quantity:     legacy.Quantity,
			UnitPrice:    legacy.UnitPrice,
		})
		if err != nil {
			r.logger.Warn("legacy migration write failed",
				slog.String("key", key),
				slog.Any("error", err))
			return nil, nil
		}
		if r.recorder != nil {
			r.recorder.LazyMigration()
		}
		return nil, nil
	})
}

func migrationKey(productType ProductType, productID, departmentID int64, sectionID *int64) string {
	section := int64(0)
	if sectionID != nil {
		section = *sectionID
	}
	return fmt.Sprintf("%s:%d:%d:%d", productType, productID, departmentID, section)
}

func availability(productID, available, required int64) Availability {
	result := Availability{
		ProductID: productID,
		Available: available,
		Required:  required,
		HasStock:  available >= required,
	}
	if !result.HasStock {
		result.Message = ShortfallMessage(available, required)
	}
	return result
}
