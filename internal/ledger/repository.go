package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists ledger entries in PostgreSQL and reads the legacy
// product tables that predate the ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func legacyTable(productType ProductType) (string, error) {
	switch productType {
	case ProductTypeDrink:
		return "drinks", nil
	case ProductTypeInventoryItem:
		return "inventory_items", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProductType, productType)
}

// GetEntry fetches the ledger row for the exact key.
func (r *Repository) GetEntry(ctx context.Context, departmentID int64, sectionID *int64, productType ProductType, productID int64) (Entry, error) {
	var entry Entry
	err := r.pool.QueryRow(ctx, `SELECT id, department_id, section_id, product_type, product_id, quantity, unit_price, created_at, updated_at
FROM ledger_entries
WHERE department_id=$1 AND section_id IS NOT DISTINCT FROM $2 AND product_type=$3 AND product_id=$4`,
		departmentID, sectionID, string(productType), productID).
		Scan(&entry.ID, &entry.DepartmentID, &entry.SectionID, &entry.ProductType, &entry.ProductID, &entry.Quantity, &entry.UnitPrice, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	return entry, nil
}

// ListEntries fetches all ledger rows at a location matching the product set.
func (r *Repository) ListEntries(ctx context.Context, departmentID int64, sectionID *int64, productType ProductType, productIDs []int64) ([]Entry, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, department_id, section_id, product_type, product_id, quantity, unit_price, created_at, updated_at
FROM ledger_entries
WHERE department_id=$1 AND section_id IS NOT DISTINCT FROM $2 AND product_type=$3 AND product_id = ANY($4)`,
		departmentID, sectionID, string(productType), productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.DepartmentID, &entry.SectionID, &entry.ProductType, &entry.ProductID, &entry.Quantity, &entry.UnitPrice, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// UpsertMissing inserts a ledger row unless one already exists for the key.
// The conflict target is the unique key, so two concurrent first-reads cannot
// double-materialize or clobber each other.
func (r *Repository) UpsertMissing(ctx context.Context, entry Entry) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO ledger_entries (department_id, section_id, product_type, product_id, quantity, unit_price, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())
ON CONFLICT DO NOTHING`,
		entry.DepartmentID, entry.SectionID, string(entry.ProductType), entry.ProductID, entry.Quantity, entry.UnitPrice)
	return err
}

// GetLegacyProduct reads the legacy record for a single product.
func (r *Repository) GetLegacyProduct(ctx context.Context, productType ProductType, productID int64) (LegacyProduct, error) {
	table, err := legacyTable(productType)
	if err != nil {
		return LegacyProduct{}, err
	}
	var product LegacyProduct
	query := fmt.Sprintf(`SELECT id, name, quantity, unit_price FROM %s WHERE id=$1`, table)
	err = r.pool.QueryRow(ctx, query, productID).
		Scan(&product.ID, &product.Name, &product.Quantity, &product.UnitPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LegacyProduct{}, ErrEntryNotFound
		}
		return LegacyProduct{}, err
	}
	return product, nil
}

// ListLegacyProducts reads legacy records for a set of products.
func (r *Repository) ListLegacyProducts(ctx context.Context, productType ProductType, productIDs []int64) ([]LegacyProduct, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	table, err := legacyTable(productType)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, name, quantity, unit_price FROM %s WHERE id = ANY($1)`, table)
	rows, err := r.pool.Query(ctx, query, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []LegacyProduct
	for rows.Next() {
		var product LegacyProduct
		if err := rows.Scan(&product.ID, &product.Name, &product.Quantity, &product.UnitPrice); err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

// ListLegacyProductIDs returns every id in the legacy table for a product type.
// Used by the backfill sweep.
func (r *Repository) ListLegacyProductIDs(ctx context.Context, productType ProductType) ([]int64, error) {
	table, err := legacyTable(productType)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id FROM %s ORDER BY id ASC`, table)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
