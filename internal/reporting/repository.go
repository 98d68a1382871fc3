package reporting

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LocationRow is one aggregate row of the per-location stock summary. A
// department without ledger rows still appears with nil ProductType.
type LocationRow struct {
	DepartmentID   int64
	DepartmentCode string
	DepartmentName string
	SectionID      *int64
	SectionName    *string
	ProductType    *string
	Products       int64
	TotalQuantity  int64
}

// MovementRow is one audit movement as served to reports.
type MovementRow struct {
	ID           int64     `json:"id"`
	Type         string    `json:"type"`
	Quantity     int64     `json:"quantity"`
	Reason       string    `json:"reason"`
	Reference    string    `json:"reference"`
	ProductType  string    `json:"product_type"`
	ProductID    int64     `json:"product_id"`
	DepartmentID int64     `json:"department_id"`
	SectionID    *int64    `json:"section_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Repository reads report aggregates from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LocationSummaryRows aggregates ledger quantities per department, section and
// product type.
func (r *Repository) LocationSummaryRows(ctx context.Context) ([]LocationRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT d.id, d.code, d.name, le.section_id, s.name, le.product_type,
       COUNT(le.id), COALESCE(SUM(le.quantity), 0)
FROM departments d
LEFT JOIN ledger_entries le ON le.department_id = d.id
LEFT JOIN sections s ON s.id = le.section_id
GROUP BY d.id, d.code, d.name, le.section_id, s.name, le.product_type
ORDER BY d.code ASC, le.section_id ASC NULLS FIRST, le.product_type ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LocationRow
	for rows.Next() {
		var row LocationRow
		if err := rows.Scan(&row.DepartmentID, &row.DepartmentCode, &row.DepartmentName,
			&row.SectionID, &row.SectionName, &row.ProductType, &row.Products, &row.TotalQuantity); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// DepartmentRows aggregates the same summary scoped to one department.
func (r *Repository) DepartmentRows(ctx context.Context, departmentID int64) ([]LocationRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT d.id, d.code, d.name, le.section_id, s.name, le.product_type,
       COUNT(le.id), COALESCE(SUM(le.quantity), 0)
FROM departments d
LEFT JOIN ledger_entries le ON le.department_id = d.id
LEFT JOIN sections s ON s.id = le.section_id
WHERE d.id = $1
GROUP BY d.id, d.code, d.name, le.section_id, s.name, le.product_type
ORDER BY le.section_id ASC NULLS FIRST, le.product_type ASC`, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LocationRow
	for rows.Next() {
		var row LocationRow
		if err := rows.Scan(&row.DepartmentID, &row.DepartmentCode, &row.DepartmentName,
			&row.SectionID, &row.SectionName, &row.ProductType, &row.Products, &row.TotalQuantity); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// RecentMovements returns the latest audit movements, newest first.
func (r *Repository) RecentMovements(ctx context.Context, limit int) ([]MovementRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, movement_type, quantity, reason, reference, product_type, product_id, department_id, section_id, created_at
FROM movements ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MovementRow
	for rows.Next() {
		var row MovementRow
		if err := rows.Scan(&row.ID, &row.Type, &row.Quantity, &row.Reason, &row.Reference,
			&row.ProductType, &row.ProductID, &row.DepartmentID, &row.SectionID, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
