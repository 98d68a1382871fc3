package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veranda-ops/veranda-ops/internal/ledger"
	"github.com/veranda-ops/veranda-ops/internal/platform/db"
)

// Repository persists transfer requests, items and movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxStore exposes the operations available inside an execution transaction.
type TxStore interface {
	// DecrementIfAvailable is the correctness-critical primitive: an atomic
	// compare-and-decrement on the source department row. It reports false,
	// without error, when the guard rejected the update.
	DecrementIfAvailable(ctx context.Context, departmentID int64, productType ledger.ProductType, productID, quantity int64) (bool, error)
	CreateEntriesSkipExisting(ctx context.Context, entries []ledger.Entry) error
	IncrementEntry(ctx context.Context, departmentID int64, sectionID *int64, productType ledger.ProductType, productID, quantity int64) error
	InsertMovements(ctx context.Context, movements []Movement) error
	SetStatus(ctx context.Context, transferID int64, status Status) error
}

type txStore struct {
	tx pgx.Tx
}

// CreateRequest inserts the request and its items atomically and returns the
// stored request.
func (r *Repository) CreateRequest(ctx context.Context, req Request) (Request, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Request{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = tx.QueryRow(ctx, `INSERT INTO transfers (reference, from_department_id, to_department_id, to_section_id, destination_code, status, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		req.Reference, req.FromDepartment, req.Destination.DepartmentID, req.Destination.SectionID, req.DestinationCode, string(req.Status), req.CreatedBy).
		Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return Request{}, err
	}

	for i := range req.Items {
		item := &req.Items[i]
		item.TransferID = req.ID
		item.LineOrder = i
		err = tx.QueryRow(ctx, `INSERT INTO transfer_items (transfer_id, product_type, product_id, quantity, line_order)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
			req.ID, string(item.ProductType), item.ProductID, item.Quantity, item.LineOrder).
			Scan(&item.ID)
		if err != nil {
			return Request{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, err
	}
	return req, nil
}

// GetRequest loads a request with its ordered items.
func (r *Repository) GetRequest(ctx context.Context, id int64) (Request, error) {
	var req Request
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, reference, from_department_id, to_department_id, to_section_id, destination_code, status, created_by, created_at, updated_at
FROM transfers WHERE id=$1`, id).
		Scan(&req.ID, &req.Reference, &req.FromDepartment, &req.Destination.DepartmentID, &req.Destination.SectionID, &req.DestinationCode, &status, &req.CreatedBy, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, err
	}
	req.Status = Status(status)

	rows, err := r.pool.Query(ctx, `SELECT id, transfer_id, product_type, product_id, quantity, line_order
FROM transfer_items WHERE transfer_id=$1 ORDER BY line_order ASC`, id)
	if err != nil {
		return Request{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		var productType string
		if err := rows.Scan(&item.ID, &item.TransferID, &productType, &item.ProductID, &item.Quantity, &item.LineOrder); err != nil {
			return Request{}, err
		}
		item.ProductType = ledger.ProductType(productType)
		req.Items = append(req.Items, item)
	}
	if err := rows.Err(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// WithTx executes fn inside one short-lived repeatable-read transaction with a
// hard timeout. A timeout surfaces as a context error, which the engine treats
// as transient.
func (r *Repository) WithTx(ctx context.Context, timeout time.Duration, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, r.pool, timeout, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txStore{tx: tx})
	})
}

// ListMovementsByReference returns the audit rows correlated by a transfer
// reference, oldest first.
func (r *Repository) ListMovementsByReference(ctx context.Context, reference string) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, movement_type, quantity, reason, reference, product_type, product_id, department_id, section_id, created_at
FROM movements WHERE reference=$1 ORDER BY id ASC`, reference)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMovements(rows)
}

// ListStalePending returns requests stuck in a non-terminal status for longer
// than the cutoff. Used by the stale-transfer report job.
func (r *Repository) ListStalePending(ctx context.Context, olderThan time.Duration) ([]Request, error) {
	cutoff := time.Now().Add(-olderThan)
	rows, err := r.pool.Query(ctx, `SELECT id, reference, from_department_id, to_department_id, to_section_id, destination_code, status, created_by, created_at, updated_at
FROM transfers WHERE status IN ('pending','approved') AND created_at < $1 ORDER BY created_at ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var requests []Request
	for rows.Next() {
		var req Request
		var status string
		if err := rows.Scan(&req.ID, &req.Reference, &req.FromDepartment, &req.Destination.DepartmentID, &req.Destination.SectionID, &req.DestinationCode, &status, &req.CreatedBy, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, err
		}
		req.Status = Status(status)
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func (s *txStore) DecrementIfAvailable(ctx context.Context, departmentID int64, productType ledger.ProductType, productID, quantity int64) (bool, error) {
	tag, err := s.tx.Exec(ctx, `UPDATE ledger_entries
SET quantity = quantity - $4, updated_at = NOW()
WHERE department_id=$1 AND section_id IS NULL AND product_type=$2 AND product_id=$3 AND quantity >= $4`,
		departmentID, string(productType), productID, quantity)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *txStore) CreateEntriesSkipExisting(ctx context.Context, entries []ledger.Entry) error {
	for _, entry := range entries {
		_, err := s.tx.Exec(ctx, `INSERT INTO ledger_entries (department_id, section_id, product_type, product_id, quantity, unit_price, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())
ON CONFLICT DO NOTHING`,
			entry.DepartmentID, entry.SectionID, string(entry.ProductType), entry.ProductID, entry.Quantity, entry.UnitPrice)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *txStore) IncrementEntry(ctx context.Context, departmentID int64, sectionID *int64, productType ledger.ProductType, productID, quantity int64) error {
	tag, err := s.tx.Exec(ctx, `UPDATE ledger_entries
SET quantity = quantity + $5, updated_at = NOW()
WHERE department_id=$1 AND section_id IS NOT DISTINCT FROM $2 AND product_type=$3 AND product_id=$4`,
		departmentID, sectionID, string(productType), productID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrEntryNotFound
	}
	return nil
}

func (s *txStore) InsertMovements(ctx context.Context, movements []Movement) error {
	for _, m := range movements {
		_, err := s.tx.Exec(ctx, `INSERT INTO movements (movement_type, quantity, reason, reference, product_type, product_id, department_id, section_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())`,
			string(m.Type), m.Quantity, m.Reason, m.Reference, string(m.ProductType), m.ProductID, m.DepartmentID, m.SectionID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *txStore) SetStatus(ctx context.Context, transferID int64, status Status) error {
	tag, err := s.tx.Exec(ctx, `UPDATE transfers SET status=$2, updated_at=NOW() WHERE id=$1`, transferID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMovements(rows pgx.Rows) ([]Movement, error) {
	var movements []Movement
	for rows.Next() {
		var m Movement
		var movementType, productType string
		if err := rows.Scan(&m.ID, &movementType, &m.Quantity, &m.Reason, &m.Reference, &productType, &m.ProductID, &m.DepartmentID, &m.SectionID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = MovementType(movementType)
		m.ProductType = ledger.ProductType(productType)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}
