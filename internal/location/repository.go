package location

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository loads departments and sections from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetDepartment fetches a department by id.
func (r *Repository) GetDepartment(ctx context.Context, id int64) (Department, error) {
	var dept Department
	err := r.pool.QueryRow(ctx, `SELECT id, code, name FROM departments WHERE id=$1`, id).
		Scan(&dept.ID, &dept.Code, &dept.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Department{}, ErrDepartmentNotFound
		}
		return Department{}, err
	}
	return dept, nil
}

// GetDepartmentByCode fetches a department by its human-readable code.
func (r *Repository) GetDepartmentByCode(ctx context.Context, code string) (Department, error) {
	var dept Department
	err := r.pool.QueryRow(ctx, `SELECT id, code, name FROM departments WHERE code=$1`, code).
		Scan(&dept.ID, &dept.Code, &dept.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Department{}, ErrDepartmentNotFound
		}
		return Department{}, err
	}
	return dept, nil
}

// GetSection fetches a section by id.
func (r *Repository) GetSection(ctx context.Context, id int64) (Section, error) {
	var sec Section
	err := r.pool.QueryRow(ctx, `SELECT id, department_id, slug, name FROM sections WHERE id=$1`, id).
		Scan(&sec.ID, &sec.DepartmentID, &sec.Slug, &sec.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Section{}, ErrSectionNotFound
		}
		return Section{}, err
	}
	return sec, nil
}

// GetSectionByRef fetches a section within a department by slug or numeric id.
func (r *Repository) GetSectionByRef(ctx context.Context, departmentID int64, ref string) (Section, error) {
	var sec Section
	err := r.pool.QueryRow(ctx, `SELECT id, department_id, slug, name FROM sections
WHERE department_id=$1 AND (slug=$2 OR id::text=$2)`, departmentID, ref).
		Scan(&sec.ID, &sec.DepartmentID, &sec.Slug, &sec.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Section{}, ErrSectionNotFound
		}
		return Section{}, err
	}
	return sec, nil
}

// ListDepartments returns all departments ordered by code.
func (r *Repository) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name FROM departments ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var depts []Department
	for rows.Next() {
		var dept Department
		if err := rows.Scan(&dept.ID, &dept.Code, &dept.Name); err != nil {
			return nil, err
		}
		depts = append(depts, dept)
	}
	return depts, rows.Err()
}
