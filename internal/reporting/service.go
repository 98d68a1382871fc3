package reporting

import (
	"context"
	"errors"
	"log/slog"
)

// ErrDepartmentNotFound indicates the requested department does not exist.
var ErrDepartmentNotFound = errors.New("reporting: department not found")

// ReadStore abstracts the report queries for the service.
type ReadStore interface {
	LocationSummaryRows(ctx context.Context) ([]LocationRow, error)
	DepartmentRows(ctx context.Context, departmentID int64) ([]LocationRow, error)
	RecentMovements(ctx context.Context, limit int) ([]MovementRow, error)
}

// TypeSummary aggregates one product type inside a location.
type TypeSummary struct {
	ProductType   string `json:"product_type"`
	Products      int64  `json:"products"`
	TotalQuantity int64  `json:"total_quantity"`
}

// SectionSummary aggregates one section of a department.
type SectionSummary struct {
	SectionID   int64         `json:"section_id"`
	SectionName string        `json:"section_name"`
	Types       []TypeSummary `json:"types"`
}

// DepartmentSummary aggregates one department, its own stock and its sections.
type DepartmentSummary struct {
	DepartmentID   int64            `json:"department_id"`
	DepartmentCode string           `json:"department_code"`
	DepartmentName string           `json:"department_name"`
	Types          []TypeSummary    `json:"types"`
	Sections       []SectionSummary `json:"sections"`
}

// Service assembles read-only stock reports with a read-through cache in
// front of Postgres.
type Service struct {
	store  ReadStore
	cache  *Cache
	logger *slog.Logger
}

// NewService constructs Service. cache may be nil, reports then always hit
// Postgres.
func NewService(store ReadStore, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, logger: logger}
}

// LocationSummary returns per-department stock summaries for every department.
func (s *Service) LocationSummary(ctx context.Context) ([]DepartmentSummary, error) {
	key, err := s.cache.BuildKey(ctx, keyLocationSummary())
	if err != nil {
		s.logger.Warn("report cache unavailable", slog.Any("error", err))
		return s.loadLocationSummary(ctx)
	}
	var summaries []DepartmentSummary
	err = s.cache.FetchJSON(ctx, key, &summaries, func(ctx context.Context) (interface{}, error) {
		return s.loadLocationSummary(ctx)
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// DepartmentSummary returns the stock summary for one department.
func (s *Service) DepartmentSummary(ctx context.Context, departmentID int64) (DepartmentSummary, error) {
	load := func(ctx context.Context) (DepartmentSummary, error) {
		rows, err := s.store.DepartmentRows(ctx, departmentID)
		if err != nil {
			return DepartmentSummary{}, err
		}
		summaries := assemble(rows)
		if len(summaries) == 0 {
			return DepartmentSummary{}, ErrDepartmentNotFound
		}
		return summaries[0], nil
	}

	key, err := s.cache.BuildKey(ctx, keyDepartmentDetail(departmentID))
	if err != nil {
		s.logger.Warn("report cache unavailable", slog.Any("error", err))
		return load(ctx)
	}
	var summary DepartmentSummary
	err = s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (interface{}, error) {
		return load(ctx)
	})
	if err != nil {
		return DepartmentSummary{}, err
	}
	return summary, nil
}

// RecentMovements returns the latest audit movements. Movements are
// append-only so they bypass the versioned cache.
func (s *Service) RecentMovements(ctx context.Context, limit int) ([]MovementRow, error) {
	return s.store.RecentMovements(ctx, limit)
}

// Invalidate bumps the cache version after stock has moved.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump failed", slog.Any("error", err))
	}
}

func (s *Service) loadLocationSummary(ctx context.Context) ([]DepartmentSummary, error) {
	rows, err := s.store.LocationSummaryRows(ctx)
	if err != nil {
		return nil, err
	}
	return assemble(rows), nil
}

// assemble folds the flat aggregate rows into nested summaries. Rows arrive
// ordered by department, then section (department-level rows first), then
// product type.
func assemble(rows []LocationRow) []DepartmentSummary {
	var out []DepartmentSummary
	for _, row := range rows {
		if len(out) == 0 || out[len(out)-1].DepartmentID != row.DepartmentID {
			out = append(out, DepartmentSummary{
				DepartmentID:   row.DepartmentID,
				DepartmentCode: row.DepartmentCode,
				DepartmentName: row.DepartmentName,
			})
		}
		dept := &out[len(out)-1]
		if row.ProductType == nil {
			continue
		}
		ts := TypeSummary{ProductType: *row.ProductType, Products: row.Products, TotalQuantity: row.TotalQuantity}
		if row.SectionID == nil {
			dept.Types = append(dept.Types, ts)
			continue
		}
		if len(dept.Sections) == 0 || dept.Sections[len(dept.Sections)-1].SectionID != *row.SectionID {
			name := ""
			if row.SectionName != nil {
				name = *row.SectionName
			}
			dept.Sections = append(dept.Sections, SectionSummary{SectionID: *row.SectionID, SectionName: name})
		}
		section := &dept.Sections[len(dept.Sections)-1]
		section.Types = append(section.Types, ts)
	}
	return out
}
