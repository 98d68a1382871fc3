package location

import (
	"context"
)

// RepositoryPort abstracts repository usage for the resolver.
type RepositoryPort interface {
	GetDepartment(ctx context.Context, id int64) (Department, error)
	GetDepartmentByCode(ctx context.Context, code string) (Department, error)
	GetSection(ctx context.Context, id int64) (Section, error)
	GetSectionByRef(ctx context.Context, departmentID int64, ref string) (Section, error)
}

// Resolver turns location ids and composite destination codes into resolved
// ledger locations. Resolution happens once, when a transfer is created, so a
// renamed section slug cannot redirect an already-created transfer.
type Resolver struct {
	repo RepositoryPort
}

// NewResolver constructs Resolver.
func NewResolver(repo RepositoryPort) *Resolver {
	return &Resolver{repo: repo}
}

// Department verifies a department exists and returns it.
func (r *Resolver) Department(ctx context.Context, id int64) (Department, error) {
	return r.repo.GetDepartment(ctx, id)
}

// ResolveDestination resolves a transfer destination. When code is empty the
// destination is the department identified by departmentID. A code without the
// delimiter addresses a department by its code; "DEPT:slug" addresses a section
// by slug (or numeric id) within the department identified by DEPT.
func (r *Resolver) ResolveDestination(ctx context.Context, departmentID int64, code string) (Destination, error) {
	if code == "" {
		dept, err := r.repo.GetDepartment(ctx, departmentID)
		if err != nil {
			return Destination{}, err
		}
		return Destination{DepartmentID: dept.ID}, nil
	}

	deptCode, sectionRef, hasSection := SplitCode(code)
	dept, err := r.repo.GetDepartmentByCode(ctx, deptCode)
	if err != nil {
		return Destination{}, err
	}
	if !hasSection {
		return Destination{DepartmentID: dept.ID}, nil
	}

	sec, err := r.repo.GetSectionByRef(ctx, dept.ID, sectionRef)
	if err != nil {
		return Destination{}, err
	}
	sectionID := sec.ID
	return Destination{DepartmentID: dept.ID, SectionID: &sectionID}, nil
}
