package location

import (
	"errors"
	"strings"
)

// Department is a top-level stock location (kitchen, bar, housekeeping store).
type Department struct {
	ID   int64
	Code string
	Name string
}

// Section is a sub-location nested under exactly one department.
type Section struct {
	ID           int64
	DepartmentID int64
	Slug         string
	Name         string
}

// Destination is the resolved form of a transfer destination. A nil SectionID
// means the department itself holds the stock.
type Destination struct {
	DepartmentID int64
	SectionID    *int64
}

// IsSection reports whether the destination addresses a section ledger location.
func (d Destination) IsSection() bool {
	return d.SectionID != nil
}

// CodeDelimiter separates the department code from the section slug in a
// composite destination code such as "BAR:wine-cellar".
const CodeDelimiter = ":"

// ErrDepartmentNotFound indicates a missing department.
var ErrDepartmentNotFound = errors.New("location: department not found")

// ErrSectionNotFound indicates a missing section.
var ErrSectionNotFound = errors.New("location: section not found")

// SplitCode breaks a destination code into its department code and optional
// section reference. The section reference may be a slug or a numeric id.
func SplitCode(code string) (departmentCode, sectionRef string, hasSection bool) {
	code = strings.TrimSpace(code)
	idx := strings.Index(code, CodeDelimiter)
	if idx < 0 {
		return code, "", false
	}
	return code[:idx], code[idx+len(CodeDelimiter):], true
}

// Code renders the composite code for a section under its parent department.
func (s Section) Code(parent Department) string {
	return parent.Code + CodeDelimiter + s.Slug
}
