package transfer

import (
	"errors"
	"strings"
	"time"

	"github.com/veranda-ops/veranda-ops/internal/ledger"
	"github.com/veranda-ops/veranda-ops/internal/location"
)

// Status enumerates transfer request states. The machine is monotonic:
// pending (optionally via approved) to completed. There is no failed terminal
// state; failed attempts leave the request where it was so callers may retry.
type Status string

const (
	// StatusPending is the state a request is created in.
	StatusPending Status = "pending"
	// StatusApproved marks a request cleared for execution but not yet moved.
	StatusApproved Status = "approved"
	// StatusCompleted marks a fully executed transfer.
	StatusCompleted Status = "completed"
)

// Executable reports whether Approve may run against this status.
func (s Status) Executable() bool {
	return s == StatusPending || s == StatusApproved
}

// MovementType classifies an audit movement row.
type MovementType string

const (
	// MovementIn records stock arriving at a location.
	MovementIn MovementType = "in"
	// MovementOut records stock leaving a location.
	MovementOut MovementType = "out"
	// MovementAdjustment records a manual correction.
	MovementAdjustment MovementType = "adjustment"
	// MovementLoss records breakage, spillage or theft.
	MovementLoss MovementType = "loss"
)

// Item is one product line of a transfer request. Lines are ordered and
// immutable once the request is created.
type Item struct {
	ID          int64
	TransferID  int64
	ProductType ledger.ProductType
	ProductID   int64
	Quantity    int64
	LineOrder   int
}

// Request is a transfer of one or more products from a source department to a
// destination department or section.
type Request struct {
	ID              int64
	Reference       string
	FromDepartment  int64
	Destination     location.Destination
	DestinationCode string
	Status          Status
	CreatedBy       int64
	Items           []Item
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Movement is an append-only audit fact. The engine creates them in pairs per
// transferred item, one out at the source and one in at the destination, both
// carrying the transfer's reference.
type Movement struct {
	ID           int64
	Type         MovementType
	Quantity     int64
	Reason       string
	Reference    string
	ProductType  ledger.ProductType
	ProductID    int64
	DepartmentID int64
	SectionID    *int64
	CreatedAt    time.Time
}

// CreateInput carries everything needed to create a transfer request.
type CreateInput struct {
	FromDepartmentID int64        `json:"from_department_id" validate:"required,gt=0"`
	ToDepartmentID   int64        `json:"to_department_id" validate:"required_without=DestinationCode"`
	DestinationCode  string       `json:"destination_code"`
	CreatedBy        int64        `json:"created_by" validate:"required,gt=0"`
	Items            []CreateItem `json:"items" validate:"required,min=1,dive"`
}

// CreateItem is one requested line.
type CreateItem struct {
	ProductType string `json:"product_type" validate:"required,oneof=drink inventoryItem"`
	ProductID   int64  `json:"product_id" validate:"required,gt=0"`
	Quantity    int64  `json:"quantity" validate:"required,gt=0"`
}

// Error taxonomy. Retry decisions and HTTP mapping pattern-match on these,
// never on message contents.
var (
	// ErrNotFound indicates a missing transfer, department or section.
	ErrNotFound = errors.New("transfer: not found")
	// ErrAlreadyProcessed indicates the status guard rejected execution.
	ErrAlreadyProcessed = errors.New("transfer: already processed")
	// ErrInsufficientStock indicates a business shortfall, from preflight or
	// from a conditional decrement losing a stock race at commit time.
	ErrInsufficientStock = errors.New("transfer: insufficient stock")
	// ErrExecutionFailed indicates transient errors exhausted the retry budget.
	ErrExecutionFailed = errors.New("transfer: execution failed")
	// ErrInvalidInput indicates a malformed create request.
	ErrInvalidInput = errors.New("transfer: invalid input")
)

// InsufficientStockError carries the per-item shortfall details.
type InsufficientStockError struct {
	Shortfalls []ledger.Availability
}

func (e *InsufficientStockError) Error() string {
	if len(e.Shortfalls) == 0 {
		return ErrInsufficientStock.Error()
	}
	msgs := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		msgs = append(msgs, s.Message)
	}
	return strings.Join(msgs, "; ")
}

// Unwrap ties the detailed error into the taxonomy.
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}
