package ledger

import (
	"errors"
	"fmt"
	"time"
)

// ProductType discriminates which legacy table a product reference points at.
type ProductType string

const (
	// ProductTypeDrink maps to the drinks table.
	ProductTypeDrink ProductType = "drink"
	// ProductTypeInventoryItem maps to the inventory_items table.
	ProductTypeInventoryItem ProductType = "inventoryItem"
)

// Valid reports whether t is a known product type.
func (t ProductType) Valid() bool {
	switch t {
	case ProductTypeDrink, ProductTypeInventoryItem:
		return true
	}
	return false
}

// Entry is the authoritative balance row for a (location, product) pair.
// Exactly one row may exist per (department, section, productType, productID)
// key; a zero quantity is a valid steady state, not a tombstone.
type Entry struct {
	ID           int64
	DepartmentID int64
	SectionID    *int64
	ProductType  ProductType
	ProductID    int64
	Quantity     int64
	UnitPrice    float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LegacyProduct is the pre-ledger product record carrying a single,
// location-unaware quantity field.
type LegacyProduct struct {
	ID        int64
	Name      string
	Quantity  int64
	UnitPrice float64
}

// Requirement pairs a product with the quantity a caller needs.
type Requirement struct {
	ProductID int64
	Quantity  int64
}

// Availability is the result of an availability check. Message is populated
// only when stock is insufficient and is the canonical shortfall explanation
// reused by validation and error reporting.
type Availability struct {
	ProductID int64
	HasStock  bool
	Available int64
	Required  int64
	Message   string
}

// ShortfallMessage renders the canonical insufficient-stock explanation.
func ShortfallMessage(available, required int64) string {
	return fmt.Sprintf("insufficient stock: %d available, %d required", available, required)
}

// ErrEntryNotFound indicates a missing ledger row.
var ErrEntryNotFound = errors.New("ledger: entry not found")

// ErrUnknownProductType indicates an unsupported product type discriminator.
var ErrUnknownProductType = errors.New("ledger: unknown product type")
