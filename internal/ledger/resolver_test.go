package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	legacy  map[ProductType]map[int64]LegacyProduct
	nextID  int64

	failEntries bool
	failLegacy  bool
	upserts     int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		entries: map[string]Entry{},
		legacy: map[ProductType]map[int64]LegacyProduct{
			ProductTypeDrink:         {},
			ProductTypeInventoryItem: {},
		},
	}
}

func entryKey(departmentID int64, sectionID *int64, productType ProductType, productID int64) string {
	section := int64(0)
	if sectionID != nil {
		section = *sectionID
	}
	return fmt.Sprintf("%d:%d:%s:%d", departmentID, section, productType, productID)
}

func (s *memoryStore) GetEntry(_ context.Context, departmentID int64, sectionID *int64, productType ProductType, productID int64) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failEntries {
		return Entry{}, errors.New("store degraded")
	}
	if entry, ok := s.entries[entryKey(departmentID, sectionID, productType, productID)]; ok {
		return entry, nil
	}
	return Entry{}, ErrEntryNotFound
}

func (s *memoryStore) ListEntries(_ context.Context, departmentID int64, sectionID *int64, productType ProductType, productIDs []int64) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failEntries {
		return nil, errors.New("store degraded")
	}
	var out []Entry
	for _, id := range productIDs {
		if entry, ok := s.entries[entryKey(departmentID, sectionID, productType, id)]; ok {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *memoryStore) UpsertMissing(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	key := entryKey(entry.DepartmentID, entry.SectionID, entry.ProductType, entry.ProductID)
	if _, ok := s.entries[key]; ok {
		return nil
	}
	s.nextID++
	entry.ID = s.nextID
	s.entries[key] = entry
	return nil
}

func (s *memoryStore) GetLegacyProduct(_ context.Context, productType ProductType, productID int64) (LegacyProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLegacy {
		return LegacyProduct{}, errors.New("legacy degraded")
	}
	if product, ok := s.legacy[productType][productID]; ok {
		return product, nil
	}
	return LegacyProduct{}, ErrEntryNotFound
}

func (s *memoryStore) ListLegacyProducts(_ context.Context, productType ProductType, productIDs []int64) ([]LegacyProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLegacy {
		return nil, errors.New("legacy degraded")
	}
	var out []LegacyProduct
	for _, id := range productIDs {
		if product, ok := s.legacy[productType][id]; ok {
			out = append(out, product)
		}
	}
	return out, nil
}

func (s *memoryStore) entryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestGetBalanceLedgerRowWins(t *testing.T) {
	store := newMemoryStore()
	store.entries[entryKey(1, nil, ProductTypeDrink, 10)] = Entry{DepartmentID: 1, ProductType: ProductTypeDrink, ProductID: 10, Quantity: 7}
	store.legacy[ProductTypeDrink][10] = LegacyProduct{ID: 10, Quantity: 99}
	resolver := NewResolver(store, nil, nil)

	got := resolver.GetBalance(context.Background(), ProductTypeDrink, 10, 1, nil)
	require.Equal(t, int64(7), got)
}

func TestGetBalanceLazyMigration(t *testing.T) {
	store := newMemoryStore()
	store.legacy[ProductTypeInventoryItem][5] = LegacyProduct{ID: 5, Name: "Napkins", Quantity: 20, UnitPrice: 1.5}
	resolver := NewResolver(store, nil, nil)
	ctx := context.Background()

	got := resolver.GetBalance(ctx, ProductTypeInventoryItem, 5, 2, nil)
	require.Equal(t, int64(20), got)
	require.Equal(t, 1, store.entryCount())

	entry, err := store.GetEntry(ctx, 2, nil, ProductTypeInventoryItem, 5)
	require.NoError(t, err)
	require.Equal(t, int64(20), entry.Quantity)
	require.InDelta(t, 1.5, entry.UnitPrice, 0.0001)

	// Repeated reads serve from the ledger and never duplicate the row.
	got = resolver.GetBalance(ctx, ProductTypeInventoryItem, 5, 2, nil)
	require.Equal(t, int64(20), got)
	require.Equal(t, 1, store.entryCount())
}

func TestGetBalanceZeroLegacySkipsMigration(t *testing.T) {
	store := newMemoryStore()
	store.legacy[ProductTypeDrink][3] = LegacyProduct{ID: 3, Quantity: 0}
	resolver := NewResolver(store, nil, nil)

	got := resolver.GetBalance(context.Background(), ProductTypeDrink, 3, 1, nil)
	require.Equal(t, int64(0), got)
	require.Equal(t, 0, store.entryCount())
}

func TestGetBalanceDegradesToZero(t *testing.T) {
	resolver := NewResolver(newMemoryStore(), nil, nil)
	got := resolver.GetBalance(context.Background(), ProductTypeDrink, 42, 1, nil)
	require.Equal(t, int64(0), got)

	broken := newMemoryStore()
	broken.failEntries = true
	broken.failLegacy = true
	resolver = NewResolver(broken, nil, nil)
	got = resolver.GetBalance(context.Background(), ProductTypeDrink, 42, 1, nil)
	require.Equal(t, int64(0), got)
}

func TestGetBalancesEveryIDPresent(t *testing.T) {
	store := newMemoryStore()
	store.entries[entryKey(1, nil, ProductTypeDrink, 1)] = Entry{DepartmentID: 1, ProductType: ProductTypeDrink, ProductID: 1, Quantity: 4}
	store.legacy[ProductTypeDrink][2] = LegacyProduct{ID: 2, Quantity: 9}
	resolver := NewResolver(store, nil, nil)

	got := resolver.GetBalances(context.Background(), ProductTypeDrink, []int64{1, 2, 3}, 1, nil)
	require.Len(t, got, 3)
	require.Equal(t, int64(4), got[1])
	require.Equal(t, int64(9), got[2])
	require.Equal(t, int64(0), got[3])

	// The uncovered legacy id was adopted into the ledger.
	entry, err := store.GetEntry(context.Background(), 1, nil, ProductTypeDrink, 2)
	require.NoError(t, err)
	require.Equal(t, int64(9), entry.Quantity)
}

func TestGetBalancesSectionScope(t *testing.T) {
	store := newMemoryStore()
	section := int64(7)
	store.entries[entryKey(1, &section, ProductTypeDrink, 1)] = Entry{DepartmentID: 1, SectionID: &section, ProductType: ProductTypeDrink, ProductID: 1, Quantity: 6}
	resolver := NewResolver(store, nil, nil)

	got := resolver.GetBalances(context.Background(), ProductTypeDrink, []int64{1}, 1, &section)
	require.Equal(t, int64(6), got[1])

	// The department-scope key is a different row.
	got = resolver.GetBalances(context.Background(), ProductTypeDrink, []int64{1}, 1, nil)
	require.Equal(t, int64(0), got[1])
}

func TestCheckAvailability(t *testing.T) {
	store := newMemoryStore()
	store.entries[entryKey(1, nil, ProductTypeDrink, 1)] = Entry{DepartmentID: 1, ProductType: ProductTypeDrink, ProductID: 1, Quantity: 3}
	resolver := NewResolver(store, nil, nil)
	ctx := context.Background()

	ok := resolver.CheckAvailability(ctx, ProductTypeDrink, 1, 1, 3, nil)
	require.True(t, ok.HasStock)
	require.Empty(t, ok.Message)

	short := resolver.CheckAvailability(ctx, ProductTypeDrink, 1, 1, 4, nil)
	require.False(t, short.HasStock)
	require.Equal(t, int64(3), short.Available)
	require.Equal(t, int64(4), short.Required)
	require.Contains(t, short.Message, "3")
	require.Contains(t, short.Message, "4")
}

func TestCheckAvailabilityBatch(t *testing.T) {
	store := newMemoryStore()
	store.entries[entryKey(1, nil, ProductTypeDrink, 1)] = Entry{DepartmentID: 1, ProductType: ProductTypeDrink, ProductID: 1, Quantity: 10}
	resolver := NewResolver(store, nil, nil)

	results := resolver.CheckAvailabilityBatch(context.Background(), ProductTypeDrink, []Requirement{
		{ProductID: 1, Quantity: 5},
		{ProductID: 2, Quantity: 1},
	}, 1, nil)
	require.Len(t, results, 2)
	require.True(t, results[0].HasStock)
	require.False(t, results[1].HasStock)
	require.Contains(t, results[1].Message, "0 available")
}

func TestConcurrentFirstReadsMigrateOnce(t *testing.T) {
	store := newMemoryStore()
	store.legacy[ProductTypeDrink][1] = LegacyProduct{ID: 1, Quantity: 12}
	resolver := NewResolver(store, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := resolver.GetBalance(context.Background(), ProductTypeDrink, 1, 1, nil)
			require.Equal(t, int64(12), got)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, store.entryCount())
}
