package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type memoryReports struct {
	rows      []LocationRow
	movements []MovementRow

	summaryCalls int
	deptCalls    int
}

func (m *memoryReports) LocationSummaryRows(ctx context.Context) ([]LocationRow, error) {
	m.summaryCalls++
	return m.rows, nil
}

func (m *memoryReports) DepartmentRows(ctx context.Context, departmentID int64) ([]LocationRow, error) {
	m.deptCalls++
	var out []LocationRow
	for _, row := range m.rows {
		if row.DepartmentID == departmentID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memoryReports) RecentMovements(ctx context.Context, limit int) ([]MovementRow, error) {
	if limit > len(m.movements) {
		limit = len(m.movements)
	}
	return m.movements[:limit], nil
}

func ptr[T any](v T) *T { return &v }

func fixtureRows() []LocationRow {
	return []LocationRow{
		{DepartmentID: 1, DepartmentCode: "KITCHEN", DepartmentName: "Kitchen", ProductType: ptr("inventoryItem"), Products: 3, TotalQuantity: 42},
		{DepartmentID: 2, DepartmentCode: "BAR", DepartmentName: "Bar", ProductType: ptr("drink"), Products: 5, TotalQuantity: 120},
		{DepartmentID: 2, DepartmentCode: "BAR", DepartmentName: "Bar", SectionID: ptr(int64(7)), SectionName: ptr("Wine Cellar"), ProductType: ptr("drink"), Products: 2, TotalQuantity: 36},
		{DepartmentID: 3, DepartmentCode: "SPA", DepartmentName: "Spa"},
	}
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestLocationSummaryAssemblesNestedSummaries(t *testing.T) {
	store := &memoryReports{rows: fixtureRows()}
	svc := NewService(store, nil, nil)

	summaries, err := svc.LocationSummary(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	kitchen := summaries[0]
	require.Equal(t, "KITCHEN", kitchen.DepartmentCode)
	require.Len(t, kitchen.Types, 1)
	require.Equal(t, int64(42), kitchen.Types[0].TotalQuantity)

	bar := summaries[1]
	require.Len(t, bar.Types, 1)
	require.Len(t, bar.Sections, 1)
	require.Equal(t, "Wine Cellar", bar.Sections[0].SectionName)
	require.Equal(t, int64(36), bar.Sections[0].Types[0].TotalQuantity)

	spa := summaries[2]
	require.Empty(t, spa.Types)
	require.Empty(t, spa.Sections)
}

func TestLocationSummaryUsesCache(t *testing.T) {
	store := &memoryReports{rows: fixtureRows()}
	cache, _ := newTestCache(t)
	svc := NewService(store, cache, nil)

	ctx := context.Background()
	first, err := svc.LocationSummary(ctx)
	require.NoError(t, err)
	second, err := svc.LocationSummary(ctx)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, store.summaryCalls)
}

func TestInvalidateForcesReload(t *testing.T) {
	store := &memoryReports{rows: fixtureRows()}
	cache, _ := newTestCache(t)
	svc := NewService(store, cache, nil)

	ctx := context.Background()
	_, err := svc.LocationSummary(ctx)
	require.NoError(t, err)

	svc.Invalidate(ctx)

	_, err = svc.LocationSummary(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, store.summaryCalls)
}

func TestDepartmentSummaryNotFound(t *testing.T) {
	store := &memoryReports{rows: fixtureRows()}
	svc := NewService(store, nil, nil)

	_, err := svc.DepartmentSummary(context.Background(), 99)
	require.ErrorIs(t, err, ErrDepartmentNotFound)
}

func TestDepartmentSummaryCachedPerDepartment(t *testing.T) {
	store := &memoryReports{rows: fixtureRows()}
	cache, _ := newTestCache(t)
	svc := NewService(store, cache, nil)

	ctx := context.Background()
	bar, err := svc.DepartmentSummary(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "BAR", bar.DepartmentCode)

	again, err := svc.DepartmentSummary(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, bar, again)
	require.Equal(t, 1, store.deptCalls)
}

func TestRecentMovementsHonoursLimit(t *testing.T) {
	store := &memoryReports{movements: []MovementRow{
		{ID: 3, Type: "in", Quantity: 6, Reference: "ref-b"},
		{ID: 2, Type: "out", Quantity: 6, Reference: "ref-b"},
		{ID: 1, Type: "in", Quantity: 4, Reference: "ref-a"},
	}}
	svc := NewService(store, nil, nil)

	movements, err := svc.RecentMovements(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	require.Equal(t, int64(3), movements[0].ID)
}
