package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/veranda-ops/veranda-ops/internal/jobs"
	"github.com/veranda-ops/veranda-ops/internal/ledger"
	"github.com/veranda-ops/veranda-ops/internal/location"
)

type memoryBackfillSource struct {
	mu          sync.Mutex
	departments []location.Department
	legacyIDs   map[ledger.ProductType][]int64
	reads       map[ledger.ProductType]map[int64][]int64
}

func (m *memoryBackfillSource) ListDepartments(ctx context.Context) ([]location.Department, error) {
	return m.departments, nil
}

func (m *memoryBackfillSource) ListLegacyProductIDs(ctx context.Context, productType ledger.ProductType) ([]int64, error) {
	return m.legacyIDs[productType], nil
}

func (m *memoryBackfillSource) GetBalances(ctx context.Context, productType ledger.ProductType, productIDs []int64, departmentID int64, sectionID *int64) map[int64]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reads == nil {
		m.reads = map[ledger.ProductType]map[int64][]int64{}
	}
	if m.reads[productType] == nil {
		m.reads[productType] = map[int64][]int64{}
	}
	m.reads[productType][departmentID] = append(m.reads[productType][departmentID], productIDs...)
	out := make(map[int64]int64, len(productIDs))
	for _, id := range productIDs {
		out[id] = 0
	}
	return out
}

func TestLegacyBackfillSweepsEveryDepartmentAndType(t *testing.T) {
	source := &memoryBackfillSource{
		departments: []location.Department{
			{ID: 1, Code: "KITCHEN", Name: "Kitchen"},
			{ID: 2, Code: "BAR", Name: "Bar"},
		},
		legacyIDs: map[ledger.ProductType][]int64{
			ledger.ProductTypeDrink:         {10, 11, 12},
			ledger.ProductTypeInventoryItem: {20},
		},
	}
	job := NewLegacyBackfillJob(source, source, source, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewLegacyBackfillTask(time.Now())
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	for _, productType := range []ledger.ProductType{ledger.ProductTypeDrink, ledger.ProductTypeInventoryItem} {
		for _, dept := range source.departments {
			require.ElementsMatch(t, source.legacyIDs[productType], source.reads[productType][dept.ID],
				"every legacy product read once for %s in department %d", productType, dept.ID)
		}
	}
}

func TestLegacyBackfillRequiresDependencies(t *testing.T) {
	job := &LegacyBackfillJob{}
	task, err := NewLegacyBackfillTask(time.Now())
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))
}
