package stopstrings

import (
	"context"

	"github.com/llm-d/llm-d-stopping-criteria/pkg/stopping/metrics"
)

type instrumentedStore struct {
	next Store
}

// NewInstrumentedStore wraps a Store and emits hit/miss metrics for Get.
func NewInstrumentedStore(next Store) Store {
	return &instrumentedStore{next: next}
}

func (m *instrumentedStore) Get(ctx context.Context, key string) (*AlignmentTable, bool) {
	table, found := m.next.Get(ctx, key)
	if found {
		metrics.CacheHits.Inc()
	} else {
		metrics.CacheMisses.Inc()
	}
	return table, found
}

func (m *instrumentedStore) Add(ctx context.Context, key string, table *AlignmentTable) {
	m.next.Add(ctx, key, table)
}
