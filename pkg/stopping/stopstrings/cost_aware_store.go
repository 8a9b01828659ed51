/*
Copyright 2025 The llm-d Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package stopstrings

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-stopping-criteria/pkg/utils/logging"
)

const (
	defaultStoreNumCounters = 1e4 // keys tracked for admission decisions
	defaultStoreBufferItems = 64  // default buffer size for ristretto
)

// CostAwareStoreConfig holds the configuration for the CostAwareStore.
type CostAwareStoreConfig struct {
	// Size is the maximum memory the cached tables may occupy.
	// Supports human-readable formats like "2GiB", "500MiB", "1GB", etc.
	Size string `json:"size,omitempty"`
}

// DefaultCostAwareStoreConfig returns a default configuration for the
// CostAwareStore. Table footprints grow with vocabulary size times stop
// count, so the bound is on bytes rather than table count.
func DefaultCostAwareStoreConfig() *CostAwareStoreConfig {
	return &CostAwareStoreConfig{
		Size: "512MiB",
	}
}

// NewCostAwareStore creates a new CostAwareStore instance.
func NewCostAwareStore(cfg *CostAwareStoreConfig) (*CostAwareStore, error) {
	if cfg == nil {
		cfg = DefaultCostAwareStoreConfig()
	}

	// Parse the size string to get byte value using go-humanize
	sizeBytes, err := humanize.ParseBytes(cfg.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cost-aware table store: %w", err)
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, *AlignmentTable]{
		NumCounters: defaultStoreNumCounters, // number of keys to track.
		MaxCost:     int64(sizeBytes),        // #nosec G115 , maximum cost of cache
		BufferItems: defaultStoreBufferItems, // number of keys per Get buffer.
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cost-aware table store: %w", err)
	}

	return &CostAwareStore{data: cache}, nil
}

// CostAwareStore implements the Store interface using a Ristretto cache
// costed by each table's byte size. Admission is best-effort: the cache
// may decline to keep a table, in which case the next lookup simply
// rebuilds it.
type CostAwareStore struct {
	data *ristretto.Cache[string, *AlignmentTable]
}

var _ Store = &CostAwareStore{}

// Get returns the table cached under key, if present.
func (s *CostAwareStore) Get(_ context.Context, key string) (*AlignmentTable, bool) {
	return s.data.Get(key)
}

// Add offers a table to the cache at a cost of its byte size.
func (s *CostAwareStore) Add(ctx context.Context, key string, table *AlignmentTable) {
	cost := int64(table.SizeBytes()) // #nosec G115
	s.data.Set(key, table, cost)
	// Sets are buffered; wait so the table is visible to subsequent gets.
	s.data.Wait()

	traceLogger := klog.FromContext(ctx).V(logging.TRACE).WithName("stopstrings.CostAwareStore.Add")
	traceLogger.Info("cached alignment table", "key", key, "cost-bytes", cost)
}

// MaxCost returns the store's configured byte budget.
func (s *CostAwareStore) MaxCost() int64 {
	return s.data.MaxCost()
}

// Close releases the store's internal goroutines.
func (s *CostAwareStore) Close() {
	s.data.Close()
}
