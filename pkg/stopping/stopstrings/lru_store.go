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

	lru "github.com/hashicorp/golang-lru/v2"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-stopping-criteria/pkg/utils/logging"
)

// defaultLRUStoreSize bounds the number of cached tables. Tables are
// rebuilt per distinct (vocabulary, stop strings) pair, and a serving
// process rarely cycles through more than a handful of stop-string
// tuples per vocabulary.
const defaultLRUStoreSize = 8

// LRUStoreConfig holds the configuration for the LRUStore.
type LRUStoreConfig struct {
	// Size is the maximum number of tables held by the store.
	Size int `json:"size"`
}

// DefaultLRUStoreConfig returns a default configuration for the LRUStore.
func DefaultLRUStoreConfig() *LRUStoreConfig {
	return &LRUStoreConfig{
		Size: defaultLRUStoreSize,
	}
}

// NewLRUStore creates a new LRUStore instance.
func NewLRUStore(cfg *LRUStoreConfig) (*LRUStore, error) {
	if cfg == nil {
		cfg = DefaultLRUStoreConfig()
	}

	cache, err := lru.New[string, *AlignmentTable](cfg.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LRU table store: %w", err)
	}

	return &LRUStore{data: cache}, nil
}

// LRUStore is a count-bounded, least-recently-used implementation of the
// Store interface.
type LRUStore struct {
	data *lru.Cache[string, *AlignmentTable]
}

var _ Store = &LRUStore{}

// Get returns the table cached under key, if present.
func (s *LRUStore) Get(_ context.Context, key string) (*AlignmentTable, bool) {
	return s.data.Get(key)
}

// Add caches a table under key, evicting the least recently used table
// when the store is full.
func (s *LRUStore) Add(ctx context.Context, key string, table *AlignmentTable) {
	evicted := s.data.Add(key, table)

	traceLogger := klog.FromContext(ctx).V(logging.TRACE).WithName("stopstrings.LRUStore.Add")
	traceLogger.Info("cached alignment table", "key", key,
		"sizeBytes", table.SizeBytes(), "evicted", evicted, "cached", s.data.Len())
}

// Len returns the number of cached tables.
func (s *LRUStore) Len() int {
	return s.data.Len()
}
