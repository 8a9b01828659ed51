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
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-stopping-criteria/pkg/stopping"
	"github.com/llm-d/llm-d-stopping-criteria/pkg/stopping/metrics"
	"github.com/llm-d/llm-d-stopping-criteria/pkg/tokenization"
)

// CacheConfig holds the configuration for the table cache.
// It may configure several store backends such as listed within the
// struct. If multiple backends are configured, only the first one will be
// used.
type CacheConfig struct {
	// LRUStoreConfig holds the configuration for the LRU table store.
	LRUStoreConfig *LRUStoreConfig `json:"lruStoreConfig"`
	// CostAwareStoreConfig holds the configuration for the cost-aware
	// table store.
	CostAwareStoreConfig *CostAwareStoreConfig `json:"costAwareStoreConfig"`
	// RedisStoreConfig holds the configuration for the Redis table store.
	RedisStoreConfig *RedisStoreConfig `json:"redisStoreConfig"`

	// EnableMetrics toggles whether builds, hits and misses are recorded.
	EnableMetrics bool `json:"enableMetrics"`
	// MetricsLoggingInterval defines the interval at which metrics are logged.
	// If zero, metrics logging is disabled.
	// Requires `EnableMetrics` to be true.
	MetricsLoggingInterval time.Duration `json:"metricsLoggingInterval"`
}

// DefaultCacheConfig returns a default configuration for the table cache.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		LRUStoreConfig: DefaultLRUStoreConfig(),
		EnableMetrics:  false,
	}
}

// Store is a bounded container of built alignment tables, keyed by their
// deterministic cache key. Implementations are safe for concurrent use
// and may evict or reject entries at will: a table can always be rebuilt
// from its inputs, so a store is purely a performance layer.
type Store interface {
	// Get returns the table cached under key, if present.
	Get(ctx context.Context, key string) (*AlignmentTable, bool)
	// Add caches a table under key, possibly evicting older tables.
	Add(ctx context.Context, key string, table *AlignmentTable)
}

// TableCache memoizes alignment-table builds process-wide. Lookups are
// keyed by (vocabulary fingerprint, normalizer, stop strings), and
// concurrent builds of the same table are collapsed into one.
type TableCache struct {
	store         Store
	group         singleflight.Group
	enableMetrics bool
}

// NewTableCache creates a new TableCache instance.
func NewTableCache(ctx context.Context, cfg *CacheConfig) (*TableCache, error) {
	if cfg == nil {
		cfg = DefaultCacheConfig()
	}

	var store Store
	var err error

	switch {
	case cfg.LRUStoreConfig != nil:
		store, err = NewLRUStore(cfg.LRUStoreConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create LRU table store: %w", err)
		}
	case cfg.CostAwareStoreConfig != nil:
		store, err = NewCostAwareStore(cfg.CostAwareStoreConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create cost-aware table store: %w", err)
		}
	case cfg.RedisStoreConfig != nil:
		store, err = NewRedisStore(cfg.RedisStoreConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis table store: %w", err)
		}
	default:
		return nil, fmt.Errorf("no valid table store configuration provided")
	}

	// wrap in metrics only if enabled
	if cfg.EnableMetrics {
		store = NewInstrumentedStore(store)
		metrics.Register()
		if cfg.MetricsLoggingInterval > 0 {
			// this is non-blocking
			metrics.StartMetricsLogging(ctx, cfg.MetricsLoggingInterval)
		}
	}

	return &TableCache{
		store:         store,
		enableMetrics: cfg.EnableMetrics,
	}, nil
}

// GetOrBuild returns the alignment table for a (vocabulary, stop strings,
// normalizer) triple, building it at most once no matter how many
// goroutines ask concurrently.
func (c *TableCache) GetOrBuild(
	ctx context.Context,
	vocab *tokenization.Vocabulary,
	stopStrings []string,
	normalizerName string,
) (*AlignmentTable, error) {
	key, err := cacheKey(vocab, stopStrings, normalizerName)
	if err != nil {
		return nil, err
	}

	if table, found := c.store.Get(ctx, key); found {
		return table, nil
	}

	result, err, shared := c.group.Do(key, func() (any, error) {
		return c.buildTable(ctx, vocab, stopStrings, normalizerName)
	})
	if err != nil {
		return nil, err
	}

	table, ok := result.(*AlignmentTable)
	if !ok {
		return nil, fmt.Errorf("unexpected table type from singleflight result")
	}

	if !shared {
		// Only add to the store if this goroutine actually built the table
		c.store.Add(ctx, key, table)
	}

	return table, nil
}

func (c *TableCache) buildTable(
	ctx context.Context,
	vocab *tokenization.Vocabulary,
	stopStrings []string,
	normalizerName string,
) (*AlignmentTable, error) {
	normalizer, err := tokenization.NormalizerByName(normalizerName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", stopping.ErrConfiguration, err)
	}

	var timer *prometheus.Timer
	if c.enableMetrics {
		timer = prometheus.NewTimer(metrics.BuildLatency)
	}

	table, err := BuildTable(ctx, vocab, stopStrings, normalizer)
	if err != nil {
		return nil, err
	}

	if c.enableMetrics {
		timer.ObserveDuration()
		metrics.TableBuilds.Inc()
	}

	return table, nil
}

// cacheKey derives the deterministic key of a table build: the vocabulary
// fingerprint, the normalizer name and the stop strings, canonically
// CBOR-encoded and hashed. Equal inputs produce equal keys across runs;
// the empty normalizer name keys like the default it selects.
func cacheKey(vocab *tokenization.Vocabulary, stopStrings []string, normalizerName string) (string, error) {
	if normalizerName == "" {
		normalizerName = tokenization.NormalizerDefault
	}

	payload := []any{vocab.Fingerprint(), normalizerName, stopStrings}

	encMode, err := cbor.CanonicalEncOptions().EncMode() // deterministic
	if err != nil {
		return "", fmt.Errorf("failed to create CBOR encoder: %w", err)
	}

	b, err := encMode.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cache key payload: %w", err)
	}

	return strconv.FormatUint(xxhash.Sum64(b), 16), nil
}

var (
	sharedCacheOnce sync.Once
	sharedCache     *TableCache
)

// sharedTableCache returns the package-level cache backing criteria that
// did not configure their own, so independently constructed criteria for
// the same inputs share one table.
func sharedTableCache() *TableCache {
	sharedCacheOnce.Do(func() {
		cache, err := NewTableCache(context.Background(), DefaultCacheConfig())
		if err != nil {
			klog.Background().Error(err, "failed to initialize the shared table cache")
			return
		}
		sharedCache = cache
	})

	return sharedCache
}
