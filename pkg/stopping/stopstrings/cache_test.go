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

package stopstrings_test

import (
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llm-d/llm-d-stopping-criteria/pkg/stopping"
	"github.com/llm-d/llm-d-stopping-criteria/pkg/stopping/stopstrings"
	"github.com/llm-d/llm-d-stopping-criteria/pkg/tokenization"
)

func TestTableCacheGetOrBuild(t *testing.T) {
	cache, err := stopstrings.NewTableCache(t.Context(), nil)
	require.NoError(t, err)

	vocab := newStopVocabulary(t)

	first, err := cache.GetOrBuild(t.Context(), vocab, []string{"stop"}, tokenization.NormalizerDefault)
	require.NoError(t, err)

	// The second lookup of the same triple is a cache hit.
	second, err := cache.GetOrBuild(t.Context(), vocab, []string{"stop"}, tokenization.NormalizerDefault)
	require.NoError(t, err)
	assert.Same(t, first, second)

	// Different stop strings or a different normalizer build new tables.
	otherStops, err := cache.GetOrBuild(t.Context(), vocab, []string{"halt"}, tokenization.NormalizerDefault)
	require.NoError(t, err)
	assert.NotSame(t, first, otherStops)

	otherNormalizer, err := cache.GetOrBuild(t.Context(), vocab, []string{"stop"}, tokenization.NormalizerIdentity)
	require.NoError(t, err)
	assert.NotSame(t, first, otherNormalizer)
}

// TestTableCacheKeyedByVocabularyContent checks that two vocabulary
// instances with the same entries share one cached table.
func TestTableCacheKeyedByVocabularyContent(t *testing.T) {
	cache, err := stopstrings.NewTableCache(t.Context(), nil)
	require.NoError(t, err)

	first := newStopVocabulary(t)
	second := newStopVocabulary(t)
	require.NotSame(t, first, second)

	table1, err := cache.GetOrBuild(t.Context(), first, []string{"stop"}, tokenization.NormalizerDefault)
	require.NoError(t, err)
	table2, err := cache.GetOrBuild(t.Context(), second, []string{"stop"}, tokenization.NormalizerDefault)
	require.NoError(t, err)

	assert.Same(t, table1, table2)
}

func TestTableCacheBuildErrors(t *testing.T) {
	cache, err := stopstrings.NewTableCache(t.Context(), nil)
	require.NoError(t, err)

	vocab := newStopVocabulary(t)

	_, err = cache.GetOrBuild(t.Context(), vocab, []string{"stop"}, "bogus")
	require.ErrorIs(t, err, stopping.ErrConfiguration)

	_, err = cache.GetOrBuild(t.Context(), vocab, nil, tokenization.NormalizerDefault)
	require.ErrorIs(t, err, stopping.ErrConfiguration)
}

func TestNewTableCacheBackendSelection(t *testing.T) {
	t.Run("DefaultIsLRU", func(t *testing.T) {
		cache, err := stopstrings.NewTableCache(t.Context(), nil)
		require.NoError(t, err)
		assert.NotNil(t, cache)
	})

	t.Run("CostAware", func(t *testing.T) {
		cache, err := stopstrings.NewTableCache(t.Context(), &stopstrings.CacheConfig{
			CostAwareStoreConfig: stopstrings.DefaultCostAwareStoreConfig(),
		})
		require.NoError(t, err)
		assert.NotNil(t, cache)
	})

	t.Run("Redis", func(t *testing.T) {
		server, err := miniredis.Run()
		require.NoError(t, err)
		t.Cleanup(server.Close)

		cache, err := stopstrings.NewTableCache(t.Context(), &stopstrings.CacheConfig{
			RedisStoreConfig: &stopstrings.RedisStoreConfig{Address: server.Addr()},
		})
		require.NoError(t, err)
		assert.NotNil(t, cache)

		vocab := newStopVocabulary(t)
		table, err := cache.GetOrBuild(t.Context(), vocab, []string{"stop"}, "")
		require.NoError(t, err)
		assert.EqualValues(t, 11, table.NumRows())
	})

	t.Run("NoBackend", func(t *testing.T) {
		_, err := stopstrings.NewTableCache(t.Context(), &stopstrings.CacheConfig{})
		require.Error(t, err)
	})
}

// TestTableCacheConcurrentGetOrBuild issues the same build from many
// goroutines; every caller must get an equivalent table with no error.
func TestTableCacheConcurrentGetOrBuild(t *testing.T) {
	cache, err := stopstrings.NewTableCache(t.Context(), nil)
	require.NoError(t, err)

	vocab := newStopVocabulary(t)

	numGoroutines := 50
	var wg sync.WaitGroup
	tables := make([]*stopstrings.AlignmentTable, numGoroutines)
	errChan := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			table, err := cache.GetOrBuild(t.Context(), vocab, []string{"stop"}, tokenization.NormalizerDefault)
			if err != nil {
				errChan <- err
				return
			}
			tables[i] = table
		}(i)
	}

	wg.Wait()
	close(errChan)
	for err := range errChan {
		require.NoError(t, err)
	}

	for _, table := range tables {
		require.NotNil(t, table)
		assert.Equal(t, uint32(11), table.NumRows())
		assert.Equal(t, int32(4), table.TargetLen(0))
	}

	// After the dust settles the cache serves one pinned table.
	first, err := cache.GetOrBuild(t.Context(), vocab, []string{"stop"}, tokenization.NormalizerDefault)
	require.NoError(t, err)
	second, err := cache.GetOrBuild(t.Context(), vocab, []string{"stop"}, tokenization.NormalizerDefault)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

// TestCriteriaShareCachedTables checks that independently constructed
// criteria for the same inputs resolve to one table, including when one
// names the default normalizer and the other leaves it empty.
func TestCriteriaShareCachedTables(t *testing.T) {
	cache, err := stopstrings.NewTableCache(t.Context(), nil)
	require.NoError(t, err)

	vocab := newStopVocabulary(t)

	crit1, err := stopstrings.NewCriteria(&stopstrings.Config{TableCache: cache}, vocab, []string{"stop"})
	require.NoError(t, err)
	crit2, err := stopstrings.NewCriteria(&stopstrings.Config{
		Normalizer: tokenization.NormalizerDefault,
		TableCache: cache,
	}, vocab, []string{"stop"})
	require.NoError(t, err)

	table1, err := crit1.Table(t.Context())
	require.NoError(t, err)
	table2, err := crit2.Table(t.Context())
	require.NoError(t, err)

	assert.Same(t, table1, table2)
}
