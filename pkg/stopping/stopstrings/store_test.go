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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/llm-d/llm-d-stopping-criteria/pkg/stopping/stopstrings"
)

// buildTestTable builds a small table to feed through a store.
func buildTestTable(t *testing.T, stopStrings ...string) *AlignmentTable {
	t.Helper()
	table, err := BuildTable(t.Context(), newStopVocabulary(t), stopStrings, nil)
	require.NoError(t, err)
	return table
}

// requireSameTable asserts that got serves the same alignments as want.
// Out-of-process stores hand back rebuilt copies, so identity is not part
// of the Store contract, content is.
func requireSameTable(t *testing.T, want, got *AlignmentTable) {
	t.Helper()
	wantBytes, err := want.MarshalBinary()
	require.NoError(t, err)
	gotBytes, err := got.MarshalBinary()
	require.NoError(t, err)

	require.Equal(t, wantBytes, gotBytes)
}

// testCommonStoreBehavior runs the behavior every Store implementation
// must satisfy. storeFactory should return a fresh store per test to keep
// the cases isolated.
func testCommonStoreBehavior(t *testing.T, storeFactory func(t *testing.T) Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("AddAndGet", func(t *testing.T) {
		testStoreAddAndGet(t, ctx, storeFactory(t))
	})

	t.Run("MissingKey", func(t *testing.T) {
		testStoreMissingKey(t, ctx, storeFactory(t))
	})

	t.Run("IndependentKeys", func(t *testing.T) {
		testStoreIndependentKeys(t, ctx, storeFactory(t))
	})

	t.Run("Overwrite", func(t *testing.T) {
		testStoreOverwrite(t, ctx, storeFactory(t))
	})
}

func testStoreAddAndGet(t *testing.T, ctx context.Context, store Store) {
	t.Helper()
	table := buildTestTable(t, "stop")

	store.Add(ctx, "key-1", table)

	got, found := store.Get(ctx, "key-1")
	assert.True(t, found)
	requireSameTable(t, table, got)
}

func testStoreMissingKey(t *testing.T, ctx context.Context, store Store) {
	t.Helper()
	got, found := store.Get(ctx, "absent")
	assert.False(t, found)
	assert.Nil(t, got)
}

func testStoreIndependentKeys(t *testing.T, ctx context.Context, store Store) {
	t.Helper()
	first := buildTestTable(t, "stop")
	second := buildTestTable(t, "banana")

	store.Add(ctx, "key-1", first)
	store.Add(ctx, "key-2", second)

	got, found := store.Get(ctx, "key-1")
	assert.True(t, found)
	requireSameTable(t, first, got)

	got, found = store.Get(ctx, "key-2")
	assert.True(t, found)
	requireSameTable(t, second, got)
}

func testStoreOverwrite(t *testing.T, ctx context.Context, store Store) {
	t.Helper()
	first := buildTestTable(t, "stop")
	second := buildTestTable(t, "banana")

	store.Add(ctx, "key-1", first)
	store.Add(ctx, "key-1", second)

	got, found := store.Get(ctx, "key-1")
	assert.True(t, found)
	requireSameTable(t, second, got)
}
