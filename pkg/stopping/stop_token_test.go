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

package stopping_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llm-d/llm-d-stopping-criteria/pkg/stopping"
)

func TestStopTokenCriteria(t *testing.T) {
	criteria, err := stopping.NewStopTokenCriteria(2, 7)
	require.NoError(t, err)

	seqs := [][]uint32{
		{1, 2},    // ends on a stop token
		{2, 1},    // stop token mid-sequence does not count
		{7},       // second stop token
		{1, 3, 4}, // no stop token
		nil,       // nothing generated yet
	}

	done, err := criteria.Evaluate(t.Context(), seqs, nil)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, false, false}, done)
}

func TestStopTokenCriteriaValidation(t *testing.T) {
	_, err := stopping.NewStopTokenCriteria()
	require.ErrorIs(t, err, stopping.ErrConfiguration)
}
