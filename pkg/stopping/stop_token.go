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

package stopping

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"
)

// StopTokenCriteria stops a sequence whose newest token is one of the
// configured stop-token IDs, the EOS rule every serving stack carries.
// Unlike stop strings, a stop token is a single vocabulary entry, so no
// alignment analysis is involved.
type StopTokenCriteria struct {
	StopTokenIDs sets.Set[uint32]
}

var _ Criteria = &StopTokenCriteria{}

// NewStopTokenCriteria creates a StopTokenCriteria from the given token
// IDs.
func NewStopTokenCriteria(ids ...uint32) (*StopTokenCriteria, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one stop-token ID is required", ErrConfiguration)
	}

	return &StopTokenCriteria{StopTokenIDs: sets.New(ids...)}, nil
}

// Evaluate stops every sequence whose last token is a stop token.
// Sequences with no tokens yet never stop.
func (c *StopTokenCriteria) Evaluate(_ context.Context, seqs [][]uint32, _ [][]float32) ([]bool, error) {
	done := make([]bool, len(seqs))
	for i, seq := range seqs {
		if len(seq) == 0 {
			continue
		}
		done[i] = c.StopTokenIDs.Has(seq[len(seq)-1])
	}

	return done, nil
}
