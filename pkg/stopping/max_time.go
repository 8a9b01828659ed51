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
	"time"
)

// MaxTimeCriteria stops every sequence once the wall-clock budget measured
// from the rule's construction is spent. One rule instance covers one
// generation call.
type MaxTimeCriteria struct {
	MaxTime time.Duration
	start   time.Time
}

var _ Criteria = &MaxTimeCriteria{}

// NewMaxTimeCriteria creates a MaxTimeCriteria whose budget starts now.
func NewMaxTimeCriteria(maxTime time.Duration) (*MaxTimeCriteria, error) {
	if maxTime <= 0 {
		return nil, fmt.Errorf("%w: max time must be positive, got %s", ErrConfiguration, maxTime)
	}

	return &MaxTimeCriteria{
		MaxTime: maxTime,
		start:   time.Now(),
	}, nil
}

// Evaluate stops all sequences once the budget is exhausted.
func (c *MaxTimeCriteria) Evaluate(_ context.Context, seqs [][]uint32, _ [][]float32) ([]bool, error) {
	expired := time.Since(c.start) > c.MaxTime

	done := make([]bool, len(seqs))
	for i := range done {
		done[i] = expired
	}

	return done, nil
}
