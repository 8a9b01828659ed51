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
	"sync"

	"k8s.io/klog/v2"
)

// MaxLengthCriteria stops a sequence once its token count reaches
// MaxLength. When MaxPositionEmbeddings is set (> 0), sequences running
// past it trigger a one-time warning: depending on the model this can mean
// exceptions, degraded output, or nothing at all.
type MaxLengthCriteria struct {
	MaxLength             int
	MaxPositionEmbeddings int

	warnOnce sync.Once
}

var _ Criteria = &MaxLengthCriteria{}

// NewMaxLengthCriteria creates a MaxLengthCriteria.
// maxPositionEmbeddings may be 0 to disable the overflow warning.
func NewMaxLengthCriteria(maxLength, maxPositionEmbeddings int) (*MaxLengthCriteria, error) {
	if maxLength <= 0 {
		return nil, fmt.Errorf("%w: max length must be positive, got %d", ErrConfiguration, maxLength)
	}

	return &MaxLengthCriteria{
		MaxLength:             maxLength,
		MaxPositionEmbeddings: maxPositionEmbeddings,
	}, nil
}

// Evaluate stops every sequence whose history holds MaxLength or more
// tokens.
func (c *MaxLengthCriteria) Evaluate(ctx context.Context, seqs [][]uint32, _ [][]float32) ([]bool, error) {
	done := make([]bool, len(seqs))
	for i, seq := range seqs {
		done[i] = len(seq) >= c.MaxLength

		if !done[i] && c.MaxPositionEmbeddings > 0 && len(seq) >= c.MaxPositionEmbeddings {
			c.warnOnce.Do(func() {
				klog.FromContext(ctx).Info("generation exceeds the model's predefined maximum position embeddings",
					"length", len(seq), "maxPositionEmbeddings", c.MaxPositionEmbeddings)
			})
		}
	}

	return done, nil
}
