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

	"k8s.io/klog/v2"
)

// CriteriaList composes stopping rules: a sequence stops as soon as any
// member rule says so. An empty list never stops anything.
type CriteriaList []Criteria

var _ Criteria = CriteriaList{}

// Evaluate ORs the verdicts of all member rules. Member errors fail the
// whole evaluation.
func (l CriteriaList) Evaluate(ctx context.Context, seqs [][]uint32, scores [][]float32) ([]bool, error) {
	done := make([]bool, len(seqs))
	for _, criteria := range l {
		verdicts, err := criteria.Evaluate(ctx, seqs, scores)
		if err != nil {
			return nil, err
		}

		for i, verdict := range verdicts {
			done[i] = done[i] || verdict
		}
	}

	return done, nil
}

// MaxLength returns the max length enforced by the list's
// MaxLengthCriteria, if it holds one.
func (l CriteriaList) MaxLength() (int, bool) {
	for _, criteria := range l {
		if maxLength, ok := criteria.(*MaxLengthCriteria); ok {
			return maxLength.MaxLength, true
		}
	}

	return 0, false
}

// ValidateCriteria reconciles a criteria list with a generation call's max
// length: if the list already enforces a different max length the mismatch
// is logged and the list's value wins, otherwise a MaxLengthCriteria for
// maxLength is appended. The input list is not modified.
func ValidateCriteria(ctx context.Context, list CriteriaList, maxLength int) CriteriaList {
	reconciled := make(CriteriaList, len(list))
	copy(reconciled, list)

	if enforced, ok := list.MaxLength(); ok {
		if enforced != maxLength {
			klog.FromContext(ctx).Info("stopping criteria already enforce a different max length",
				"criteriaMaxLength", enforced, "maxLength", maxLength)
		}
		return reconciled
	}

	return append(reconciled, &MaxLengthCriteria{MaxLength: maxLength})
}
