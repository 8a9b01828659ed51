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

// Package stopping decides, after every generation step, whether each
// sequence in a batch should stop producing tokens. Rules share one
// interface and compose with a logical OR, so a serving loop evaluates a
// single CriteriaList per step regardless of which rules are active.
package stopping

import (
	"context"
	"errors"
)

// Criteria is a batch stopping rule.
//
// Implementations must be safe for concurrent use and must not mutate
// their inputs; a sequence row only reflects its own history.
type Criteria interface {
	// Evaluate returns one verdict per sequence: true at index i means
	// sequence i should stop generating now. seqs holds each sequence's
	// token-ID history with the newest token last. scores carries the
	// model's per-step scores; it exists for interface uniformity and
	// rules that do not need it ignore it.
	Evaluate(ctx context.Context, seqs [][]uint32, scores [][]float32) ([]bool, error)
}

// Error categories for stopping rules. Construction and evaluation errors
// wrap one of these so callers can distinguish a bad rule definition from
// bad inputs with errors.Is.
var (
	// ErrConfiguration marks rule definitions that can never work, such as
	// an empty stop-string set.
	ErrConfiguration = errors.New("invalid stopping configuration")
	// ErrPrecondition marks construction inputs that cannot produce a
	// usable rule, such as an empty vocabulary.
	ErrPrecondition = errors.New("stopping precondition failed")
	// ErrContractViolation marks evaluation inputs that break a documented
	// contract, such as a token ID no lookup row exists for. The
	// evaluation fails as a whole rather than silently reporting no match.
	ErrContractViolation = errors.New("stopping contract violation")
)
