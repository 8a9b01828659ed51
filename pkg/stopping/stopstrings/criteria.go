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

// Package stopstrings stops generation when the decoded tail of a
// sequence spells out a configured stop string, without decoding any text
// at check time.
//
// Token boundaries rarely line up with stop-string boundaries: a token
// can contribute its middle to one stop string and its first characters
// to another, or cover a stop string's end and keep going. The package
// therefore splits the work in two. A one-time precomputation enumerates,
// for every vocabulary token, every position at which the token can lie
// on every stop string, and packs the result into a fixed-width integer
// table indexed by token ID (see BuildTable and AlignmentTable). At
// runtime, each sequence's trailing tokens are checked against the table
// with integer gathers, running sums and a monotonic validity mask (see
// Criteria.Evaluate), so a whole batch is decided in one pass with no
// string operations.
package stopstrings

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/llm-d/llm-d-stopping-criteria/pkg/stopping"
	"github.com/llm-d/llm-d-stopping-criteria/pkg/stopping/metrics"
	"github.com/llm-d/llm-d-stopping-criteria/pkg/tokenization"
	"github.com/llm-d/llm-d-stopping-criteria/pkg/utils"
)

// Config holds the configuration for stop-string criteria.
type Config struct {
	// Normalizer names the token normalization convention used to map raw
	// vocabulary tokens to decoded text, one of the tokenization package's
	// normalizer names. Empty selects the default convention.
	Normalizer string `json:"normalizer"`

	// TableCache overrides the process-wide cache used to memoize built
	// alignment tables. When nil, a shared package-level cache is used so
	// criteria created for the same (vocabulary, stop strings) pair reuse
	// one table.
	TableCache *TableCache `json:"-"`

	// EnableMetrics toggles whether evaluations and stop verdicts are
	// recorded.
	EnableMetrics bool `json:"enableMetrics"`
}

// DefaultConfig returns a default configuration for stop-string criteria.
func DefaultConfig() *Config {
	return &Config{
		Normalizer: tokenization.NormalizerDefault,
	}
}

// Criteria is a stopping rule that fires when a sequence's trailing
// tokens spell out one of the configured stop strings.
//
// The alignment table backing a Criteria is built lazily on the first
// evaluation and memoized in the configured table cache, so constructing
// criteria per generation call stays cheap. Construction validates the
// inputs eagerly; an impossible configuration fails fast rather than on
// the hot path.
type Criteria struct {
	stopStrings []string
	vocab       *tokenization.Vocabulary
	normalizer  string

	cache         *TableCache
	enableMetrics bool

	table atomic.Pointer[AlignmentTable]
}

var _ stopping.Criteria = &Criteria{}

// NewCriteria creates a stop-string Criteria for a vocabulary and a tuple
// of stop strings. A nil config selects defaults.
func NewCriteria(config *Config, vocab *tokenization.Vocabulary, stopStrings []string) (*Criteria, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if vocab == nil || vocab.Len() == 0 {
		return nil, fmt.Errorf("%w: vocabulary is empty", stopping.ErrPrecondition)
	}
	if err := validateStopStrings(stopStrings); err != nil {
		return nil, err
	}
	if _, err := tokenization.NormalizerByName(config.Normalizer); err != nil {
		return nil, fmt.Errorf("%w: %w", stopping.ErrConfiguration, err)
	}

	// Canonicalize so the empty name and the default share a cache key.
	normalizer := config.Normalizer
	if normalizer == "" {
		normalizer = tokenization.NormalizerDefault
	}

	cache := config.TableCache
	if cache == nil {
		cache = sharedTableCache()
	}

	if config.EnableMetrics {
		metrics.Register()
	}

	return &Criteria{
		stopStrings:   slices.Clone(stopStrings),
		vocab:         vocab,
		normalizer:    normalizer,
		cache:         cache,
		enableMetrics: config.EnableMetrics,
	}, nil
}

// NewCriteriaFromTable creates a Criteria directly from a prebuilt
// alignment table, bypassing vocabulary handling and caching. This is the
// escape hatch for custom-normalized tables built with BuildTable.
func NewCriteriaFromTable(table *AlignmentTable, stopStrings []string) (*Criteria, error) {
	if table == nil {
		return nil, fmt.Errorf("%w: alignment table is nil", stopping.ErrPrecondition)
	}
	if len(stopStrings) != table.NumStops() {
		return nil, fmt.Errorf("%w: table covers %d stop strings, got %d",
			stopping.ErrPrecondition, table.NumStops(), len(stopStrings))
	}

	criteria := &Criteria{stopStrings: slices.Clone(stopStrings)}
	criteria.table.Store(table)
	return criteria, nil
}

// StopStrings returns the stop strings this rule matches.
func (c *Criteria) StopStrings() []string {
	return slices.Clone(c.stopStrings)
}

// Table returns the rule's alignment table, building and caching it if
// this is the first use.
func (c *Criteria) Table(ctx context.Context) (*AlignmentTable, error) {
	if table := c.table.Load(); table != nil {
		return table, nil
	}

	var table *AlignmentTable
	var err error
	if c.cache != nil {
		table, err = c.cache.GetOrBuild(ctx, c.vocab, c.stopStrings, c.normalizer)
	} else {
		normalizer, nErr := tokenization.NormalizerByName(c.normalizer)
		if nErr != nil {
			return nil, fmt.Errorf("%w: %w", stopping.ErrConfiguration, nErr)
		}
		table, err = BuildTable(ctx, c.vocab, c.stopStrings, normalizer)
	}
	if err != nil {
		return nil, err
	}

	c.table.Store(table)
	return table, nil
}

// Evaluate reports, for each sequence, whether its trailing tokens spell
// out any stop string. Evaluation is a pure function of the histories and
// the table; concurrent calls share the table without locking.
//
// Only a tail window of min(len(seq), MaxStopLen) tokens per sequence is
// examined, so a stop string completed strictly earlier in a sequence
// does not retrigger. The scores argument is unused.
func (c *Criteria) Evaluate(ctx context.Context, seqs [][]uint32, _ [][]float32) ([]bool, error) {
	table, err := c.Table(ctx)
	if err != nil {
		return nil, err
	}

	var timer *prometheus.Timer
	if c.enableMetrics {
		timer = prometheus.NewTimer(metrics.EvaluateLatency)
		metrics.Evaluations.Inc()
	}

	done := make([]bool, len(seqs))
	stopped := 0
	for i, seq := range seqs {
		matched, err := matchTail(table, seq)
		if err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
		done[i] = matched
		if matched {
			stopped++
		}
	}

	if c.enableMetrics {
		metrics.StoppedSequences.Add(float64(stopped))
		timer.ObserveDuration()
	}

	return done, nil
}

// matchTail decides whether the trailing tokens of one sequence spell out
// any of the table's stop strings.
func matchTail(table *AlignmentTable, seq []uint32) (bool, error) {
	if len(seq) == 0 {
		return false, nil
	}

	// A token contributes at least one character, so no match spans more
	// than MaxStopLen trailing tokens.
	window := seq
	if len(window) > table.MaxStopLen() {
		window = window[len(window)-table.MaxStopLen():]
	}

	// Flip the window so index 0 is the newest token, the one that must
	// cover the stop string's end.
	flipped := utils.SliceReverse(window)

	for _, id := range flipped {
		if id >= table.NumRows() {
			return false, fmt.Errorf("%w: token ID %d exceeds the table's %d rows",
				stopping.ErrContractViolation, id, table.NumRows())
		}
	}

	for s := 0; s < table.NumStops(); s++ {
		if matchStop(table, flipped, s) {
			return true, nil
		}
	}

	return false, nil
}

// matchStop walks the match chains of one stop string over a flipped
// token window. Each end overlap of the newest token opens a branch; the
// branch then extends backward through older tokens as long as the count
// of characters matched so far is one of the older token's valid
// positions. The first token that cannot continue the chain masks itself
// and everything older. A branch matches when its character count reaches
// the stop string's length; overshooting past the stop string's start is
// still a match, which is why the test is >= rather than ==.
func matchStop(table *AlignmentTable, flipped []uint32, stop int) bool {
	targetLen := table.TargetLen(stop)
	newest := flipped[0]

	for slot := 0; slot < table.MaxValidEndLens(); slot++ {
		endOverlap := table.endOverlapAt(newest, stop, slot)
		if endOverlap == sentinel {
			continue
		}

		matched := endOverlap
		for t := 1; t < len(flipped); t++ {
			id := flipped[t]
			if !hasValidPosition(table, id, stop, matched) {
				break
			}
			matched += table.tokenLength(id)
		}

		if matched >= targetLen {
			return true
		}
	}

	return false
}

// hasValidPosition reports whether position is one of the token's valid
// interior positions for the stop string. The sentinel padding never
// matches: positions handed in are always >= 1.
func hasValidPosition(table *AlignmentTable, id uint32, stop int, position int32) bool {
	for slot := 0; slot < table.MaxValidPositions(); slot++ {
		if table.validPositionAt(id, stop, slot) == position {
			return true
		}
	}
	return false
}
