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
	"slices"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-stopping-criteria/pkg/stopping"
	"github.com/llm-d/llm-d-stopping-criteria/pkg/tokenization"
	"github.com/llm-d/llm-d-stopping-criteria/pkg/utils"
	"github.com/llm-d/llm-d-stopping-criteria/pkg/utils/logging"
)

// tokenRecord accumulates one token's alignment sets against every stop
// string before the widths needed to pack them are known.
type tokenRecord struct {
	length         int32
	validPositions [][]int32
	endOverlaps    [][]int32
}

// alignTokenAgainstStop enumerates every placement of a token on the tail
// region of a stop string. Both arguments are reversed rune slices, so
// "position" counts characters from the stop string's end.
//
// The scan slides the token across offsets i in [1-len(token),
// len(stop)). Negative offsets hang the token's start past the stop
// string's end: the in-range part must match the stop string's tail, and
// the matched character count is recorded as an end overlap. Offset zero
// anchors the token exactly at the end, again an end overlap (capped at
// the stop string's length when the token overruns its start). Positive
// offsets place the token strictly inside, recorded as valid positions; a
// token overrunning the stop string's start there still counts, since a
// match only requires covering the stop string, not ending with it.
func alignTokenAgainstStop(reversedToken, reversedStop []rune) (validPositions, endOverlaps []int32) {
	m := len(reversedToken)
	stopLen := len(reversedStop)

	for i := 1 - m; i < stopLen; i++ {
		tok := reversedToken
		pos := i
		if i < 0 {
			tok = reversedToken[-i:]
			pos = 0
		}

		end := pos + len(tok)
		if end > stopLen {
			end = stopLen
		}
		overlap := reversedStop[pos:end]

		if !runesHavePrefix(tok, overlap) {
			continue
		}

		if pos == 0 {
			matched := int32(min(len(tok), len(overlap)))
			if !slices.Contains(endOverlaps, matched) {
				endOverlaps = append(endOverlaps, matched)
			}
		} else {
			validPositions = append(validPositions, int32(pos))
		}
	}

	return validPositions, endOverlaps
}

// runesHavePrefix reports whether runes begins with prefix. Callers
// guarantee len(prefix) <= len(runes).
func runesHavePrefix(runes, prefix []rune) bool {
	for i, r := range prefix {
		if runes[i] != r {
			return false
		}
	}
	return true
}

// BuildTable computes the alignment table for a vocabulary and stop-string
// tuple. The build is deterministic and touches every (token, stop string)
// pair once; its cost is amortized by caching, see TableCache.
//
// A nil normalizer defaults to tokenization.DefaultTokenNormalizer. A stop
// string no vocabulary token can end is unreachable; it is logged as a
// configuration warning, not an error, so one unreachable stop does not
// take down the rules that still work.
func BuildTable(
	ctx context.Context,
	vocab *tokenization.Vocabulary,
	stopStrings []string,
	normalizer tokenization.TokenNormalizer,
) (*AlignmentTable, error) {
	logger := klog.FromContext(ctx).WithName("stopstrings.BuildTable")

	if vocab == nil || vocab.Len() == 0 {
		return nil, fmt.Errorf("%w: vocabulary is empty", stopping.ErrPrecondition)
	}
	if err := validateStopStrings(stopStrings); err != nil {
		return nil, err
	}
	if normalizer == nil {
		normalizer = tokenization.DefaultTokenNormalizer
	}

	numStops := len(stopStrings)
	reversedStops := utils.SliceMap(stopStrings, func(stopString string) []rune {
		return utils.SliceReverse([]rune(stopString))
	})
	targetLens := utils.SliceMap(reversedStops, func(reversed []rune) int32 {
		return int32(len(reversed))
	})

	// First pass: enumerate alignments per token and find the packing
	// widths.
	records := make(map[uint32]*tokenRecord, vocab.Len())
	maxValidPositions, maxValidEndLens := 0, 0
	reachable := make([]bool, numStops)

	for token, id := range vocab.TokenToID() {
		normalized := []rune(normalizer(token))
		record := &tokenRecord{
			length:         int32(len(normalized)),
			validPositions: make([][]int32, numStops),
			endOverlaps:    make([][]int32, numStops),
		}
		records[id] = record

		// A token that normalizes to nothing contributes no characters;
		// it gets no alignments and breaks any chain it appears in.
		if len(normalized) == 0 {
			continue
		}

		reversedToken := utils.SliceReverse(normalized)
		for s := range stopStrings {
			validPositions, endOverlaps := alignTokenAgainstStop(reversedToken, reversedStops[s])
			record.validPositions[s] = validPositions
			record.endOverlaps[s] = endOverlaps

			if len(validPositions) > maxValidPositions {
				maxValidPositions = len(validPositions)
			}
			if len(endOverlaps) > maxValidEndLens {
				maxValidEndLens = len(endOverlaps)
			}
			if len(endOverlaps) > 0 {
				reachable[s] = true
			}
		}
	}

	for s, ok := range reachable {
		if !ok {
			logger.Info("stop string is unreachable: no vocabulary token can end it",
				"stopString", stopStrings[s])
		}
	}

	// Second pass: pack the records into the fixed-width table.
	table := newAlignmentTable(vocab.NumRows(), numStops, maxValidPositions, maxValidEndLens, targetLens)
	for id, record := range records {
		table.setTokenLength(id, record.length)
		for s := range stopStrings {
			table.setValidPositions(id, s, record.validPositions[s])
			table.setEndOverlaps(id, s, record.endOverlaps[s])
		}
	}

	logger.V(logging.DEBUG).Info("built stop-string alignment table",
		"stopStrings", numStops, "vocabSize", vocab.Len(), "rows", table.NumRows(),
		"maxValidPositions", maxValidPositions, "maxValidEndLens", maxValidEndLens,
		"sizeBytes", table.SizeBytes())

	return table, nil
}

// validateStopStrings rejects stop-string tuples that can never be
// matched correctly: empty tuples, empty strings, and duplicates.
func validateStopStrings(stopStrings []string) error {
	if len(stopStrings) == 0 {
		return fmt.Errorf("%w: at least one stop string is required", stopping.ErrConfiguration)
	}

	seen := sets.New[string]()
	for _, stopString := range stopStrings {
		if stopString == "" {
			return fmt.Errorf("%w: stop strings must not be empty", stopping.ErrConfiguration)
		}
		if seen.Has(stopString) {
			return fmt.Errorf("%w: duplicate stop string %q", stopping.ErrConfiguration, stopString)
		}
		seen.Insert(stopString)
	}

	return nil
}
