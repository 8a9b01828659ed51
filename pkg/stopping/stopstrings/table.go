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
	"fmt"
	"unsafe"

	"github.com/fxamacker/cbor/v2"
)

// sentinel fills unused table slots. It can never collide with a real
// value: valid positions and end overlaps are >= 1 and token lengths
// are >= 0.
const sentinel = int32(-1)

// AlignmentTable is the precomputed lookup structure for a (vocabulary,
// stop strings) pair: one fixed-width row per token ID, flattened into a
// single int32 slice for O(1) gather by ID.
//
// Row layout, with S stop strings, P = MaxValidPositions and
// E = MaxValidEndLens:
//
//	[ S blocks of P valid positions | S blocks of E end overlaps | token length ]
//
// Valid positions are the character offsets from the end of a stop string
// at which the token can sit as an interior (non-final) link of a match
// chain. End overlaps are the candidate counts of stop-string characters
// a final (newest) token covers. The trailing slot is the token's
// normalized length, shared across stop strings. Unused slots hold the
// sentinel. All counts are rune counts.
//
// Rows exist for every ID in [0, NumRows); IDs without a vocabulary entry
// keep an all-sentinel row and can never start or extend a match. The
// table is immutable after construction and safe for concurrent readers.
type AlignmentTable struct {
	data   []int32
	stride int

	numRows           uint32
	numStops          int
	maxValidPositions int
	maxValidEndLens   int

	// targetLens holds each stop string's rune length; maxStopLen is
	// their maximum and bounds the token window a match can span.
	targetLens []int32
	maxStopLen int
}

func newAlignmentTable(numRows uint32, numStops, maxValidPositions, maxValidEndLens int, targetLens []int32) *AlignmentTable {
	stride := numStops*(maxValidPositions+maxValidEndLens) + 1

	data := make([]int32, int(numRows)*stride)
	for i := range data {
		data[i] = sentinel
	}

	maxStopLen := 0
	for _, targetLen := range targetLens {
		if int(targetLen) > maxStopLen {
			maxStopLen = int(targetLen)
		}
	}

	return &AlignmentTable{
		data:              data,
		stride:            stride,
		numRows:           numRows,
		numStops:          numStops,
		maxValidPositions: maxValidPositions,
		maxValidEndLens:   maxValidEndLens,
		targetLens:        targetLens,
		maxStopLen:        maxStopLen,
	}
}

func (t *AlignmentTable) row(id uint32) []int32 {
	i := int(id) * t.stride
	return t.data[i : i+t.stride]
}

func (t *AlignmentTable) setValidPositions(id uint32, stop int, positions []int32) {
	row := t.row(id)
	copy(row[stop*t.maxValidPositions:], positions)
}

func (t *AlignmentTable) setEndOverlaps(id uint32, stop int, overlaps []int32) {
	row := t.row(id)
	copy(row[t.numStops*t.maxValidPositions+stop*t.maxValidEndLens:], overlaps)
}

func (t *AlignmentTable) setTokenLength(id uint32, length int32) {
	t.row(id)[t.stride-1] = length
}

// validPositionAt returns the slot-th valid position of a token for a stop
// string, or the sentinel when the slot is unused.
func (t *AlignmentTable) validPositionAt(id uint32, stop, slot int) int32 {
	return t.row(id)[stop*t.maxValidPositions+slot]
}

// endOverlapAt returns the slot-th end overlap of a token for a stop
// string, or the sentinel when the slot is unused.
func (t *AlignmentTable) endOverlapAt(id uint32, stop, slot int) int32 {
	return t.row(id)[t.numStops*t.maxValidPositions+t.maxValidEndLens*stop+slot]
}

func (t *AlignmentTable) tokenLength(id uint32) int32 {
	return t.row(id)[t.stride-1]
}

// NumRows returns the table's row count, max token ID + 1.
func (t *AlignmentTable) NumRows() uint32 {
	return t.numRows
}

// NumStops returns the number of stop strings the table covers.
func (t *AlignmentTable) NumStops() int {
	return t.numStops
}

// MaxValidPositions returns the widest valid-position set of any
// (token, stop string) pair.
func (t *AlignmentTable) MaxValidPositions() int {
	return t.maxValidPositions
}

// MaxValidEndLens returns the widest end-overlap set of any
// (token, stop string) pair.
func (t *AlignmentTable) MaxValidEndLens() int {
	return t.maxValidEndLens
}

// TargetLen returns the rune length of the stop string at index stop.
func (t *AlignmentTable) TargetLen(stop int) int32 {
	return t.targetLens[stop]
}

// MaxStopLen returns the longest stop string's rune length, the number of
// trailing tokens a match can span.
func (t *AlignmentTable) MaxStopLen() int {
	return t.maxStopLen
}

// ValidPositions returns the valid positions of a token for a stop string
// with padding stripped, for inspection and tests.
func (t *AlignmentTable) ValidPositions(id uint32, stop int) []int32 {
	var positions []int32
	for slot := 0; slot < t.maxValidPositions; slot++ {
		if v := t.validPositionAt(id, stop, slot); v != sentinel {
			positions = append(positions, v)
		}
	}
	return positions
}

// EndOverlaps returns the end overlaps of a token for a stop string with
// padding stripped, for inspection and tests.
func (t *AlignmentTable) EndOverlaps(id uint32, stop int) []int32 {
	var overlaps []int32
	for slot := 0; slot < t.maxValidEndLens; slot++ {
		if v := t.endOverlapAt(id, stop, slot); v != sentinel {
			overlaps = append(overlaps, v)
		}
	}
	return overlaps
}

// TokenLength returns the normalized rune length recorded for a token ID,
// or the sentinel for IDs outside the vocabulary.
func (t *AlignmentTable) TokenLength(id uint32) int32 {
	return t.tokenLength(id)
}

// SizeBytes returns the table's approximate in-memory footprint, used as
// the cost of a cached table.
func (t *AlignmentTable) SizeBytes() uint64 {
	size := uint64(unsafe.Sizeof(*t))
	size += uint64(len(t.data)) * uint64(unsafe.Sizeof(int32(0)))
	size += uint64(len(t.targetLens)) * uint64(unsafe.Sizeof(int32(0)))
	return size
}

// tableWire is the serialized form of an AlignmentTable. Stride and the
// max stop length are derived on decode, so only the packing widths and
// the raw slots travel.
type tableWire struct {
	Data              []int32
	NumRows           uint32
	NumStops          int
	MaxValidPositions int
	MaxValidEndLens   int
	TargetLens        []int32
}

// MarshalBinary encodes the table for out-of-process stores.
func (t *AlignmentTable) MarshalBinary() ([]byte, error) {
	return cbor.Marshal(&tableWire{
		Data:              t.data,
		NumRows:           t.numRows,
		NumStops:          t.numStops,
		MaxValidPositions: t.maxValidPositions,
		MaxValidEndLens:   t.maxValidEndLens,
		TargetLens:        t.targetLens,
	})
}

// UnmarshalBinary decodes a table produced by MarshalBinary.
func (t *AlignmentTable) UnmarshalBinary(data []byte) error {
	var wire tableWire
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("failed to decode alignment table: %w", err)
	}
	if len(wire.TargetLens) != wire.NumStops {
		return fmt.Errorf("malformed alignment table: %d target lengths for %d stop strings",
			len(wire.TargetLens), wire.NumStops)
	}

	stride := wire.NumStops*(wire.MaxValidPositions+wire.MaxValidEndLens) + 1
	if len(wire.Data) != int(wire.NumRows)*stride {
		return fmt.Errorf("malformed alignment table: %d slots for %d rows of stride %d",
			len(wire.Data), wire.NumRows, stride)
	}

	maxStopLen := 0
	for _, targetLen := range wire.TargetLens {
		if int(targetLen) > maxStopLen {
			maxStopLen = int(targetLen)
		}
	}

	t.data = wire.Data
	t.stride = stride
	t.numRows = wire.NumRows
	t.numStops = wire.NumStops
	t.maxValidPositions = wire.MaxValidPositions
	t.maxValidEndLens = wire.MaxValidEndLens
	t.targetLens = wire.TargetLens
	t.maxStopLen = maxStopLen
	return nil
}
