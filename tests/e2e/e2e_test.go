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

//nolint:testpackage // allow tests to run in the same package
package e2e

import (
	"time"

	"github.com/llm-d/llm-d-stopping-criteria/pkg/stopping"
	"github.com/llm-d/llm-d-stopping-criteria/pkg/stopping/stopstrings"
)

// TestBatchedGeneration verifies that one evaluation call decides a whole
// batch, with stop strings assembled from a single token, a token pair and
// multi-word text.
func (s *StoppingSuite) TestBatchedGeneration() {
	criteria := s.newStopCriteria("stop", "go on")

	seqs := [][]uint32{
		s.ids("▁The", "▁show", "▁must", "▁st", "op"), // " st" + "op" end with "stop"
		s.ids("▁The", "▁show", "▁stop"),               // one token covers "stop"
		s.ids("▁The", "▁show", "▁must", "▁go", "▁on"), // " go" + " on" end with "go on"
		s.ids("▁The", "▁show"),
	}

	done, err := criteria.Evaluate(s.ctx, seqs, nil)
	s.Require().NoError(err)
	s.T().Logf("Batch verdicts: %v", done)

	s.Equal([]bool{true, true, true, false}, done)
}

// TestStreamingStopString simulates a generation loop that re-evaluates
// after every generated token and stops at the exact step where the
// decoded tail first ends with a stop string.
func (s *StoppingSuite) TestStreamingStopString() {
	criteria := s.newStopCriteria("stop")

	stream := s.ids("▁The", "▁show", "▁must", "▁st", "op")
	wantDone := []bool{false, false, false, false, true}

	var seq []uint32
	for step, id := range stream {
		seq = append(seq, id)

		done, err := criteria.Evaluate(s.ctx, [][]uint32{seq}, nil)
		s.Require().NoError(err)
		s.Equal(wantDone[step], done[0], "verdict after %d tokens", len(seq))
	}
}

// TestComposedCriteria verifies that stop strings, stop tokens and a max
// length reconciled into the list stop sequences independently.
func (s *StoppingSuite) TestComposedCriteria() {
	stopCriteria := s.newStopCriteria(".")

	eosCriteria, err := stopping.NewStopTokenCriteria(s.ids("</s>")[0])
	s.Require().NoError(err)

	list := stopping.ValidateCriteria(s.ctx, stopping.CriteriaList{stopCriteria, eosCriteria}, 6)
	maxLength, ok := list.MaxLength()
	s.Require().True(ok)
	s.Equal(6, maxLength)

	seqs := [][]uint32{
		s.ids("▁The", "▁show", "▁must", "▁go", "▁on", "."),    // stop string
		s.ids("▁The", "▁show", "</s>"),                         // stop token
		s.ids("▁The", "▁show", "▁must", "▁go", "▁on", "▁now"), // max length
		s.ids("▁The", "▁show"),
	}

	done, err := list.Evaluate(s.ctx, seqs, nil)
	s.Require().NoError(err)
	s.T().Logf("Composed verdicts: %v", done)

	s.Equal([]bool{true, true, true, false}, done)
}

// TestWarmupFlow verifies that a table prebuilt by the warm-up pool serves
// criteria constructed later: both criteria share one table and evaluate
// correctly.
func (s *StoppingSuite) TestWarmupFlow() {
	stopStrings := []string{"stop", "go on"}
	s.pool.AddTask(s.ctx, &stopstrings.WarmupTask{Vocab: s.vocab, StopStrings: stopStrings})

	// Give the pool time to drain the task.
	time.Sleep(2 * time.Second)

	first := s.newStopCriteria(stopStrings...)
	firstTable, err := first.Table(s.ctx)
	s.Require().NoError(err)

	second := s.newStopCriteria(stopStrings...)
	secondTable, err := second.Table(s.ctx)
	s.Require().NoError(err)

	s.Same(firstTable, secondTable, "criteria sharing a cache must share one table")

	done, err := second.Evaluate(s.ctx, [][]uint32{s.ids("▁The", "▁stop")}, nil)
	s.Require().NoError(err)
	s.Equal([]bool{true}, done)
}

// TestPerRequestCriteriaConstruction builds fresh criteria for every
// request the way a server would and verifies that the cache hands every
// construction the same table.
func (s *StoppingSuite) TestPerRequestCriteriaConstruction() {
	var warmTable *stopstrings.AlignmentTable

	for request := 0; request < 5; request++ {
		criteria := s.newStopCriteria("stop")

		table, err := criteria.Table(s.ctx)
		s.Require().NoError(err)
		if warmTable == nil {
			warmTable = table
		} else {
			s.Same(warmTable, table, "request %d rebuilt the table", request)
		}

		done, err := criteria.Evaluate(s.ctx, [][]uint32{
			s.ids("▁The", "▁st", "op"),
			s.ids("▁The", "▁now"),
		}, nil)
		s.Require().NoError(err)
		s.Equal([]bool{true, false}, done)
	}
}
