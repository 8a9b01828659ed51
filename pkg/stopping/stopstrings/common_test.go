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

package stopstrings_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llm-d/llm-d-stopping-criteria/pkg/tokenization"
)

// stopVocabEntries spells "stop" out of overlapping fragments. The tokens
// exercise interior chain links ("st", "sto"), end overlaps ("op", "pper"),
// tokens overhanging the stop string on either side ("opera", "las",
// "topper") and tokens unrelated to it ("at", "tion").
var stopVocabEntries = map[string]uint32{
	"st":     1,
	"op":     2,
	"stop":   3,
	"opera":  4,
	"sto":    5,
	"pper":   6,
	"las":    7,
	"topper": 8,
	"at":     9,
	"tion":   10,
}

func newStopVocabulary(t *testing.T) *tokenization.Vocabulary {
	t.Helper()
	vocab, err := tokenization.NewVocabulary(stopVocabEntries)
	require.NoError(t, err)
	return vocab
}

// newBananaVocabulary covers the two tokenizations of "banana": "ba"+"nana"
// and "bana"+"nana", where "nana" ends the stop string with either two or
// four characters.
func newBananaVocabulary(t *testing.T) *tokenization.Vocabulary {
	t.Helper()
	vocab, err := tokenization.NewVocabulary(map[string]uint32{
		"ba":   1,
		"bana": 2,
		"nana": 3,
	})
	require.NoError(t, err)
	return vocab
}
