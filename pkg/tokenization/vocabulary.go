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

package tokenization

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/fxamacker/cbor/v2"
)

// Vocabulary is an immutable token-string to token-ID mapping.
// IDs are expected to be dense-ish: lookup structures derived from a
// vocabulary are sized by NumRows (max ID + 1), and IDs absent from the
// mapping behave as tokens with no content.
type Vocabulary struct {
	tokenToID   map[string]uint32
	numRows     uint32
	fingerprint uint64
}

// NewVocabulary builds a Vocabulary from a token to ID mapping.
// The entries are copied; later mutation of the argument does not affect
// the vocabulary.
func NewVocabulary(entries map[string]uint32) (*Vocabulary, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("vocabulary must contain at least one token")
	}

	tokenToID := make(map[string]uint32, len(entries))
	maxID := uint32(0)
	for token, id := range entries {
		tokenToID[token] = id
		if id > maxID {
			maxID = id
		}
	}

	fingerprint, err := fingerprintEntries(tokenToID)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint vocabulary: %w", err)
	}

	return &Vocabulary{
		tokenToID:   tokenToID,
		numRows:     maxID + 1,
		fingerprint: fingerprint,
	}, nil
}

// tokenizerJSON captures the subset of a HuggingFace tokenizer.json file
// needed to reconstruct the vocabulary. Added tokens (special tokens, and
// tokens appended after training) live outside model.vocab.
type tokenizerJSON struct {
	Model struct {
		Vocab map[string]uint32 `json:"vocab"`
	} `json:"model"`
	AddedTokens []struct {
		ID      uint32 `json:"id"`
		Content string `json:"content"`
	} `json:"added_tokens"`
}

// VocabularyFromTokenizerJSON extracts the vocabulary from the raw bytes of
// a HuggingFace tokenizer.json file, merging model.vocab with added_tokens.
func VocabularyFromTokenizerJSON(data []byte) (*Vocabulary, error) {
	var parsed tokenizerJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse tokenizer.json: %w", err)
	}

	if len(parsed.Model.Vocab) == 0 && len(parsed.AddedTokens) == 0 {
		return nil, fmt.Errorf("tokenizer.json contains no vocabulary entries")
	}

	entries := make(map[string]uint32, len(parsed.Model.Vocab)+len(parsed.AddedTokens))
	for token, id := range parsed.Model.Vocab {
		entries[token] = id
	}
	for _, added := range parsed.AddedTokens {
		entries[added.Content] = added.ID
	}

	return NewVocabulary(entries)
}

// LoadVocabulary reads a HuggingFace tokenizer.json file from disk and
// extracts its vocabulary.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tokenizer file %q: %w", path, err)
	}

	return VocabularyFromTokenizerJSON(data)
}

// fingerprintEntries hashes the canonical (deterministically ordered) CBOR
// encoding of the mapping, so equal vocabularies fingerprint identically
// regardless of map iteration order.
func fingerprintEntries(entries map[string]uint32) (uint64, error) {
	encMode, err := cbor.CanonicalEncOptions().EncMode() // deterministic
	if err != nil {
		return 0, fmt.Errorf("failed to create CBOR encoder: %w", err)
	}

	b, err := encMode.Marshal(entries)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal vocabulary to CBOR: %w", err)
	}

	return xxhash.Sum64(b), nil
}

// Len returns the number of tokens in the vocabulary.
func (v *Vocabulary) Len() int {
	return len(v.tokenToID)
}

// NumRows returns max token ID + 1, the row count of any dense structure
// indexed by token ID.
func (v *Vocabulary) NumRows() uint32 {
	return v.numRows
}

// Fingerprint returns a deterministic content hash of the mapping.
// Two vocabularies with equal entries share a fingerprint.
func (v *Vocabulary) Fingerprint() uint64 {
	return v.fingerprint
}

// ID returns the ID for a token and whether the token is present.
func (v *Vocabulary) ID(token string) (uint32, bool) {
	id, ok := v.tokenToID[token]
	return id, ok
}

// TokenToID returns the underlying mapping. The returned map is shared and
// must be treated as read-only.
func (v *Vocabulary) TokenToID() map[string]uint32 {
	return v.tokenToID
}
