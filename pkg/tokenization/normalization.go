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
	"fmt"
	"strings"
)

// Tokenizer-family markers embedded in vocabulary token strings.
const (
	// SentencePieceWordStart prefixes word-initial tokens in SentencePiece
	// vocabularies (U+2581, LOWER ONE EIGHTH BLOCK).
	SentencePieceWordStart = "▁"
	// ByteLevelWordStart prefixes word-initial tokens in byte-level BPE
	// vocabularies such as GPT-2's (U+0120).
	ByteLevelWordStart = "Ġ"
	// WordPieceContinuation prefixes word-continuation tokens in WordPiece
	// vocabularies such as BERT's.
	WordPieceContinuation = "##"
)

// TokenNormalizer maps a raw vocabulary token string to the character
// sequence it contributes to decoded text. Marker conventions differ per
// tokenizer family, so the normalizer is always chosen explicitly; none of
// the provided implementations claims to cover every convention.
type TokenNormalizer func(token string) string

// Names of the provided normalizers, accepted in configuration.
const (
	NormalizerDefault       = "default"
	NormalizerSentencePiece = "sentencepiece"
	NormalizerWordPiece     = "wordpiece"
	NormalizerIdentity      = "identity"
)

// NormalizerByName resolves a configured normalizer name. The empty name
// selects the default convention.
func NormalizerByName(name string) (TokenNormalizer, error) {
	switch name {
	case "", NormalizerDefault:
		return DefaultTokenNormalizer, nil
	case NormalizerSentencePiece:
		return SentencePieceNormalizer, nil
	case NormalizerWordPiece:
		return WordPieceNormalizer, nil
	case NormalizerIdentity:
		return IdentityNormalizer, nil
	default:
		return nil, fmt.Errorf("unknown token normalizer %q", name)
	}
}

// DefaultTokenNormalizer handles the common marker conventions: a
// SentencePiece or byte-level BPE word-start marker becomes a leading
// space, and a WordPiece continuation marker is stripped.
func DefaultTokenNormalizer(token string) string {
	if rest, ok := strings.CutPrefix(token, SentencePieceWordStart); ok {
		return " " + rest
	}
	if rest, ok := strings.CutPrefix(token, ByteLevelWordStart); ok {
		return " " + rest
	}
	if rest, ok := strings.CutPrefix(token, WordPieceContinuation); ok {
		return rest
	}

	return token
}

// SentencePieceNormalizer handles only the SentencePiece word-start marker.
func SentencePieceNormalizer(token string) string {
	if rest, ok := strings.CutPrefix(token, SentencePieceWordStart); ok {
		return " " + rest
	}

	return token
}

// WordPieceNormalizer handles only the WordPiece continuation marker.
func WordPieceNormalizer(token string) string {
	if rest, ok := strings.CutPrefix(token, WordPieceContinuation); ok {
		return rest
	}

	return token
}

// IdentityNormalizer passes token strings through unchanged, for
// vocabularies whose tokens already spell their decoded text.
func IdentityNormalizer(token string) string {
	return token
}
