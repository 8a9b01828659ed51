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

package tokenization_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llm-d/llm-d-stopping-criteria/pkg/tokenization"
)

func TestTokenNormalizers(t *testing.T) {
	tests := []struct {
		name       string
		normalizer tokenization.TokenNormalizer
		token      string
		want       string
	}{
		{name: "DefaultSentencePiece", normalizer: tokenization.DefaultTokenNormalizer, token: "▁stop", want: " stop"},
		{name: "DefaultByteLevel", normalizer: tokenization.DefaultTokenNormalizer, token: "Ġstop", want: " stop"},
		{name: "DefaultWordPiece", normalizer: tokenization.DefaultTokenNormalizer, token: "##op", want: "op"},
		{name: "DefaultPlain", normalizer: tokenization.DefaultTokenNormalizer, token: "stop", want: "stop"},
		{name: "DefaultBareMarker", normalizer: tokenization.DefaultTokenNormalizer, token: "▁", want: " "},
		{name: "DefaultMarkerInside", normalizer: tokenization.DefaultTokenNormalizer, token: "st▁op", want: "st▁op"},
		{name: "SentencePiece", normalizer: tokenization.SentencePieceNormalizer, token: "▁stop", want: " stop"},
		{name: "SentencePieceIgnoresByteLevel", normalizer: tokenization.SentencePieceNormalizer, token: "Ġstop", want: "Ġstop"},
		{name: "WordPiece", normalizer: tokenization.WordPieceNormalizer, token: "##op", want: "op"},
		{name: "WordPieceBareMarker", normalizer: tokenization.WordPieceNormalizer, token: "##", want: ""},
		{name: "WordPieceIgnoresSentencePiece", normalizer: tokenization.WordPieceNormalizer, token: "▁stop", want: "▁stop"},
		{name: "Identity", normalizer: tokenization.IdentityNormalizer, token: "▁stop", want: "▁stop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.normalizer(tt.token))
		})
	}
}

func TestNormalizerByName(t *testing.T) {
	// Function values cannot be compared; check the behavior of the
	// resolved normalizer instead.
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{name: "", token: "▁stop", want: " stop"},
		{name: tokenization.NormalizerDefault, token: "▁stop", want: " stop"},
		{name: tokenization.NormalizerSentencePiece, token: "##op", want: "##op"},
		{name: tokenization.NormalizerWordPiece, token: "##op", want: "op"},
		{name: tokenization.NormalizerIdentity, token: "▁stop", want: "▁stop"},
	}

	for _, tt := range tests {
		t.Run("Name_"+tt.name, func(t *testing.T) {
			normalizer, err := tokenization.NormalizerByName(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, normalizer(tt.token))
		})
	}

	_, err := tokenization.NormalizerByName("bogus")
	require.Error(t, err)
}
