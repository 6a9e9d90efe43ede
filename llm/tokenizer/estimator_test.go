package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimatorTokenizer_CountTokens(t *testing.T) {
	t.Parallel()

	tok := NewEstimatorTokenizer()

	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "single char rounds up", text: "a", want: 1},
		{name: "four ascii chars", text: "abcd", want: 1},
		{name: "five ascii chars", text: "abcde", want: 2},
		{name: "cjk", text: "你好世", want: 2},
		{name: "mixed", text: "hi你好", want: 1 + 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tok.CountTokens(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "estimator", tok.Name())
}

func TestNew(t *testing.T) {
	t.Parallel()

	tok, err := New("", "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, KindEstimator, tok.Name())

	tok, err = New(KindTiktoken, "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "tiktoken[o200k_base]", tok.Name())

	_, err = New("sentencepiece", "x")
	assert.Error(t, err)
}

func TestEncodingForModel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "o200k_base", EncodingForModel("gpt-4o"))
	assert.Equal(t, "o200k_base", EncodingForModel("gpt-4o-mini-2024-07-18"))
	assert.Equal(t, "o200k_base", EncodingForModel("gpt-4.1-nano"))
	assert.Equal(t, "cl100k_base", EncodingForModel("gpt-4-turbo-preview"))
	assert.Equal(t, "cl100k_base", EncodingForModel("gpt-4-0613"))
	assert.Equal(t, "cl100k_base", EncodingForModel("claude-3-5-sonnet"))
}
