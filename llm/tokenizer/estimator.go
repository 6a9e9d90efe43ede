package tokenizer

import "unicode/utf8"

// EstimatorTokenizer is a character-count-based token estimator.
// It distinguishes CJK and ASCII characters and always rounds up, so it
// tends to over-count rather than under-count.
type EstimatorTokenizer struct{}

// NewEstimatorTokenizer creates a heuristic estimator.
func NewEstimatorTokenizer() *EstimatorTokenizer {
	return &EstimatorTokenizer{}
}

func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	return estimateTokens(text), nil
}

func (e *EstimatorTokenizer) Name() string {
	return KindEstimator
}

func estimateTokens(text string) int {
	if text == "" {
		return 0
	}

	totalChars := utf8.RuneCountInString(text)
	cjkCount := 0
	for _, r := range text {
		if isCJK(r) {
			cjkCount++
		}
	}

	// CJK ~1.5 chars/token, everything else ~4 chars/token.
	// Integer ceil of cjk/1.5 is ceil(2*cjk/3).
	cjkTokens := (2*cjkCount + 2) / 3
	otherTokens := (totalChars - cjkCount + 3) / 4
	return cjkTokens + otherTokens
}

// isCJK returns true if the rune is a CJK character.
func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified Ideographs
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0x20000 && r <= 0x2A6DF) || // CJK Extension B
		(r >= 0xF900 && r <= 0xFAFF) || // CJK Compatibility Ideographs
		(r >= 0x3000 && r <= 0x303F) || // CJK Symbols and Punctuation
		(r >= 0xFF00 && r <= 0xFFEF) // Halfwidth and Fullwidth Forms
}
