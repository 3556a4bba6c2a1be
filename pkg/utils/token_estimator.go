package utils

import "unicode/utf8"

// EstimateTokens approximates the token count of a text. It is the single
// estimator shared by budgeting, expansion and history trimming so their
// accounting always agrees. The heuristic is ~4 characters per token,
// never less than the whitespace word count.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	runes := utf8.RuneCountInString(text)
	tokens := (runes + 3) / 4

	words := 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			inWord = false
			continue
		}
		if !inWord {
			words++
			inWord = true
		}
	}

	if words > tokens {
		return words
	}
	return tokens
}
