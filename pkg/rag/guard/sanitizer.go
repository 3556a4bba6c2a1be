package guard

import (
	"regexp"
	"strings"
	"unicode"
)

// Injection-shaped lines are dropped from user queries before they reach
// any prompt template. Matching is line-scoped so legitimate text around
// an injected line survives.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(system|assistant|developer)\s*:`),
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions|prompts|rules)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above|your)\s+(instructions|prompts|rules|guidelines)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(in\s+)?(developer|jailbreak|dan)\s*mode`),
	regexp.MustCompile(`(?i)reveal\s+(your\s+)?(system\s+)?prompt`),
	regexp.MustCompile("(?i)^\\s*```\\s*(system|instruction)"),
}

// SanitizeResult reports what sanitization changed.
type SanitizeResult struct {
	Text          string
	StrippedLines []string
}

// SanitizeQuery removes control characters and drops injection-shaped
// lines. The cleaned text may be empty; callers treat that as an invalid
// query.
func SanitizeQuery(raw string) SanitizeResult {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, raw)

	result := SanitizeResult{}
	var kept []string
	for _, line := range strings.Split(cleaned, "\n") {
		if isInjectionLine(line) {
			result.StrippedLines = append(result.StrippedLines, strings.TrimSpace(line))
			continue
		}
		kept = append(kept, line)
	}

	result.Text = strings.TrimSpace(strings.Join(kept, "\n"))
	return result
}

func isInjectionLine(line string) bool {
	for _, p := range injectionPatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}
