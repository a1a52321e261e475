package service

import (
	"strings"
	"unicode/utf8"
)

const (
	maxRecommendations    = 5
	minRecommendationRune = 11
)

var recommendationKeywords = []string{
	"recommend", "suggest", "consider", "try", "increase", "decrease", "avoid",
}

// ExtractRecommendations pulls advice-like lines out of free-form analysis
// text. It returns at most five lines in their original order.
func ExtractRecommendations(text string) []string {
	out := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) < minRecommendationRune {
			continue
		}
		lower := strings.ToLower(line)
		for _, kw := range recommendationKeywords {
			if strings.Contains(lower, kw) {
				out = append(out, line)
				break
			}
		}
		if len(out) == maxRecommendations {
			break
		}
	}
	return out
}
