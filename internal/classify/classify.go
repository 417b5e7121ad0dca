package classify

import (
	"strings"
	"unicode"
)

// Category represents a product classification.
type Category string

const (
	AI             Category = "ai"
	Design         Category = "design"
	DeveloperTools Category = "developer-tools"
	Productivity   Category = "productivity"
)

// AllCategories returns all valid categories in precedence order.
func AllCategories() []Category {
	return []Category{AI, Design, DeveloperTools, Productivity}
}

// categoryKeywords are checked in AllCategories order; the first category
// with any hit wins.
var categoryKeywords = map[Category][]string{
	AI:             {"ai", "artificial intelligence"},
	Design:         {"design", "ui", "ux"},
	DeveloperTools: {"developer", "code", "api"},
}

// Classify determines the product category from its description.
// Single-word keywords match whole tokens; phrases match anywhere.
// Returns Productivity as default.
func Classify(description string) Category {
	tokens := tokenize(description)
	lower := strings.ToLower(description)

	for _, cat := range AllCategories() {
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(kw, " ") {
				if strings.Contains(lower, kw) {
					return cat
				}
				continue
			}
			for _, t := range tokens {
				if t == kw {
					return cat
				}
			}
		}
	}
	return Productivity
}

func tokenize(s string) []string {
	var tokens []string
	for _, word := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if word != "" {
			tokens = append(tokens, word)
		}
	}
	return tokens
}
