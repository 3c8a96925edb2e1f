package artifact

import (
	"context"
	"strings"
	"unicode"

	"txinsight/internal/scoring"
)

type keywordCategorizer struct {
	fallback string
	classes  []CategoryClass
}

var _ scoring.Categorizer = (*keywordCategorizer)(nil)

func newKeywordCategorizer(m CategoryModel) *keywordCategorizer {
	classes := make([]CategoryClass, len(m.Classes))
	for i, c := range m.Classes {
		kws := make([]string, 0, len(c.Keywords))
		for _, kw := range c.Keywords {
			if kw = cleanText(kw); kw != "" {
				kws = append(kws, kw)
			}
		}
		classes[i] = CategoryClass{Label: c.Label, Keywords: kws, Sign: c.Sign}
	}
	return &keywordCategorizer{fallback: m.Fallback, classes: classes}
}

// Categorize picks the class with the most keyword hits; ties go to the
// class listed first, and no hit at all yields the fallback label.
func (c *keywordCategorizer) Categorize(_ context.Context, in scoring.CategoryInput) (string, error) {
	text := " " + cleanText(in.Description) + " "
	best, bestScore := c.fallback, 0
	for _, class := range c.classes {
		if class.Sign == "positive" && !in.Amount.IsPositive() {
			continue
		}
		if class.Sign == "negative" && !in.Amount.IsNegative() {
			continue
		}
		score := 0
		for _, kw := range class.Keywords {
			if strings.Contains(text, " "+kw+" ") {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = class.Label, score
		}
	}
	return best, nil
}

// cleanText lowercases, drops everything but letters, digits and spaces,
// and collapses whitespace.
func cleanText(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
