package rating

import (
	"regexp"
	"strings"
)

// extractors are tried in order; the first match wins. Each pattern requires
// an explicit rating context so that incidental letters and dates in review
// prose are never mistaken for a grade.
var extractors = []*regexp.Regexp{
	// "Grade: B+", "grade B+/A-"
	regexp.MustCompile(`(?i)\bgrade\s*:?\s*([A-DF][+-]?(?:\s*/\s*[A-DF][+-]?)?)(?:[^A-Za-z0-9+\-]|$)`),
	// "3 out of 4 stars", "4/5 stars"
	regexp.MustCompile(`(?i)\b(\d(?:\.\d)?\s*(?:/|out of)\s*\d+\s*stars?)\b`),
	// A bare count only when it closes a sentence or line: "3.5 stars." but
	// not "the 5 stars of the cast".
	regexp.MustCompile(`(?im)\b(\d(?:\.5)?\s*stars?)\s*(?:[.!;)\]]|$)`),
	// "Rating: 7/10", "rating 4 out of 5"
	regexp.MustCompile(`(?i)\brating\s*:?\s*(\d+(?:\.\d+)?\s*(?:/|out of)\s*\d+)\b`),
	// "★★★½"
	regexp.MustCompile(`([★]{1,5}\s*½?)`),
}

// Extract scans review text for an explicit rating and returns the raw
// rating string along with its converted score. ok is false when no
// unambiguous explicit rating is present.
func Extract(text string) (raw string, score int, ok bool) {
	if strings.TrimSpace(text) == "" {
		return "", 0, false
	}
	for _, re := range extractors {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		candidate := strings.TrimSpace(m[1])
		if s, parsed := Parse(candidate); parsed {
			return candidate, s, true
		}
	}
	return "", 0, false
}

// Resolve returns the score of an explicit rating attached to a review,
// falling back to extraction from the review's own text.
func Resolve(explicit, text string) (raw string, score int, ok bool) {
	if s, parsed := Parse(explicit); parsed {
		return strings.TrimSpace(explicit), s, true
	}
	return Extract(text)
}
