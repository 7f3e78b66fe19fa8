package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/thomaspryor/broadwayscore/internal/model"
)

// minNameLen is the shortest input treated as a real name.
const minNameLen = 2

// foldKey reduces a name to its alias-table lookup form: diacritics removed,
// lowercased, trimmed and with internal whitespace collapsed.
func foldKey(s string) string {
	s = stripDiacritics(s)
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Slugify derives a deterministic identifier from a free-text name: it
// removes diacritics and punctuation, lowercases, turns whitespace and
// separators into single hyphens and trims leading/trailing hyphens.
// Inputs shorter than two characters, or that slugify to nothing, yield
// model.UnknownID.
func Slugify(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) < minNameLen {
		return model.UnknownID
	}
	s = strings.ToLower(stripDiacritics(s))
	s = strings.ReplaceAll(s, "&", " and ")

	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '/' || r == '|':
			pendingSep = true
		}
	}

	slug := strings.Trim(b.String(), "-")
	if utf8.RuneCountInString(slug) < minNameLen {
		return model.UnknownID
	}
	return slug
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
