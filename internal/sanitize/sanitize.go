// Package sanitize cleans observer-supplied strings before they are stored
// or rendered on the leaderboard. It strips control characters and
// XML/HTML tags and bounds the length of names.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/nvandessel/dotmotion/internal/constants"
)

// Pre-compiled regular expressions for performance.
var (
	// reXMLTag matches XML/HTML tags including those with attributes and self-closing tags.
	// It also matches XML processing instructions like <?xml ...?>.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	// reWhitespaceRun matches runs of whitespace.
	reWhitespaceRun = regexp.MustCompile(`\s+`)

	// reRepeatedHyphens matches 2 or more consecutive hyphens.
	reRepeatedHyphens = regexp.MustCompile(`-{2,}`)

	// reRepeatedUnderscores matches 2 or more consecutive underscores.
	reRepeatedUnderscores = regexp.MustCompile(`_{2,}`)
)

// ObserverName sanitizes an observer name. The pipeline:
//  1. Strip control characters
//  2. Strip XML/HTML tags
//  3. Keep letters, digits, spaces and -_.'
//  4. Collapse whitespace runs and repeated -/_
//  5. Trim, then truncate to constants.MaxObserverNameLen runes
//
// An empty result means the record is anonymous.
func ObserverName(input string) string {
	if input == "" {
		return ""
	}

	s := stripControlChars(input)
	s = reXMLTag.ReplaceAllString(s, "")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) ||
			r == '-' || r == '_' || r == '.' || r == '\'' {
			b.WriteRune(r)
		}
	}
	s = b.String()

	s = reWhitespaceRun.ReplaceAllString(s, " ")
	s = reRepeatedHyphens.ReplaceAllString(s, "-")
	s = reRepeatedUnderscores.ReplaceAllString(s, "_")
	s = strings.TrimSpace(s)

	if runes := []rune(s); len(runes) > constants.MaxObserverNameLen {
		s = strings.TrimSpace(string(runes[:constants.MaxObserverNameLen]))
	}
	return s
}

// Token lowercases a free-form token (a response or direction) and strips
// anything that is not a letter or underscore.
func Token(input string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(input)) {
		if (r >= 'a' && r <= 'z') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripControlChars removes control characters (including newline and tab).
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			if r == '\n' || r == '\t' {
				b.WriteRune(' ')
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
