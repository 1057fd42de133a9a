package gallery

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// removeDiacritics strips diacritical marks (e.g., "Jiří" -> "Jiri").
func removeDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeUserName turns a display name into a safe directory name:
// lowercase, no diacritics, spaces and path separators collapsed to
// underscores.
func NormalizeUserName(name string) string {
	name = removeDiacritics(name)
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '.':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" {
		return "default"
	}
	return name
}
