package match

import (
	"path/filepath"
	"strings"
)

// Normalize lowercases ASCII letters and digits and collapses every other run
// of characters into a single space.
func Normalize(title string) string {
	var sb strings.Builder
	sb.Grow(len(title))
	space := false
	for _, c := range title {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			sb.WriteRune(c)
			space = false
		case c >= 'A' && c <= 'Z':
			sb.WriteRune(c + ('a' - 'A'))
			space = false
		default:
			if !space && sb.Len() > 0 {
				sb.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

// BaseTitle normalizes title with every (...) and [...] group removed.
func BaseTitle(title string) string {
	return Normalize(stripGroups(title))
}

func stripGroups(s string) string {
	var sb strings.Builder
	paren, square := 0, 0
	for _, c := range s {
		switch c {
		case '(':
			paren++
		case ')':
			if paren > 0 {
				paren--
			}
		case '[':
			square++
		case ']':
			if square > 0 {
				square--
			}
		default:
			if paren == 0 && square == 0 {
				sb.WriteRune(c)
			}
		}
	}
	return sb.String()
}

// Stem is the file name without directory or extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// FallbackTitle is the display title of an unresolved ROM.
func FallbackTitle(path string) string {
	return strings.TrimSpace(strings.ReplaceAll(Stem(path), "_", " "))
}
