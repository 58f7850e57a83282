package change

import (
	"regexp"
	"strings"
)

var (
	leadingMarkersRe = regexp.MustCompile(`(^|\n|<(?:p|li|h[1-6]|blockquote|td|th)(?:\s[^>]*)?>)[\x{200B}-\x{200F}\x{FEFF}]+`)
	interTagRe       = regexp.MustCompile(`>[ \t]*\n\s*<`)
	breakTagRe       = regexp.MustCompile(`<br\s*/?>`)
	emptyItemRe      = regexp.MustCompile(`<li><br></li>`)
	blankParaRe      = regexp.MustCompile(`<p>\s*</p>`)
	breakParaRunRe   = regexp.MustCompile(`(?:<p><br></p>)+`)
	leadingBreaksRe  = regexp.MustCompile(`^(?:<p><br></p>)+`)
	trailingBreaksRe = regexp.MustCompile(`(?:<p><br></p>)+$`)
	trailingSpaceRe  = regexp.MustCompile(`(?m)[ \t]+$`)
	blankLinesRe     = regexp.MustCompile(`\n{3,}`)
)

// Normalize maps s to a canonical form in which formatting-insignificant
// differences disappear. It is idempotent.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	// A pass never grows the string, so this reaches a fixed point.
	for {
		next := normalizePass(s)
		if next == s {
			return s
		}
		s = next
	}
}

func normalizePass(s string) string {
	s = leadingMarkersRe.ReplaceAllString(s, "${1}")
	s = interTagRe.ReplaceAllString(s, "><")
	s = breakTagRe.ReplaceAllString(s, "<br>")
	s = emptyItemRe.ReplaceAllString(s, "<li></li>")
	s = blankParaRe.ReplaceAllString(s, "")
	s = breakParaRunRe.ReplaceAllString(s, "<p><br></p>")
	s = leadingBreaksRe.ReplaceAllString(s, "")
	s = trailingBreaksRe.ReplaceAllString(s, "")
	s = trailingSpaceRe.ReplaceAllString(s, "")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// IsMeaningfullyDifferent reports whether a and b differ after Normalize.
func IsMeaningfullyDifferent(a, b string) bool {
	if a == b {
		return false
	}
	return Normalize(a) != Normalize(b)
}

// IsEmpty reports whether s normalizes to no content at all.
func IsEmpty(s string) bool {
	return Normalize(s) == ""
}
