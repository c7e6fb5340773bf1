package format

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// SanitizeComponent makes a substituted field value safe to embed in one
// path component: NFC-normalized, path separators replaced, control
// characters stripped. Literal template text is left alone, so templates
// may still contain directory separators.
func SanitizeComponent(s string) string {
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '/' || r == '\\':
			b.WriteByte('_')
		// whitespace first: tab and newline are control characters too
		case unicode.IsSpace(r) && r != ' ':
			b.WriteByte(' ')
		case r < 0x20 || r == 0x7f:
			// drop the remaining control characters
		default:
			b.WriteRune(r)
		}
	}

	out := strings.TrimSpace(b.String())
	// Windows forbids trailing dots in path components.
	out = strings.TrimRight(out, ".")
	return out
}
