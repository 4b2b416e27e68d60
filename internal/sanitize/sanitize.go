// Package sanitize cleans untrusted text before it is persisted or rendered.
// Model output and user-supplied file names both pass through here.
package sanitize

import (
	"html"
	"path"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// Text removes all HTML from s, unescapes the entities the policy produced
// and trims surrounding whitespace.
func Text(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(StripUnprintable(s))))
}

// Plain strips non-printable runes and trims surrounding whitespace, leaving
// markup-like text alone. Statement narrations such as "To <merchant> via UPI"
// are data and must survive verbatim.
func Plain(s string) string {
	return strings.TrimSpace(StripUnprintable(s))
}

// StripUnprintable removes non-printable runes, keeping tab, newline and carriage return.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1
	}, s)
}

// FileName reduces a client-supplied name to a safe base name.
func FileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if idx := strings.Index(name, "?"); idx > 0 {
		name = name[:idx]
	}
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	return Text(name)
}
