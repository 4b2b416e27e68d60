package pipeline

import (
	"regexp"
	"strings"

	"github.com/dvloznov/spendiq/internal/domain"
	"github.com/dvloznov/spendiq/internal/sanitize"
)

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v]+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
)

// NormalizeText prepares extracted statement text for prompting. Runs of spaces
// collapse to one, excess blank lines are dropped, and the result is cut to at most
// maxChars runes. A non-positive maxChars uses DefaultMaxPromptChars.
func NormalizeText(raw string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxPromptChars
	}

	s := sanitize.StripUnprintable(raw)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)

	return domain.TruncateRunes(s, maxChars)
}
