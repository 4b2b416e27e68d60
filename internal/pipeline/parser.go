package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/spendiq/internal/domain"
)

// MalformedOutputError reports a model response that could not be decoded as JSON.
// It matches domain.ErrMalformedModelOutput with errors.Is.
type MalformedOutputError struct {
	// Prefix is the beginning of the original response, for diagnostics.
	Prefix string
	Err    error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("%s: %v (response began with %q)", domain.ErrMalformedModelOutput, e.Err, e.Prefix)
}

func (e *MalformedOutputError) Unwrap() error {
	return e.Err
}

func (e *MalformedOutputError) Is(target error) bool {
	return target == domain.ErrMalformedModelOutput
}

// DecodeModelJSON recovers a single JSON value from raw model output. Code fences and
// surrounding prose are tolerated; nothing else is repaired.
func DecodeModelJSON(raw string) (interface{}, error) {
	candidate := cleanModelJSON(raw)

	var parsed interface{}
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return nil, &MalformedOutputError{
			Prefix: domain.TruncateRunes(strings.TrimSpace(raw), DiagnosticPrefixLen),
			Err:    err,
		}
	}

	return parsed, nil
}

// cleanModelJSON strips Markdown fences and returns the first balanced JSON array or object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSpace(s)
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}

	start := strings.IndexAny(s, "[{")
	if start == -1 {
		return s
	}

	end := matchingBracket(s, start)
	if end == -1 {
		return s[start:]
	}
	return s[start : end+1]
}

// matchingBracket returns the index of the bracket closing the one at s[start],
// ignoring brackets inside JSON strings, or -1 if it is never closed.
func matchingBracket(s string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}

	return -1
}
