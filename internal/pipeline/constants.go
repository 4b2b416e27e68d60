package pipeline

import "time"

// Default values for statement processing.
// Most of them can be overridden via configuration.
const (
	// DefaultModelName is the default Gemini model used for extraction and analysis.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultTemperature is the fixed sampling temperature for both model calls.
	DefaultTemperature float32 = 0.1

	// DefaultMaxPromptChars bounds the statement text embedded in the extraction prompt.
	DefaultMaxPromptChars = 30000

	// DefaultModelCallTimeout is the wall-clock budget of a single model call.
	DefaultModelCallTimeout = 120 * time.Second

	// DiagnosticPrefixLen is how much of an unparseable model response is kept in errors.
	DiagnosticPrefixLen = 200
)
