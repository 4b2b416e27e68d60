package domain

import "errors"

// Error taxonomy shared by the pipeline, the stores and the HTTP layer.
// Callers classify with errors.Is.
var (
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrUnreadableDocument     = errors.New("unreadable document")
	ErrMalformedModelOutput   = errors.New("malformed model output")
	ErrInvalidExtractionShape = errors.New("invalid extraction shape")
	ErrInvalidAnalysisShape   = errors.New("invalid analysis shape")
	ErrNoTransactionsFound    = errors.New("no transactions found")
	ErrUpstreamFailure        = errors.New("upstream failure")
	ErrNotFound               = errors.New("not found")
	ErrAccessDenied           = errors.New("access denied")

	// ErrTerminalRecord is returned when a write targets a record that is already done or error.
	ErrTerminalRecord = errors.New("record is in a terminal state")
	// ErrRunAlreadyStarted is returned when a pipeline run is requested for a record that has left pending.
	ErrRunAlreadyStarted = errors.New("pipeline run already started for record")
)
