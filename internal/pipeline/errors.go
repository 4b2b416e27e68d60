package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/spendiq/internal/domain"
)

// FailureMessage renders err as the message stored on a failed record. The leading
// sentence tells the user what to do next; the details keep the cause for support.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}

	var lead string
	switch {
	case errors.Is(err, domain.ErrUnreadableDocument):
		lead = "Could not read your PDF. It may be scanned, image-based or damaged; try re-exporting it from your bank."
	case errors.Is(err, domain.ErrNoTransactionsFound):
		lead = "No transactions were found in this statement. Check that the file is a bank or UPI statement."
	case errors.Is(err, domain.ErrMalformedModelOutput),
		errors.Is(err, domain.ErrInvalidExtractionShape),
		errors.Is(err, domain.ErrInvalidAnalysisShape):
		lead = "The AI response was unusable. Please resubmit the statement."
	case errors.Is(err, context.DeadlineExceeded):
		lead = "The analysis took too long and was stopped. Please resubmit the statement."
	case errors.Is(err, domain.ErrUpstreamFailure):
		lead = "The AI service could not be reached. Please try again later."
	default:
		lead = "Analysis failed."
	}

	msg := fmt.Sprintf("%s Details: %v", lead, err)
	return domain.TruncateRunes(msg, domain.MaxErrorMessageLen)
}
