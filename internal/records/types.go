package records

import (
	"context"
	"time"

	"github.com/dvloznov/spendiq/internal/domain"
)

// DefaultListLimit bounds ListByUser when the caller passes no limit.
const DefaultListLimit = 50

// Store persists AnalysisRecords. Implementations are safe for concurrent use and
// never let a record leave the done or error status.
type Store interface {
	// Create inserts a new record. ID, UserID and FileName are required.
	Create(ctx context.Context, rec *domain.AnalysisRecord) error

	// Get returns the record or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.AnalysisRecord, error)

	// ListByUser returns the user's records, newest first, at most limit of them.
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AnalysisRecord, error)

	// Delete removes the record or returns domain.ErrNotFound.
	Delete(ctx context.Context, id string) error

	// StartRun moves a pending record to processing/extracting or fails with domain.ErrRunAlreadyStarted.
	StartRun(ctx context.Context, id string) error

	// MarkStage records pipeline progress on a non-terminal record.
	MarkStage(ctx context.Context, id string, stage domain.Stage) error

	// SaveRawText stores the extracted text preview on a non-terminal record.
	SaveRawText(ctx context.Context, id string, text string) error

	// MarkDone stores the result and moves the record to done.
	MarkDone(ctx context.Context, id string, txs []domain.Transaction, analysis *domain.Analysis) error

	// MarkFailed stores the error message and moves the record to error.
	MarkFailed(ctx context.Context, id string, errMsg string) error

	// ListStale returns non-terminal (pending or processing) records not
	// updated since before, oldest first.
	ListStale(ctx context.Context, before time.Time) ([]*domain.AnalysisRecord, error)

	// Close releases the underlying resources.
	Close() error
}

// NormalizeLimit applies DefaultListLimit to non-positive limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// TruncateError bounds an error message before it is persisted.
func TruncateError(msg string) string {
	return domain.TruncateRunes(msg, domain.MaxErrorMessageLen)
}
