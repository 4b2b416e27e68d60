package pipeline

import (
	"context"

	"github.com/dvloznov/spendiq/internal/domain"
)

// RecordStore is the subset of the analysis record store a pipeline run writes to.
type RecordStore interface {
	Get(ctx context.Context, id string) (*domain.AnalysisRecord, error)
	// StartRun atomically moves a pending record to processing. It fails with
	// domain.ErrRunAlreadyStarted for any other status.
	StartRun(ctx context.Context, id string) error
	MarkStage(ctx context.Context, id string, stage domain.Stage) error
	SaveRawText(ctx context.Context, id string, text string) error
	MarkDone(ctx context.Context, id string, txs []domain.Transaction, analysis *domain.Analysis) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}

// BlobFetcher reads an archived upload.
type BlobFetcher interface {
	Get(ctx context.Context, uri string) ([]byte, error)
}

// TextExtractor turns a PDF into plain text or fails with domain.ErrUnreadableDocument.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}
