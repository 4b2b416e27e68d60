package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/spendiq/internal/domain"
	"github.com/dvloznov/spendiq/internal/logger"
)

// Dependencies are the collaborators of a statement analysis run.
type Dependencies struct {
	Store     RecordStore
	Blobs     BlobFetcher
	Extractor TextExtractor
	Gateway   ModelGateway

	MaxPromptChars   int
	ModelCallTimeout time.Duration
}

// NewStatementAnalysisPipeline creates the standard pipeline: claim the record, fetch the PDF,
// extract text, extract transactions, analyze them and persist the result.
func NewStatementAnalysisPipeline(deps Dependencies) *Pipeline {
	callTimeout := deps.ModelCallTimeout
	if callTimeout == 0 {
		callTimeout = DefaultModelCallTimeout
	}

	return NewPipeline(
		&StartRunStep{Store: deps.Store},
		&FetchPDFStep{Blobs: deps.Blobs},
		&ExtractTextStep{Extractor: deps.Extractor, Store: deps.Store, MaxPromptChars: deps.MaxPromptChars},
		&ExtractTransactionsStep{Gateway: deps.Gateway, CallTimeout: callTimeout},
		&AnalyzeTransactionsStep{Gateway: deps.Gateway, Store: deps.Store, CallTimeout: callTimeout},
		&MarkSuccessStep{Store: deps.Store},
	)
}

// Runner drives one pipeline run per analysis record and writes the terminal state.
type Runner struct {
	store      RecordStore
	pipeline   *Pipeline
	runTimeout time.Duration
}

// NewRunner creates a runner for the standard pipeline. A zero runTimeout disables the run budget.
func NewRunner(deps Dependencies, runTimeout time.Duration) *Runner {
	return &Runner{
		store:      deps.Store,
		pipeline:   NewStatementAnalysisPipeline(deps),
		runTimeout: runTimeout,
	}
}

// NewRunnerWithPipeline creates a runner around a custom pipeline.
func NewRunnerWithPipeline(store RecordStore, p *Pipeline, runTimeout time.Duration) *Runner {
	return &Runner{store: store, pipeline: p, runTimeout: runTimeout}
}

// Run executes the pipeline for analysisID. The record must be pending; a record that
// has already been claimed is left untouched and domain.ErrRunAlreadyStarted is returned.
// Any other failure is recorded on the record as status error and returned.
func (r *Runner) Run(ctx context.Context, analysisID string) error {
	log := logger.FromContext(ctx).With().Str("analysis_id", analysisID).Logger()
	ctx = logger.WithContext(ctx, log)

	if r.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.runTimeout)
		defer cancel()
	}

	rec, err := r.store.Get(ctx, analysisID)
	if err != nil {
		return fmt.Errorf("Run: loading record: %w", err)
	}
	if rec.Status != domain.StatusPending {
		return fmt.Errorf("Run: record %s is %s: %w", analysisID, rec.Status, domain.ErrRunAlreadyStarted)
	}

	start := time.Now()
	state := &PipelineState{Record: rec}

	if err := r.pipeline.Execute(ctx, state); err != nil {
		if errors.Is(err, domain.ErrRunAlreadyStarted) || errors.Is(err, domain.ErrTerminalRecord) {
			log.Warn().Err(err).Msg("Analysis record was not in a writable state")
			return err
		}

		log.Error().
			Err(err).
			Str("stage", string(state.Record.Stage)).
			Dur("duration", time.Since(start)).
			Msg("Analysis failed")

		// The run context may already be cancelled or past its deadline.
		if markErr := r.store.MarkFailed(context.WithoutCancel(ctx), analysisID, FailureMessage(err)); markErr != nil {
			log.Error().Err(markErr).Msg("Failed to record analysis failure")
		}
		return err
	}

	log.Info().
		Int("transaction_count", len(state.Transactions)).
		Dur("duration", time.Since(start)).
		Msg("Analysis completed")

	return nil
}
