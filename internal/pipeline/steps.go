package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/spendiq/internal/domain"
	"github.com/dvloznov/spendiq/internal/logger"
)

// PipelineStep represents a single step of a statement analysis run.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Record       *domain.AnalysisRecord
	PDFBytes     []byte
	Text         string
	Transactions []domain.Transaction
	Analysis     *domain.Analysis
}

// StartRunStep claims a pending record for this run.
type StartRunStep struct {
	Store RecordStore
}

func (s *StartRunStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := s.Store.StartRun(ctx, state.Record.ID); err != nil {
		return err
	}
	state.Record.Status = domain.StatusProcessing
	state.Record.Stage = domain.StageExtracting
	return nil
}

// FetchPDFStep loads the archived upload.
type FetchPDFStep struct {
	Blobs BlobFetcher
}

func (s *FetchPDFStep) Execute(ctx context.Context, state *PipelineState) error {
	data, err := s.Blobs.Get(ctx, state.Record.BlobURI)
	if err != nil {
		return fmt.Errorf("FetchPDFStep: %w", err)
	}
	state.PDFBytes = data
	return nil
}

// ExtractTextStep turns the PDF into normalized prompt text and keeps a raw preview on the record.
type ExtractTextStep struct {
	Extractor      TextExtractor
	Store          RecordStore
	MaxPromptChars int
}

func (s *ExtractTextStep) Execute(ctx context.Context, state *PipelineState) error {
	raw, err := s.Extractor.ExtractText(ctx, state.PDFBytes)
	if err != nil {
		return fmt.Errorf("ExtractTextStep: %w", err)
	}

	if err := s.Store.SaveRawText(ctx, state.Record.ID, domain.TruncateRunes(raw, domain.RawTextPreviewLimit)); err != nil {
		return fmt.Errorf("ExtractTextStep: saving raw text: %w", err)
	}

	state.Text = NormalizeText(raw, s.MaxPromptChars)
	if state.Text == "" {
		return fmt.Errorf("ExtractTextStep: %w: no text left after normalization", domain.ErrUnreadableDocument)
	}
	state.PDFBytes = nil
	return nil
}

// ExtractTransactionsStep asks the model for the transaction list and validates it.
type ExtractTransactionsStep struct {
	Gateway     ModelGateway
	CallTimeout time.Duration
}

func (s *ExtractTransactionsStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	raw, err := generate(ctx, s.Gateway, s.CallTimeout, BuildExtractionPrompt(state.Text))
	if err != nil {
		return fmt.Errorf("ExtractTransactionsStep: %w", err)
	}

	decoded, err := DecodeModelJSON(raw)
	if err != nil {
		log.Warn().Err(err).Msg("Extraction response could not be decoded")
		return fmt.Errorf("ExtractTransactionsStep: %w", err)
	}

	txs, err := ValidateTransactions(decoded)
	if err != nil {
		return fmt.Errorf("ExtractTransactionsStep: %w", err)
	}
	if items, ok := decoded.([]interface{}); ok && len(items) != len(txs) {
		log.Info().Int("decoded", len(items)).Int("kept", len(txs)).Msg("Dropped invalid transactions")
	}
	if len(txs) == 0 {
		return fmt.Errorf("ExtractTransactionsStep: %w", domain.ErrNoTransactionsFound)
	}

	log.Info().Int("transaction_count", len(txs)).Msg("Extracted transactions")
	state.Transactions = txs
	return nil
}

// AnalyzeTransactionsStep asks the model for the report over the validated transactions.
type AnalyzeTransactionsStep struct {
	Gateway     ModelGateway
	Store       RecordStore
	CallTimeout time.Duration
}

func (s *AnalyzeTransactionsStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	if err := s.Store.MarkStage(ctx, state.Record.ID, domain.StageAnalyzing); err != nil {
		return fmt.Errorf("AnalyzeTransactionsStep: %w", err)
	}
	state.Record.Stage = domain.StageAnalyzing

	prompt, err := BuildAnalysisPromptFor(state.Transactions)
	if err != nil {
		return err
	}

	raw, err := generate(ctx, s.Gateway, s.CallTimeout, prompt)
	if err != nil {
		return fmt.Errorf("AnalyzeTransactionsStep: %w", err)
	}

	decoded, err := DecodeModelJSON(raw)
	if err != nil {
		log.Warn().Err(err).Msg("Analysis response could not be decoded")
		return fmt.Errorf("AnalyzeTransactionsStep: %w", err)
	}

	analysis, err := ValidateAnalysis(decoded)
	if err != nil {
		return fmt.Errorf("AnalyzeTransactionsStep: %w", err)
	}
	ReconcileAnalysis(analysis, state.Transactions)

	state.Analysis = analysis
	return nil
}

// MarkSuccessStep persists the transactions and the analysis and marks the record done.
type MarkSuccessStep struct {
	Store RecordStore
}

func (s *MarkSuccessStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := s.Store.MarkDone(ctx, state.Record.ID, state.Transactions, state.Analysis); err != nil {
		return fmt.Errorf("MarkSuccessStep: %w", err)
	}
	state.Record.Status = domain.StatusDone
	state.Record.Stage = domain.StageDone
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially, stopping at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

func generate(ctx context.Context, gateway ModelGateway, timeout time.Duration, prompt string) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return gateway.Generate(ctx, prompt)
}
