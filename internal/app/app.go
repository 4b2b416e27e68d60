// Package app assembles the configured stores and pipeline for the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/dvloznov/spendiq/internal/blob"
	"github.com/dvloznov/spendiq/internal/blob/gcs"
	bloblocal "github.com/dvloznov/spendiq/internal/blob/inmemory"
	"github.com/dvloznov/spendiq/internal/config"
	infraBQ "github.com/dvloznov/spendiq/internal/infra/bigquery"
	"github.com/dvloznov/spendiq/internal/infra/sqlite"
	"github.com/dvloznov/spendiq/internal/pdftext"
	"github.com/dvloznov/spendiq/internal/pipeline"
	"github.com/dvloznov/spendiq/internal/records"
	"github.com/dvloznov/spendiq/internal/records/inmemory"
)

// OpenStore returns the records.Store selected by STORE_BACKEND.
func OpenStore(ctx context.Context, cfg *config.Config) (records.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		return inmemory.NewStore(), nil
	case config.StoreSQLite:
		store, err := sqlite.NewStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("OpenStore: %w", err)
		}
		return store, nil
	case config.StoreBigQuery:
		store, err := infraBQ.NewRecordRepository(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			return nil, fmt.Errorf("OpenStore: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("OpenStore: unknown store backend %q", cfg.StoreBackend)
	}
}

// Blobs is a blob.Store that may hold a client needing Close.
type Blobs interface {
	blob.Store
	Close() error
}

type memoryBlobs struct {
	*bloblocal.Store
}

func (memoryBlobs) Close() error { return nil }

// OpenBlobs returns a Cloud Storage archive when GCS_BUCKET is set and an in-memory one otherwise.
func OpenBlobs(ctx context.Context, cfg *config.Config) (Blobs, error) {
	if cfg.GCSBucket == "" {
		return memoryBlobs{bloblocal.NewStore()}, nil
	}

	store, err := gcs.NewStore(ctx, cfg.GCSBucket)
	if err != nil {
		return nil, fmt.Errorf("OpenBlobs: %w", err)
	}
	return store, nil
}

// NewRunner builds the statement analysis runner backed by Gemini.
func NewRunner(ctx context.Context, cfg *config.Config, store records.Store, blobs blob.Store) (*pipeline.Runner, error) {
	gateway, err := pipeline.NewGeminiGateway(ctx, cfg.GeminiAPIKey, cfg.ModelName)
	if err != nil {
		return nil, fmt.Errorf("NewRunner: %w", err)
	}

	return pipeline.NewRunner(pipeline.Dependencies{
		Store:            store,
		Blobs:            blobs,
		Extractor:        pdftext.NewExtractor(),
		Gateway:          gateway,
		MaxPromptChars:   cfg.MaxPromptChars,
		ModelCallTimeout: cfg.ModelCallTimeout,
	}, cfg.RunTimeout), nil
}
