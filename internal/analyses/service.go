// Package analyses implements the request-level operations on statement analyses:
// submission, lookup, listing, deletion and reanalysis. Pipeline runs are handed to
// a job publisher and never awaited.
package analyses

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/spendiq/internal/blob"
	"github.com/dvloznov/spendiq/internal/domain"
	"github.com/dvloznov/spendiq/internal/jobs"
	"github.com/dvloznov/spendiq/internal/logger"
	"github.com/dvloznov/spendiq/internal/records"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

const pdfContentType = "application/pdf"

// Options tune request handling.
type Options struct {
	// MaxUploadSizeBytes bounds the decoded PDF size.
	MaxUploadSizeBytes int64
	// DedupWindow is how long an identical upload from the same user maps to the
	// existing analysis. Zero disables deduplication.
	DedupWindow time.Duration
	// ListLimit bounds List.
	ListLimit int
}

// Service implements the analysis operations for authenticated users.
type Service struct {
	store     records.Store
	blobs     blob.Store
	publisher jobs.Publisher
	opts      Options

	dedup *cache.Cache
	now   func() time.Time
	newID func() string
}

// NewService creates a Service.
func NewService(store records.Store, blobs blob.Store, publisher jobs.Publisher, opts Options) *Service {
	if opts.ListLimit <= 0 {
		opts.ListLimit = records.DefaultListLimit
	}

	s := &Service{
		store:     store,
		blobs:     blobs,
		publisher: publisher,
		opts:      opts,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	if opts.DedupWindow > 0 {
		s.dedup = cache.New(opts.DedupWindow, 2*opts.DedupWindow)
	}
	return s
}

// Submit validates an upload, archives it, creates a pending record and enqueues
// the pipeline run. It returns the analysis id without waiting for the run.
func (s *Service) Submit(ctx context.Context, userID string, req SubmitRequest) (string, error) {
	if userID == "" {
		return "", domain.ErrUnauthenticated
	}

	upload, err := validateUpload(req, s.opts.MaxUploadSizeBytes)
	if err != nil {
		return "", err
	}

	log := logger.FromContext(ctx).With().
		Str("user_id", userID).
		Str("file_name", upload.FileName).
		Int("size_bytes", len(upload.Data)).
		Logger()

	sum := sha256.Sum256(upload.Data)
	checksum := hex.EncodeToString(sum[:])

	if existing, ok := s.findDuplicate(ctx, userID, checksum); ok {
		log.Info().Str("analysis_id", existing).Msg("Duplicate upload, returning existing analysis")
		return existing, nil
	}

	id, err := s.createAndEnqueue(ctx, userID, upload.FileName, checksum, upload.Data)
	if err != nil {
		return "", err
	}

	if s.dedup != nil {
		s.dedup.Set(dedupKey(userID, checksum), id, cache.DefaultExpiration)
	}

	log.Info().Str("analysis_id", id).Msg("Analysis submitted")
	return id, nil
}

// Get returns a record owned by userID.
func (s *Service) Get(ctx context.Context, userID, analysisID string) (*domain.AnalysisRecord, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if analysisID == "" {
		return nil, fmt.Errorf("%w: missing analysis ID", domain.ErrInvalidRequest)
	}

	rec, err := s.store.Get(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, fmt.Errorf("analysis %s: %w", analysisID, domain.ErrAccessDenied)
	}
	return rec, nil
}

// List returns the caller's records, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]*domain.AnalysisRecord, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	return s.store.ListByUser(ctx, userID, s.opts.ListLimit)
}

// Delete removes a record owned by userID together with its archived upload.
func (s *Service) Delete(ctx context.Context, userID, analysisID string) error {
	rec, err := s.Get(ctx, userID, analysisID)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, analysisID); err != nil {
		return err
	}

	if rec.BlobURI != "" {
		if err := s.blobs.Delete(ctx, rec.BlobURI); err != nil {
			// The record is already deleted; a leftover upload is only logged.
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Str("analysis_id", analysisID).Msg("Failed to delete archived upload")
		}
	}

	log := logger.FromContext(ctx)

	log.Info().Str("analysis_id", analysisID).Msg("Analysis deleted")
	return nil
}

// Reanalyze starts a fresh run over the archived upload of an existing record.
// The existing record is left untouched.
func (s *Service) Reanalyze(ctx context.Context, userID, analysisID string) (string, error) {
	rec, err := s.Get(ctx, userID, analysisID)
	if err != nil {
		return "", err
	}
	if rec.BlobURI == "" {
		return "", fmt.Errorf("%w: analysis %s has no archived upload", domain.ErrInvalidRequest, analysisID)
	}

	data, err := s.blobs.Get(ctx, rec.BlobURI)
	if err != nil {
		return "", fmt.Errorf("Reanalyze: reading upload: %w", err)
	}

	id, err := s.createAndEnqueue(ctx, userID, rec.FileName, rec.Checksum, data)
	if err != nil {
		return "", err
	}

	log := logger.FromContext(ctx)

	log.Info().
		Str("analysis_id", id).
		Str("source_analysis_id", analysisID).
		Msg("Reanalysis submitted")
	return id, nil
}

// createAndEnqueue archives data, creates the pending record and publishes the job.
func (s *Service) createAndEnqueue(ctx context.Context, userID, fileName, checksum string, data []byte) (string, error) {
	id := s.newID()
	now := s.now()

	uri, err := s.blobs.Put(ctx, blob.UploadKey(userID, id, now), data, pdfContentType)
	if err != nil {
		return "", fmt.Errorf("archiving upload: %w", err)
	}

	rec := &domain.AnalysisRecord{
		ID:        id,
		UserID:    userID,
		FileName:  fileName,
		Status:    domain.StatusPending,
		Stage:     domain.StagePending,
		CreatedAt: now,
		Checksum:  checksum,
		BlobURI:   uri,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		_ = s.blobs.Delete(ctx, uri)
		return "", fmt.Errorf("creating record: %w", err)
	}

	job := &jobs.AnalyzeStatementJob{AnalysisID: id, UserID: userID}
	if err := s.publisher.PublishAnalyzeStatement(ctx, job); err != nil {
		msg := fmt.Sprintf("Analysis could not be scheduled. Please resubmit the statement. Details: %v", err)
		if markErr := s.store.MarkFailed(context.WithoutCancel(ctx), id, msg); markErr != nil {
			log := logger.FromContext(ctx)
			log.Error().Err(markErr).Str("analysis_id", id).Msg("Failed to record scheduling failure")
		}
		return "", fmt.Errorf("enqueueing analysis %s: %w", id, err)
	}

	return id, nil
}

// findDuplicate returns the id of a recent, not failed analysis of the same file.
func (s *Service) findDuplicate(ctx context.Context, userID, checksum string) (string, bool) {
	if s.dedup == nil {
		return "", false
	}

	v, ok := s.dedup.Get(dedupKey(userID, checksum))
	if !ok {
		return "", false
	}
	id, _ := v.(string)

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Msg("Dedup lookup failed")
		}
		return "", false
	}
	if rec.Status == domain.StatusError {
		return "", false
	}
	return id, true
}

func dedupKey(userID, checksum string) string {
	return userID + ":" + checksum
}
