package analyses

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/spendiq/internal/logger"
	"github.com/dvloznov/spendiq/internal/records"
	"github.com/robfig/cron/v3"
)

// StaleReporter logs records that stopped short of a terminal status: runs
// stuck in processing and jobs that never left pending (for example, dropped
// from the queue during shutdown). They are never modified: a stale record is
// a candidate for manual resubmission.
type StaleReporter struct {
	store      records.Store
	staleAfter time.Duration
	now        func() time.Time
}

// NewStaleReporter creates a reporter for records not updated within staleAfter.
func NewStaleReporter(store records.Store, staleAfter time.Duration) *StaleReporter {
	return &StaleReporter{store: store, staleAfter: staleAfter, now: time.Now}
}

// Report logs every stale record and returns how many were found.
func (r *StaleReporter) Report(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)

	stale, err := r.store.ListStale(ctx, r.now().Add(-r.staleAfter))
	if err != nil {
		return 0, fmt.Errorf("Report: %w", err)
	}

	for _, rec := range stale {
		log.Warn().
			Str("analysis_id", rec.ID).
			Str("user_id", rec.UserID).
			Str("status", string(rec.Status)).
			Str("stage", string(rec.Stage)).
			Time("updated_at", rec.UpdatedAt).
			Msg("Analysis stalled before completion, candidate for manual retry")
	}
	if len(stale) > 0 {
		log.Info().Int("count", len(stale)).Msg("Stale analysis check finished")
	}

	return len(stale), nil
}

// Schedule runs Report on the cron spec (e.g. "@every 5m") until the returned
// scheduler is stopped.
func (r *StaleReporter) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()

	_, err := c.AddFunc(spec, func() {
		if _, err := r.Report(ctx); err != nil {
			log := logger.FromContext(ctx)
			log.Error().Err(err).Msg("Stale analysis check failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("Schedule: invalid schedule %q: %w", spec, err)
	}

	c.Start()
	return c, nil
}
