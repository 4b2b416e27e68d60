package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/spendiq/internal/domain"
	"github.com/dvloznov/spendiq/internal/records"
)

// Store is an in-memory implementation of records.Store.
// It is safe for concurrent use. Data is lost on restart; use the SQLite or
// BigQuery store for persistence.
type Store struct {
	mu      sync.RWMutex
	records map[string]*domain.AnalysisRecord
	now     func() time.Time
}

// NewStore creates a new in-memory record store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]*domain.AnalysisRecord),
		now:     time.Now,
	}
}

// Create implements records.Store.
func (s *Store) Create(ctx context.Context, rec *domain.AnalysisRecord) error {
	if rec.ID == "" || rec.UserID == "" {
		return fmt.Errorf("Create: record ID and user ID are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("Create: record %s already exists", rec.ID)
	}

	c := copyRecord(rec)
	now := s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt
	if c.Status == "" {
		c.Status = domain.StatusPending
	}
	if c.Stage == "" {
		c.Stage = domain.StagePending
	}
	s.records[c.ID] = c

	return nil
}

// Get implements records.Store.
func (s *Store) Get(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[id]
	if !exists {
		return nil, fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}

	return copyRecord(rec), nil
}

// ListByUser implements records.Store.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*domain.AnalysisRecord{}
	for _, rec := range s.records {
		if rec.UserID == userID {
			result = append(result, copyRecord(rec))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit = records.NormalizeLimit(limit); limit < len(result) {
		result = result[:limit]
	}

	return result, nil
}

// Delete implements records.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; !exists {
		return fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}
	delete(s.records, id)

	return nil
}

// StartRun implements records.Store.
func (s *Store) StartRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[id]
	if !exists {
		return fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}
	if rec.Status != domain.StatusPending {
		return fmt.Errorf("record %s is %s: %w", id, rec.Status, domain.ErrRunAlreadyStarted)
	}

	rec.Status = domain.StatusProcessing
	rec.Stage = domain.StageExtracting
	rec.UpdatedAt = s.now()
	return nil
}

// MarkStage implements records.Store.
func (s *Store) MarkStage(ctx context.Context, id string, stage domain.Stage) error {
	return s.update(id, func(rec *domain.AnalysisRecord) {
		rec.Status = domain.StatusProcessing
		rec.Stage = stage
	})
}

// SaveRawText implements records.Store.
func (s *Store) SaveRawText(ctx context.Context, id string, text string) error {
	return s.update(id, func(rec *domain.AnalysisRecord) {
		rec.RawText = text
	})
}

// MarkDone implements records.Store.
func (s *Store) MarkDone(ctx context.Context, id string, txs []domain.Transaction, analysis *domain.Analysis) error {
	return s.update(id, func(rec *domain.AnalysisRecord) {
		rec.Status = domain.StatusDone
		rec.Stage = domain.StageDone
		rec.Transactions = append([]domain.Transaction(nil), txs...)
		rec.TransactionCount = len(txs)
		rec.Result = analysis.Clone()
		rec.Error = ""
	})
}

// MarkFailed implements records.Store.
func (s *Store) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return s.update(id, func(rec *domain.AnalysisRecord) {
		rec.Status = domain.StatusError
		rec.Stage = domain.StageError
		rec.Error = records.TruncateError(errMsg)
		rec.Transactions = nil
		rec.TransactionCount = 0
		rec.Result = nil
	})
}

// ListStale implements records.Store.
func (s *Store) ListStale(ctx context.Context, before time.Time) ([]*domain.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AnalysisRecord
	for _, rec := range s.records {
		if !rec.Status.IsTerminal() && rec.UpdatedAt.Before(before) {
			result = append(result, copyRecord(rec))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})

	return result, nil
}

// Close implements records.Store.
func (s *Store) Close() error {
	return nil
}

// update applies fn to a non-terminal record under the write lock.
func (s *Store) update(id string, fn func(rec *domain.AnalysisRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[id]
	if !exists {
		return fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}
	if rec.Status.IsTerminal() {
		return fmt.Errorf("record %s is %s: %w", id, rec.Status, domain.ErrTerminalRecord)
	}

	fn(rec)
	rec.UpdatedAt = s.now()
	return nil
}

// copyRecord returns a copy so callers cannot modify stored state.
func copyRecord(rec *domain.AnalysisRecord) *domain.AnalysisRecord {
	c := *rec
	if rec.Transactions != nil {
		c.Transactions = append([]domain.Transaction(nil), rec.Transactions...)
	}
	c.Result = rec.Result.Clone()
	return &c
}

// Ensure Store implements records.Store.
var _ records.Store = (*Store)(nil)
