package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/spendiq/internal/domain"
	"github.com/dvloznov/spendiq/internal/records"
)

// RecordRepository is the BigQuery implementation of records.Store. It holds a
// shared client to avoid creating a new connection for each operation.
//
// Every write after Create is a conditional DML statement; the affected-row count
// tells whether the record was still in a writable state.
type RecordRepository struct {
	client *bigquery.Client
	table  string
	now    func() time.Time
}

// NewRecordRepository creates a repository for projectID.datasetID.analyses and
// makes sure the table exists.
func NewRecordRepository(ctx context.Context, projectID, datasetID string) (*RecordRepository, error) {
	if projectID == "" || datasetID == "" {
		return nil, fmt.Errorf("NewRecordRepository: project and dataset are required")
	}

	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRecordRepository: creating client: %w", err)
	}

	if err := EnsureAnalysesTableWithClient(ctx, client, datasetID); err != nil {
		client.Close()
		return nil, fmt.Errorf("NewRecordRepository: %w", err)
	}

	return &RecordRepository{
		client: client,
		table:  tableName(projectID, datasetID),
		now:    time.Now,
	}, nil
}

func tableName(projectID, datasetID string) string {
	return fmt.Sprintf("`%s.%s.%s`", projectID, datasetID, analysesTable)
}

// Close closes the BigQuery client connection.
func (r *RecordRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Create implements records.Store.
func (r *RecordRepository) Create(ctx context.Context, rec *domain.AnalysisRecord) error {
	if rec.ID == "" || rec.UserID == "" {
		return fmt.Errorf("Create: record ID and user ID are required")
	}

	row := rowFromRecord(rec)
	if row.Status == "" {
		row.Status = string(domain.StatusPending)
	}
	if row.Stage == "" {
		row.Stage = string(domain.StagePending)
	}
	if row.CreatedTS.IsZero() {
		row.CreatedTS = r.now()
	}
	row.UpdatedTS = row.CreatedTS

	return InsertAnalysisWithClient(ctx, r.client, r.table, row)
}

// Get implements records.Store.
func (r *RecordRepository) Get(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	row, err := GetAnalysisWithClient(ctx, r.client, r.table, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}
	return row.toRecord()
}

// ListByUser implements records.Store.
func (r *RecordRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AnalysisRecord, error) {
	rows, err := ListAnalysesByUserWithClient(ctx, r.client, r.table, userID, records.NormalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return toRecords(rows)
}

// Delete implements records.Store.
func (r *RecordRepository) Delete(ctx context.Context, id string) error {
	deleted, err := DeleteAnalysisWithClient(ctx, r.client, r.table, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// StartRun implements records.Store.
func (r *RecordRepository) StartRun(ctx context.Context, id string) error {
	started, err := StartRunWithClient(ctx, r.client, r.table, id, r.now())
	if err != nil {
		return err
	}
	if started {
		return nil
	}

	rec, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("record %s is %s: %w", id, rec.Status, domain.ErrRunAlreadyStarted)
}

// MarkStage implements records.Store.
func (r *RecordRepository) MarkStage(ctx context.Context, id string, stage domain.Stage) error {
	updated, err := MarkStageWithClient(ctx, r.client, r.table, id, stage, r.now())
	return r.checkUpdate(ctx, id, updated, err)
}

// SaveRawText implements records.Store.
func (r *RecordRepository) SaveRawText(ctx context.Context, id string, text string) error {
	updated, err := SaveRawTextWithClient(ctx, r.client, r.table, id, text, r.now())
	return r.checkUpdate(ctx, id, updated, err)
}

// MarkDone implements records.Store.
func (r *RecordRepository) MarkDone(ctx context.Context, id string, txs []domain.Transaction, analysis *domain.Analysis) error {
	updated, err := MarkDoneWithClient(ctx, r.client, r.table, id, txs, analysis, r.now())
	return r.checkUpdate(ctx, id, updated, err)
}

// MarkFailed implements records.Store.
func (r *RecordRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	updated, err := MarkFailedWithClient(ctx, r.client, r.table, id, records.TruncateError(errMsg), r.now())
	return r.checkUpdate(ctx, id, updated, err)
}

// ListStale implements records.Store.
func (r *RecordRepository) ListStale(ctx context.Context, before time.Time) ([]*domain.AnalysisRecord, error) {
	rows, err := ListStaleAnalysesWithClient(ctx, r.client, r.table, before)
	if err != nil {
		return nil, err
	}
	return toRecords(rows)
}

// checkUpdate explains a conditional update that matched no row.
func (r *RecordRepository) checkUpdate(ctx context.Context, id string, updated bool, err error) error {
	if err != nil || updated {
		return err
	}

	rec, getErr := r.Get(ctx, id)
	if getErr != nil {
		return getErr
	}
	return fmt.Errorf("record %s is %s: %w", id, rec.Status, domain.ErrTerminalRecord)
}

func toRecords(rows []*AnalysisRow) ([]*domain.AnalysisRecord, error) {
	out := make([]*domain.AnalysisRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

var _ records.Store = (*RecordRepository)(nil)
