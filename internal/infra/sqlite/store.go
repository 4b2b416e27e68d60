package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/spendiq/internal/domain"
	"github.com/dvloznov/spendiq/internal/records"
)

// Store is the SQLite implementation of records.Store. Timestamps are stored as
// Unix nanoseconds so that ordering is exact.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens the database at path and applies the migrations.
func NewStore(ctx context.Context, path string) (*Store, error) {
	db, err := Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("NewStore: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

const selectColumns = `
	id, user_id, file_name, status, stage, error_message, transaction_count,
	transactions_json, result_json, raw_text_preview, checksum_sha256, blob_uri,
	created_at, updated_at
`

// Create implements records.Store.
func (s *Store) Create(ctx context.Context, rec *domain.AnalysisRecord) error {
	if rec.ID == "" || rec.UserID == "" {
		return fmt.Errorf("Create: record ID and user ID are required")
	}

	status := rec.Status
	if status == "" {
		status = domain.StatusPending
	}
	stage := rec.Stage
	if stage == "" {
		stage = domain.StagePending
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analyses (
			id, user_id, file_name, status, stage, error_message, transaction_count,
			raw_text_preview, checksum_sha256, blob_uri, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.FileName, string(status), string(stage), rec.Error, rec.TransactionCount,
		rec.RawText, rec.Checksum, rec.BlobURI, created.UnixNano(), created.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("Create: inserting %s: %w", rec.ID, err)
	}
	return nil
}

// Get implements records.Store.
func (s *Store) Get(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM analyses WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return rec, nil
}

// ListByUser implements records.Store.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AnalysisRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM analyses
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		userID, records.NormalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("ListByUser: querying: %w", err)
	}
	return scanRecords(rows)
}

// Delete implements records.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// StartRun implements records.Store.
func (s *Store) StartRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE analyses
		SET status = ?, stage = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`,
		string(domain.StatusProcessing), string(domain.StageExtracting), s.now().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("StartRun: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("StartRun: %w", err)
	}
	if n > 0 {
		return nil
	}

	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("record %s is %s: %w", id, rec.Status, domain.ErrRunAlreadyStarted)
}

// MarkStage implements records.Store.
func (s *Store) MarkStage(ctx context.Context, id string, stage domain.Stage) error {
	return s.update(ctx, id, `status = ?, stage = ?`, string(domain.StatusProcessing), string(stage))
}

// SaveRawText implements records.Store.
func (s *Store) SaveRawText(ctx context.Context, id string, text string) error {
	return s.update(ctx, id, `raw_text_preview = ?`, text)
}

// MarkDone implements records.Store.
func (s *Store) MarkDone(ctx context.Context, id string, txs []domain.Transaction, analysis *domain.Analysis) error {
	txsJSON, err := json.Marshal(txs)
	if err != nil {
		return fmt.Errorf("MarkDone: encoding transactions: %w", err)
	}
	resultJSON, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("MarkDone: encoding analysis: %w", err)
	}

	return s.update(ctx, id,
		`status = ?, stage = ?, error_message = '', transaction_count = ?, transactions_json = ?, result_json = ?`,
		string(domain.StatusDone), string(domain.StageDone), len(txs), string(txsJSON), string(resultJSON),
	)
}

// MarkFailed implements records.Store.
func (s *Store) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return s.update(ctx, id,
		`status = ?, stage = ?, error_message = ?, transaction_count = 0, transactions_json = NULL, result_json = NULL`,
		string(domain.StatusError), string(domain.StageError), records.TruncateError(errMsg),
	)
}

// ListStale implements records.Store.
func (s *Store) ListStale(ctx context.Context, before time.Time) ([]*domain.AnalysisRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM analyses
		WHERE status IN ('pending', 'processing') AND updated_at < ?
		ORDER BY updated_at ASC, id ASC`,
		before.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("ListStale: querying: %w", err)
	}
	return scanRecords(rows)
}

// Close implements records.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// update applies set to a non-terminal record. The status predicate and the
// affected-row count make the terminal check atomic.
func (s *Store) update(ctx context.Context, id, set string, args ...interface{}) error {
	args = append(args, s.now().UnixNano(), id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE analyses SET `+set+`, updated_at = ? WHERE id = ? AND status NOT IN ('done', 'error')`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	if n > 0 {
		return nil
	}

	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("record %s is %s: %w", id, rec.Status, domain.ErrTerminalRecord)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*domain.AnalysisRecord, error) {
	var (
		rec                  domain.AnalysisRecord
		status, stage        string
		txsJSON, resultJSON  sql.NullString
		createdAt, updatedAt int64
	)

	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.FileName, &status, &stage, &rec.Error, &rec.TransactionCount,
		&txsJSON, &resultJSON, &rec.RawText, &rec.Checksum, &rec.BlobURI,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = domain.RecordStatus(status)
	rec.Stage = domain.Stage(stage)
	rec.CreatedAt = time.Unix(0, createdAt)
	rec.UpdatedAt = time.Unix(0, updatedAt)

	if txsJSON.Valid && txsJSON.String != "" {
		if err := json.Unmarshal([]byte(txsJSON.String), &rec.Transactions); err != nil {
			return nil, fmt.Errorf("decoding transactions for %s: %w", rec.ID, err)
		}
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result domain.Analysis
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("decoding result for %s: %w", rec.ID, err)
		}
		rec.Result = &result
	}

	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]*domain.AnalysisRecord, error) {
	defer rows.Close()

	out := []*domain.AnalysisRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating: %w", err)
	}
	return out, nil
}

var _ records.Store = (*Store)(nil)
