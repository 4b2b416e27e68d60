package bigquery

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/spendiq/internal/domain"
)

const analysesTable = "analyses"

// AnalysisRow is the BigQuery representation of domain.AnalysisRecord.
// Transactions and the analysis result are stored as JSON text.
type AnalysisRow struct {
	AnalysisID string `bigquery:"analysis_id"` // REQUIRED
	UserID     string `bigquery:"user_id"`     // REQUIRED
	FileName   string `bigquery:"file_name"`   // REQUIRED

	Status string `bigquery:"status"` // REQUIRED
	Stage  string `bigquery:"stage"`  // REQUIRED

	ErrorMessage bigquery.NullString `bigquery:"error_message"` // NULLABLE

	TransactionCount int64               `bigquery:"transaction_count"` // REQUIRED
	TransactionsJSON bigquery.NullString `bigquery:"transactions_json"` // NULLABLE
	ResultJSON       bigquery.NullString `bigquery:"result_json"`       // NULLABLE

	RawTextPreview bigquery.NullString `bigquery:"raw_text_preview"` // NULLABLE
	ChecksumSHA256 bigquery.NullString `bigquery:"checksum_sha256"`  // NULLABLE
	BlobURI        bigquery.NullString `bigquery:"blob_uri"`         // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
	UpdatedTS time.Time `bigquery:"updated_ts"` // REQUIRED
}

// analysesDDL creates the analyses table. Placeholders are the project and dataset.
const analysesDDL = `
	CREATE TABLE IF NOT EXISTS ` + "`%s.%s.analyses`" + ` (
		analysis_id       STRING NOT NULL,
		user_id           STRING NOT NULL,
		file_name         STRING NOT NULL,
		status            STRING NOT NULL,
		stage             STRING NOT NULL,
		error_message     STRING,
		transaction_count INT64 NOT NULL,
		transactions_json STRING,
		result_json       STRING,
		raw_text_preview  STRING,
		checksum_sha256   STRING,
		blob_uri          STRING,
		created_ts        TIMESTAMP NOT NULL,
		updated_ts        TIMESTAMP NOT NULL
	)
	CLUSTER BY user_id
`

// toRecord converts a row read from BigQuery into a domain record.
func (r *AnalysisRow) toRecord() (*domain.AnalysisRecord, error) {
	rec := &domain.AnalysisRecord{
		ID:               r.AnalysisID,
		UserID:           r.UserID,
		FileName:         r.FileName,
		Status:           domain.RecordStatus(r.Status),
		Stage:            domain.Stage(r.Stage),
		CreatedAt:        r.CreatedTS,
		UpdatedAt:        r.UpdatedTS,
		TransactionCount: int(r.TransactionCount),
		Error:            r.ErrorMessage.StringVal,
		RawText:          r.RawTextPreview.StringVal,
		Checksum:         r.ChecksumSHA256.StringVal,
		BlobURI:          r.BlobURI.StringVal,
	}

	if r.TransactionsJSON.Valid && r.TransactionsJSON.StringVal != "" {
		if err := json.Unmarshal([]byte(r.TransactionsJSON.StringVal), &rec.Transactions); err != nil {
			return nil, fmt.Errorf("toRecord: decoding transactions for %s: %w", r.AnalysisID, err)
		}
	}
	if r.ResultJSON.Valid && r.ResultJSON.StringVal != "" {
		var result domain.Analysis
		if err := json.Unmarshal([]byte(r.ResultJSON.StringVal), &result); err != nil {
			return nil, fmt.Errorf("toRecord: decoding result for %s: %w", r.AnalysisID, err)
		}
		rec.Result = &result
	}

	return rec, nil
}

// rowFromRecord builds the row inserted for a new record.
func rowFromRecord(rec *domain.AnalysisRecord) *AnalysisRow {
	return &AnalysisRow{
		AnalysisID:       rec.ID,
		UserID:           rec.UserID,
		FileName:         rec.FileName,
		Status:           string(rec.Status),
		Stage:            string(rec.Stage),
		ErrorMessage:     nullString(rec.Error),
		TransactionCount: int64(rec.TransactionCount),
		RawTextPreview:   nullString(rec.RawText),
		ChecksumSHA256:   nullString(rec.Checksum),
		BlobURI:          nullString(rec.BlobURI),
		CreatedTS:        rec.CreatedAt,
		UpdatedTS:        rec.UpdatedAt,
	}
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}
