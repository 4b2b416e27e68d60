package bigquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/spendiq/internal/domain"
	"google.golang.org/api/googleapi"
)

// nonTerminal restricts a write to records that have not reached done or error.
const nonTerminal = `status NOT IN ('done', 'error')`

// EnsureDatasetWithClient creates the dataset in location when it does not exist.
// It reports whether the dataset was created.
func EnsureDatasetWithClient(ctx context.Context, client *bigquery.Client, datasetID, location string) (bool, error) {
	ds := client.Dataset(datasetID)

	_, err := ds.Metadata(ctx)
	if err == nil {
		return false, nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return false, fmt.Errorf("EnsureDataset: reading metadata: %w", err)
	}

	if err := ds.Create(ctx, &bigquery.DatasetMetadata{Location: location}); err != nil {
		return false, fmt.Errorf("EnsureDataset: creating %s: %w", datasetID, err)
	}
	return true, nil
}

// EnsureAnalysesTableWithClient creates the analyses table when it does not exist.
func EnsureAnalysesTableWithClient(ctx context.Context, client *bigquery.Client, datasetID string) error {
	if _, err := runDML(ctx, client, fmt.Sprintf(analysesDDL, client.Project(), datasetID), nil); err != nil {
		return fmt.Errorf("EnsureAnalysesTable: %w", err)
	}
	return nil
}

// InsertAnalysisWithClient inserts a new record with a DML INSERT so that it is
// immediately visible to the UPDATE statements of the pipeline run.
func InsertAnalysisWithClient(ctx context.Context, client *bigquery.Client, table string, row *AnalysisRow) error {
	sql := fmt.Sprintf(`
		INSERT %s (
			analysis_id, user_id, file_name, status, stage, error_message,
			transaction_count, raw_text_preview, checksum_sha256, blob_uri,
			created_ts, updated_ts
		)
		VALUES (
			@analysis_id, @user_id, @file_name, @status, @stage, @error_message,
			@transaction_count, @raw_text_preview, @checksum_sha256, @blob_uri,
			@created_ts, @updated_ts
		)
	`, table)

	_, err := runDML(ctx, client, sql, []bigquery.QueryParameter{
		{Name: "analysis_id", Value: row.AnalysisID},
		{Name: "user_id", Value: row.UserID},
		{Name: "file_name", Value: row.FileName},
		{Name: "status", Value: row.Status},
		{Name: "stage", Value: row.Stage},
		{Name: "error_message", Value: row.ErrorMessage},
		{Name: "transaction_count", Value: row.TransactionCount},
		{Name: "raw_text_preview", Value: row.RawTextPreview},
		{Name: "checksum_sha256", Value: row.ChecksumSHA256},
		{Name: "blob_uri", Value: row.BlobURI},
		{Name: "created_ts", Value: row.CreatedTS},
		{Name: "updated_ts", Value: row.UpdatedTS},
	})
	if err != nil {
		return fmt.Errorf("InsertAnalysis: %w", err)
	}
	return nil
}

// StartRunWithClient moves a pending record to processing/extracting.
// It returns false when no pending record with that id exists.
func StartRunWithClient(ctx context.Context, client *bigquery.Client, table, analysisID string, now time.Time) (bool, error) {
	sql := fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    stage = @stage,
		    updated_ts = @updated_ts
		WHERE analysis_id = @analysis_id
		  AND status = 'pending'
	`, table)

	n, err := runDML(ctx, client, sql, []bigquery.QueryParameter{
		{Name: "status", Value: string(domain.StatusProcessing)},
		{Name: "stage", Value: string(domain.StageExtracting)},
		{Name: "updated_ts", Value: now},
		{Name: "analysis_id", Value: analysisID},
	})
	if err != nil {
		return false, fmt.Errorf("StartRun: %w", err)
	}
	return n > 0, nil
}

// MarkStageWithClient records pipeline progress on a non-terminal record.
func MarkStageWithClient(ctx context.Context, client *bigquery.Client, table, analysisID string, stage domain.Stage, now time.Time) (bool, error) {
	sql := fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    stage = @stage,
		    updated_ts = @updated_ts
		WHERE analysis_id = @analysis_id
		  AND %s
	`, table, nonTerminal)

	n, err := runDML(ctx, client, sql, []bigquery.QueryParameter{
		{Name: "status", Value: string(domain.StatusProcessing)},
		{Name: "stage", Value: string(stage)},
		{Name: "updated_ts", Value: now},
		{Name: "analysis_id", Value: analysisID},
	})
	if err != nil {
		return false, fmt.Errorf("MarkStage: %w", err)
	}
	return n > 0, nil
}

// SaveRawTextWithClient stores the extracted text preview on a non-terminal record.
func SaveRawTextWithClient(ctx context.Context, client *bigquery.Client, table, analysisID, text string, now time.Time) (bool, error) {
	sql := fmt.Sprintf(`
		UPDATE %s
		SET raw_text_preview = @raw_text_preview,
		    updated_ts = @updated_ts
		WHERE analysis_id = @analysis_id
		  AND %s
	`, table, nonTerminal)

	n, err := runDML(ctx, client, sql, []bigquery.QueryParameter{
		{Name: "raw_text_preview", Value: text},
		{Name: "updated_ts", Value: now},
		{Name: "analysis_id", Value: analysisID},
	})
	if err != nil {
		return false, fmt.Errorf("SaveRawText: %w", err)
	}
	return n > 0, nil
}

// MarkDoneWithClient stores the transactions and the analysis and sets status done.
func MarkDoneWithClient(ctx context.Context, client *bigquery.Client, table, analysisID string, txs []domain.Transaction, analysis *domain.Analysis, now time.Time) (bool, error) {
	txsJSON, err := json.Marshal(txs)
	if err != nil {
		return false, fmt.Errorf("MarkDone: encoding transactions: %w", err)
	}
	resultJSON, err := json.Marshal(analysis)
	if err != nil {
		return false, fmt.Errorf("MarkDone: encoding analysis: %w", err)
	}

	sql := fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    stage = @stage,
		    error_message = NULL,
		    transaction_count = @transaction_count,
		    transactions_json = @transactions_json,
		    result_json = @result_json,
		    updated_ts = @updated_ts
		WHERE analysis_id = @analysis_id
		  AND %s
	`, table, nonTerminal)

	n, err := runDML(ctx, client, sql, []bigquery.QueryParameter{
		{Name: "status", Value: string(domain.StatusDone)},
		{Name: "stage", Value: string(domain.StageDone)},
		{Name: "transaction_count", Value: int64(len(txs))},
		{Name: "transactions_json", Value: string(txsJSON)},
		{Name: "result_json", Value: string(resultJSON)},
		{Name: "updated_ts", Value: now},
		{Name: "analysis_id", Value: analysisID},
	})
	if err != nil {
		return false, fmt.Errorf("MarkDone: %w", err)
	}
	return n > 0, nil
}

// MarkFailedWithClient sets status error with errMsg and clears any result.
func MarkFailedWithClient(ctx context.Context, client *bigquery.Client, table, analysisID, errMsg string, now time.Time) (bool, error) {
	sql := fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    stage = @stage,
		    error_message = @error_message,
		    transaction_count = 0,
		    transactions_json = NULL,
		    result_json = NULL,
		    updated_ts = @updated_ts
		WHERE analysis_id = @analysis_id
		  AND %s
	`, table, nonTerminal)

	n, err := runDML(ctx, client, sql, []bigquery.QueryParameter{
		{Name: "status", Value: string(domain.StatusError)},
		{Name: "stage", Value: string(domain.StageError)},
		{Name: "error_message", Value: errMsg},
		{Name: "updated_ts", Value: now},
		{Name: "analysis_id", Value: analysisID},
	})
	if err != nil {
		return false, fmt.Errorf("MarkFailed: %w", err)
	}
	return n > 0, nil
}

// DeleteAnalysisWithClient removes a record. It returns false when nothing was deleted.
func DeleteAnalysisWithClient(ctx context.Context, client *bigquery.Client, table, analysisID string) (bool, error) {
	sql := fmt.Sprintf(`DELETE FROM %s WHERE analysis_id = @analysis_id`, table)

	n, err := runDML(ctx, client, sql, []bigquery.QueryParameter{
		{Name: "analysis_id", Value: analysisID},
	})
	if err != nil {
		return false, fmt.Errorf("DeleteAnalysis: %w", err)
	}
	return n > 0, nil
}

// runDML runs a statement, waits for it and returns the number of affected rows.
func runDML(ctx context.Context, client *bigquery.Client, sql string, params []bigquery.QueryParameter) (int64, error) {
	q := client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}

	return affectedRows(status), nil
}

func affectedRows(status *bigquery.JobStatus) int64 {
	if status == nil || status.Statistics == nil {
		return 0
	}
	qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics)
	if !ok {
		return 0
	}
	return qs.NumDMLAffectedRows
}
