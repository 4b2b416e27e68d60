package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

const analysisColumns = `
	analysis_id,
	user_id,
	file_name,
	status,
	stage,
	error_message,
	transaction_count,
	transactions_json,
	result_json,
	raw_text_preview,
	checksum_sha256,
	blob_uri,
	created_ts,
	updated_ts
`

// GetAnalysisWithClient retrieves a record by id. Returns nil if it does not exist.
func GetAnalysisWithClient(ctx context.Context, client *bigquery.Client, table, analysisID string) (*AnalysisRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE analysis_id = @analysis_id
		LIMIT 1
	`, analysisColumns, table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "analysis_id", Value: analysisID},
	}

	rows, err := readRows(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("GetAnalysis: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ListAnalysesByUserWithClient returns a user's records, newest first.
func ListAnalysesByUserWithClient(ctx context.Context, client *bigquery.Client, table, userID string, limit int) ([]*AnalysisRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE user_id = @user_id
		ORDER BY created_ts DESC, analysis_id DESC
		LIMIT @limit
	`, analysisColumns, table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "limit", Value: int64(limit)},
	}

	rows, err := readRows(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListAnalysesByUser: %w", err)
	}
	return rows, nil
}

// ListStaleAnalysesWithClient returns pending or processing records last updated before the cutoff.
func ListStaleAnalysesWithClient(ctx context.Context, client *bigquery.Client, table string, before time.Time) ([]*AnalysisRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE status IN ('pending', 'processing')
		  AND updated_ts < @before
		ORDER BY updated_ts ASC, id ASC
	`, analysisColumns, table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "before", Value: before},
	}

	rows, err := readRows(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListStaleAnalyses: %w", err)
	}
	return rows, nil
}

func readRows(ctx context.Context, q *bigquery.Query) ([]*AnalysisRow, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading query: %w", err)
	}

	rows := []*AnalysisRow{}
	for {
		var row AnalysisRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating: %w", err)
		}
		rows = append(rows, &row)
	}

	return rows, nil
}
