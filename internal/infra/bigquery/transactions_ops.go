package bigquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/n3xfin/finance-tracker/internal/domain"
	"google.golang.org/api/iterator"
)

const transactionsTable = "transactions"

// ExistingTransactionHashesWithClient returns the content hashes already
// stored for userID.
func ExistingTransactionHashesWithClient(ctx context.Context, client *bigquery.Client, t Target, userID string) (map[string]struct{}, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT DISTINCT content_hash
		FROM %s
		WHERE user_id = @user_id
	`, t.Table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ExistingTransactionHashes: query read: %w", err)
	}

	hashes := make(map[string]struct{})
	for {
		var r struct {
			ContentHash string `bigquery:"content_hash"`
		}
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ExistingTransactionHashes: iter next: %w", err)
		}
		hashes[r.ContentHash] = struct{}{}
	}

	return hashes, nil
}

// InsertTransactionsWithClient streams rows into the transactions table in
// chunks of batchSize. Each row carries InsertID user_id:content_hash so
// BigQuery drops retried duplicates on a best-effort basis. It returns how
// many rows were accepted together with the joined chunk errors.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, t Target, rows []*TransactionRow, batchSize int) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = len(rows)
	}

	inserter := client.DatasetInProject(t.ProjectID, t.DatasetID).Table(transactionsTable).Inserter()

	stored := 0
	var errs []error
	for start := 0; start < len(rows); start += batchSize {
		chunk := rows[start:min(start+batchSize, len(rows))]

		savers := make([]*bigquery.StructSaver, len(chunk))
		for i, r := range chunk {
			savers[i] = &bigquery.StructSaver{Struct: r, InsertID: insertID(r)}
		}

		if err := inserter.Put(ctx, savers); err != nil {
			failed := len(chunk)
			var multi bigquery.PutMultiError
			if errors.As(err, &multi) {
				failed = failedRowCount(multi)
			}
			stored += len(chunk) - failed
			errs = append(errs, fmt.Errorf("InsertTransactions: rows %d-%d: %d failed: %w", start, start+len(chunk)-1, failed, err))
			continue
		}
		stored += len(chunk)
	}

	return stored, errors.Join(errs...)
}

func insertID(r *TransactionRow) string {
	return r.UserID + ":" + r.ContentHash
}

// failedRowCount counts distinct rows in a PutMultiError; one row may carry several errors.
func failedRowCount(multi bigquery.PutMultiError) int {
	rows := make(map[int]struct{}, len(multi))
	for _, e := range multi {
		rows[e.RowIndex] = struct{}{}
	}
	return len(rows)
}

// QueryTransactionsByDateRangeWithClient queries a user's transactions whose
// timestamp falls within [startDate, endDate), oldest first.
func QueryTransactionsByDateRangeWithClient(ctx context.Context, client *bigquery.Client, t Target, userID string, startDate, endDate time.Time) ([]*TransactionRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			transaction_id,
			user_id,
			content_hash,
			ingestion_run_id,
			transaction_ts,
			transaction_date,
			transaction_month,
			amount,
			balance_after,
			raw_description,
			category_name,
			category_confidence,
			category_reasoning,
			source_file,
			raw_data,
			created_ts,
			updated_ts
		FROM %s
		WHERE user_id = @user_id
		  AND transaction_ts >= @start_ts
		  AND transaction_ts < @end_ts
		ORDER BY transaction_date, created_ts
	`, t.Table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "start_ts", Value: startDate.UTC()},
		{Name: "end_ts", Value: endDate.UTC()},
	}

	return readTransactionRows(ctx, q, "QueryTransactionsByDateRange")
}

// ListUncategorizedTransactionsWithClient returns up to limit of a user's
// transactions that have no category yet, oldest first.
func ListUncategorizedTransactionsWithClient(ctx context.Context, client *bigquery.Client, t Target, userID string, limit int) ([]*TransactionRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			transaction_id,
			user_id,
			content_hash,
			ingestion_run_id,
			transaction_ts,
			transaction_date,
			transaction_month,
			amount,
			balance_after,
			raw_description,
			category_name,
			category_confidence,
			category_reasoning,
			source_file,
			raw_data,
			created_ts,
			updated_ts
		FROM %s
		WHERE user_id = @user_id
		  AND (category_name IS NULL OR category_name IN ('', 'Uncategorized'))
		ORDER BY transaction_date, created_ts
		LIMIT @limit
	`, t.Table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "limit", Value: limit},
	}

	return readTransactionRows(ctx, q, "ListUncategorizedTransactions")
}

func readTransactionRows(ctx context.Context, q *bigquery.Query, op string) ([]*TransactionRow, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: query read: %w", op, err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: iter next: %w", op, err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}

// UpdateTransactionCategoryWithClient sets the category of every row keyed
// by (user_id, content_hash). Rows still in the streaming buffer cannot be
// updated by DML; the job error is returned in that case.
func UpdateTransactionCategoryWithClient(ctx context.Context, client *bigquery.Client, t Target, userID, contentHash string, a domain.CategoryAssignment) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET category_name = @category_name,
		    category_confidence = @category_confidence,
		    category_reasoning = @category_reasoning,
		    updated_ts = @updated_ts
		WHERE user_id = @user_id
		  AND content_hash = @content_hash
	`, t.Table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "category_name", Value: a.Category},
		{Name: "category_confidence", Value: a.Confidence},
		{Name: "category_reasoning", Value: a.Reasoning},
		{Name: "updated_ts", Value: time.Now().UTC()},
		{Name: "user_id", Value: userID},
		{Name: "content_hash", Value: contentHash},
	}

	return runDML(ctx, q, "UpdateTransactionCategory")
}

// runDML runs a DML statement and waits for it to finish.
func runDML(ctx context.Context, q *bigquery.Query, op string) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("%s: running query: %w", op, err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%s: waiting for job: %w", op, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("%s: job error: %w", op, err)
	}

	return nil
}

// UsersWithUncategorizedTransactionsWithClient returns up to limit user IDs
// that own at least one uncategorized transaction.
func UsersWithUncategorizedTransactionsWithClient(ctx context.Context, client *bigquery.Client, t Target, limit int) ([]string, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT DISTINCT user_id
		FROM %s
		WHERE category_name IS NULL OR category_name IN ('', 'Uncategorized')
		ORDER BY user_id
		LIMIT @limit
	`, t.Table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "limit", Value: limit}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("UsersWithUncategorizedTransactions: query: %w", err)
	}

	var users []string
	for {
		var row struct {
			UserID string `bigquery:"user_id"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("UsersWithUncategorizedTransactions: reading row: %w", err)
		}
		users = append(users, row.UserID)
	}
	return users, nil
}
