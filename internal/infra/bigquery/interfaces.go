package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	bq "github.com/n3xfin/finance-tracker/internal/bigquery"
	"github.com/n3xfin/finance-tracker/internal/domain"
	"github.com/n3xfin/finance-tracker/internal/logger"
	"github.com/n3xfin/finance-tracker/internal/pipeline"
)

// Re-export interfaces from shared package for backward compatibility
type TransactionRepository = bq.TransactionRepository
type IngestionRunRepository = bq.IngestionRunRepository

const defaultInsertBatchSize = 500

// BigQueryRepository is the concrete implementation of TransactionRepository
// and IngestionRunRepository. It holds a shared BigQuery client to avoid
// creating a new connection for each operation.
type BigQueryRepository struct {
	client    *bigquery.Client
	target    Target
	batchSize int
}

// NewBigQueryRepository creates a repository bound to projectID.datasetID.
func NewBigQueryRepository(ctx context.Context, projectID, datasetID string, insertBatchSize int) (*BigQueryRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryRepository: creating client: %w", err)
	}
	if insertBatchSize <= 0 {
		insertBatchSize = defaultInsertBatchSize
	}
	return &BigQueryRepository{
		client:    client,
		target:    Target{ProjectID: projectID, DatasetID: datasetID},
		batchSize: insertBatchSize,
	}, nil
}

// Close closes the BigQuery client connection. This should be called when
// the repository is no longer needed to release resources.
func (r *BigQueryRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ExistingTransactionHashes delegates to ExistingTransactionHashesWithClient.
func (r *BigQueryRepository) ExistingTransactionHashes(ctx context.Context, userID string) (map[string]struct{}, error) {
	return ExistingTransactionHashesWithClient(ctx, r.client, r.target, userID)
}

// PersistTransactions maps and streams the transactions in batches.
// Each transaction is linked to the ingestion run found in ctx, if any.
func (r *BigQueryRepository) PersistTransactions(ctx context.Context, txs []*domain.Transaction) (int, error) {
	runID := pipeline.IngestionRunIDFromContext(ctx)
	rows := make([]*TransactionRow, len(txs))
	for i, tx := range txs {
		rows[i] = TransactionRowFromDomain(tx, runID)
	}
	return InsertTransactionsWithClient(ctx, r.client, r.target, rows, r.batchSize)
}

// QueryTransactionsByDateRange delegates to QueryTransactionsByDateRangeWithClient.
func (r *BigQueryRepository) QueryTransactionsByDateRange(ctx context.Context, userID string, startDate, endDate time.Time) ([]*TransactionRow, error) {
	return QueryTransactionsByDateRangeWithClient(ctx, r.client, r.target, userID, startDate, endDate)
}

// TransactionsBetween returns a user's transactions in [start, end) as domain values.
func (r *BigQueryRepository) TransactionsBetween(ctx context.Context, userID string, start, end time.Time) ([]*domain.Transaction, error) {
	rows, err := r.QueryTransactionsByDateRange(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	return toDomain(ctx, rows), nil
}

// ListUncategorizedTransactions delegates to ListUncategorizedTransactionsWithClient.
func (r *BigQueryRepository) ListUncategorizedTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
	rows, err := ListUncategorizedTransactionsWithClient(ctx, r.client, r.target, userID, limit)
	if err != nil {
		return nil, err
	}
	return toDomain(ctx, rows), nil
}

// UpdateTransactionCategory delegates to UpdateTransactionCategoryWithClient.
func (r *BigQueryRepository) UpdateTransactionCategory(ctx context.Context, userID, contentHash string, a domain.CategoryAssignment) error {
	return UpdateTransactionCategoryWithClient(ctx, r.client, r.target, userID, contentHash, a)
}

// StartIngestionRun delegates to StartIngestionRunWithClient.
func (r *BigQueryRepository) StartIngestionRun(ctx context.Context, run *pipeline.RunInfo) (string, error) {
	return StartIngestionRunWithClient(ctx, r.client, r.target, run)
}

// MarkIngestionRunFailed delegates to MarkIngestionRunFailedWithClient.
func (r *BigQueryRepository) MarkIngestionRunFailed(ctx context.Context, runID string, runErr error) {
	MarkIngestionRunFailedWithClient(ctx, r.client, r.target, runID, runErr)
}

// MarkIngestionRunSucceeded delegates to MarkIngestionRunSucceededWithClient.
func (r *BigQueryRepository) MarkIngestionRunSucceeded(ctx context.Context, runID string, result *pipeline.IngestResult) error {
	return MarkIngestionRunSucceededWithClient(ctx, r.client, r.target, runID, result)
}

// StoreModelOutput delegates to InsertModelOutputWithClient.
func (r *BigQueryRepository) StoreModelOutput(ctx context.Context, runID, modelName, rawResponse string) error {
	return InsertModelOutputWithClient(ctx, r.client, r.target, &ModelOutputRow{
		IngestionRunID: runID,
		ModelName:      modelName,
		RawResponse:    rawResponse,
	})
}

// DeleteIngestionRun delegates to DeleteIngestionRunWithClient.
func (r *BigQueryRepository) DeleteIngestionRun(ctx context.Context, userID, runID string) error {
	return DeleteIngestionRunWithClient(ctx, r.client, r.target, userID, runID)
}

// SaveAnomalyFeedback delegates to InsertAnomalyFeedbackWithClient.
func (r *BigQueryRepository) SaveAnomalyFeedback(ctx context.Context, fb *domain.AnomalyFeedback) error {
	return InsertAnomalyFeedbackWithClient(ctx, r.client, r.target, AnomalyFeedbackRowFromDomain(fb))
}

// LegitimateTransactionIDs delegates to LegitimateTransactionIDsWithClient.
func (r *BigQueryRepository) LegitimateTransactionIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	return LegitimateTransactionIDsWithClient(ctx, r.client, r.target, userID)
}

// toDomain converts rows, dropping (and logging) rows with unreadable NUMERIC values.
func toDomain(ctx context.Context, rows []*TransactionRow) []*domain.Transaction {
	log := logger.FromContext(ctx)

	txs := make([]*domain.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := TransactionFromRow(row)
		if err != nil {
			log.Warn().Err(err).Str("transaction_id", row.TransactionID).Msg("Skipping unreadable transaction row")
			continue
		}
		txs = append(txs, tx)
	}
	return txs
}

// UsersWithUncategorizedTransactions delegates to UsersWithUncategorizedTransactionsWithClient.
func (r *BigQueryRepository) UsersWithUncategorizedTransactions(ctx context.Context, limit int) ([]string, error) {
	return UsersWithUncategorizedTransactionsWithClient(ctx, r.client, r.target, limit)
}

var (
	_ TransactionRepository     = (*BigQueryRepository)(nil)
	_ IngestionRunRepository    = (*BigQueryRepository)(nil)
	_ pipeline.TransactionStore = (*BigQueryRepository)(nil)
	_ pipeline.RunRecorder      = (*BigQueryRepository)(nil)
)
