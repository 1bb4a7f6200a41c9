package bigquery

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/n3xfin/finance-tracker/internal/domain"
	"github.com/n3xfin/finance-tracker/internal/pipeline"
)

// TransactionRepository provides an interface for transaction storage operations.
type TransactionRepository interface {
	// ExistingTransactionHashes returns the content hashes already stored for a user.
	ExistingTransactionHashes(ctx context.Context, userID string) (map[string]struct{}, error)

	// PersistTransactions stores transactions and returns how many rows were accepted.
	PersistTransactions(ctx context.Context, txs []*domain.Transaction) (int, error)

	// QueryTransactionsByDateRange queries a user's transactions in [startDate, endDate).
	QueryTransactionsByDateRange(ctx context.Context, userID string, startDate, endDate time.Time) ([]*TransactionRow, error)

	// TransactionsBetween is QueryTransactionsByDateRange returning domain values.
	TransactionsBetween(ctx context.Context, userID string, start, end time.Time) ([]*domain.Transaction, error)

	// ListUncategorizedTransactions returns up to limit transactions without a category.
	ListUncategorizedTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error)

	// UpdateTransactionCategory sets the category of the transaction identified by (userID, contentHash).
	UpdateTransactionCategory(ctx context.Context, userID, contentHash string, a domain.CategoryAssignment) error
}

// IngestionRunRepository provides an interface for the ingestion audit trail.
type IngestionRunRepository interface {
	// StartIngestionRun inserts a run with status=RUNNING and returns the ingestion_run_id.
	StartIngestionRun(ctx context.Context, run *pipeline.RunInfo) (string, error)

	// MarkIngestionRunFailed sets status=FAILED, finished_ts, error_code and error_message for a run.
	MarkIngestionRunFailed(ctx context.Context, runID string, runErr error)

	// MarkIngestionRunSucceeded sets status=SUCCESS, finished_ts and result counts for a run.
	MarkIngestionRunSucceeded(ctx context.Context, runID string, result *pipeline.IngestResult) error

	// StoreModelOutput keeps the raw AI response of a run.
	StoreModelOutput(ctx context.Context, runID, modelName, rawResponse string) error
}

// TransactionRow represents a transaction record in BigQuery.
type TransactionRow struct {
	TransactionID  string              `bigquery:"transaction_id" json:"transaction_id"`
	UserID         string              `bigquery:"user_id" json:"user_id"`
	ContentHash    string              `bigquery:"content_hash" json:"content_hash"`
	IngestionRunID bigquery.NullString `bigquery:"ingestion_run_id" json:"ingestion_run_id,omitempty"`

	TransactionTS    time.Time  `bigquery:"transaction_ts" json:"transaction_ts"`
	TransactionDate  civil.Date `bigquery:"transaction_date" json:"transaction_date"`
	TransactionMonth string     `bigquery:"transaction_month" json:"transaction_month"` // YYYY-MM

	Amount       *big.Rat `bigquery:"amount" json:"-"`        // NUMERIC
	BalanceAfter *big.Rat `bigquery:"balance_after" json:"-"` // NULLABLE NUMERIC

	RawDescription string `bigquery:"raw_description" json:"raw_description"`

	CategoryName       bigquery.NullString  `bigquery:"category_name" json:"category_name,omitempty"`
	CategoryConfidence bigquery.NullFloat64 `bigquery:"category_confidence" json:"category_confidence,omitempty"`
	CategoryReasoning  bigquery.NullString  `bigquery:"category_reasoning" json:"category_reasoning,omitempty"`

	SourceFile string            `bigquery:"source_file" json:"source_file"`
	RawData    bigquery.NullJSON `bigquery:"raw_data" json:"-"`

	CreatedTS time.Time              `bigquery:"created_ts" json:"created_ts"`
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts" json:"updated_ts,omitempty"`
}

// MarshalJSON renders NUMERIC columns as fixed two-decimal strings.
func (t TransactionRow) MarshalJSON() ([]byte, error) {
	type Alias TransactionRow
	return json.Marshal(&struct {
		Amount       string  `json:"amount"`
		BalanceAfter *string `json:"balance_after,omitempty"`
		*Alias
	}{
		Amount: func() string {
			if t.Amount == nil {
				return "0.00"
			}
			return t.Amount.FloatString(2)
		}(),
		BalanceAfter: func() *string {
			if t.BalanceAfter == nil {
				return nil
			}
			s := t.BalanceAfter.FloatString(2)
			return &s
		}(),
		Alias: (*Alias)(&t),
	})
}

// IngestionRunRow represents one ingestion attempt in BigQuery.
type IngestionRunRow struct {
	IngestionRunID string `bigquery:"ingestion_run_id"` // REQUIRED
	UserID         string `bigquery:"user_id"`          // REQUIRED
	SourceRef      string `bigquery:"source_ref"`       // REQUIRED
	SourceFile     string `bigquery:"source_file"`

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Status       string              `bigquery:"status"` // RUNNING, SUCCESS, FAILED
	ForceAI      bool                `bigquery:"force_ai"`
	Tier         bigquery.NullString `bigquery:"tier"`
	ErrorCode    bigquery.NullString `bigquery:"error_code"`
	ErrorMessage bigquery.NullString `bigquery:"error_message"`

	TotalExtracted bigquery.NullInt64 `bigquery:"total_extracted"`
	StoredCount    bigquery.NullInt64 `bigquery:"stored_count"`
	DuplicateCount bigquery.NullInt64 `bigquery:"duplicate_count"`
	SkippedRows    bigquery.NullInt64 `bigquery:"skipped_rows"`
}

// ModelOutputRow represents a raw model response in BigQuery.
type ModelOutputRow struct {
	OutputID       string `bigquery:"output_id"`        // REQUIRED
	IngestionRunID string `bigquery:"ingestion_run_id"` // REQUIRED

	ModelName   string              `bigquery:"model_name"` // REQUIRED
	RawResponse string              `bigquery:"raw_response"`
	Notes       bigquery.NullString `bigquery:"notes"`

	CreatedTS time.Time `bigquery:"created_ts"`
}

// AnomalyFeedbackRow represents one anomaly verdict in BigQuery.
type AnomalyFeedbackRow struct {
	FeedbackID    string `bigquery:"feedback_id"`    // REQUIRED
	UserID        string `bigquery:"user_id"`        // REQUIRED
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	IsLegitimate bool                `bigquery:"is_legitimate"`
	Notes        bigquery.NullString `bigquery:"notes"`

	SubmittedTS time.Time `bigquery:"submitted_ts"`
}
