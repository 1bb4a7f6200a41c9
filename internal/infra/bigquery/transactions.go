package bigquery

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	bq "github.com/n3xfin/finance-tracker/internal/bigquery"
	"github.com/n3xfin/finance-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// Re-export row types from shared package
type (
	TransactionRow     = bq.TransactionRow
	IngestionRunRow    = bq.IngestionRunRow
	ModelOutputRow     = bq.ModelOutputRow
	AnomalyFeedbackRow = bq.AnomalyFeedbackRow
)

// Target names the project and dataset every statement runs against.
type Target struct {
	ProjectID string
	DatasetID string
}

// Table returns the fully qualified, back-quoted table name.
func (t Target) Table(name string) string {
	return "`" + t.ProjectID + "." + t.DatasetID + "." + name + "`"
}

// TransactionRowFromDomain maps a domain transaction to its storage row.
func TransactionRowFromDomain(tx *domain.Transaction, ingestionRunID string) *TransactionRow {
	day := tx.Date.UTC()
	row := &TransactionRow{
		TransactionID:    tx.ID,
		UserID:           tx.UserID,
		ContentHash:      tx.ContentHash(),
		TransactionTS:    day,
		TransactionDate:  civil.DateOf(day),
		TransactionMonth: day.Format("2006-01"),
		Amount:           tx.Amount.Rat(),
		RawDescription:   tx.Description,
		SourceFile:       tx.SourceFile,
		CreatedTS:        tx.CreatedAt,
	}

	if ingestionRunID != "" {
		row.IngestionRunID = bigquery.NullString{StringVal: ingestionRunID, Valid: true}
	}
	if tx.Balance != nil {
		row.BalanceAfter = tx.Balance.Rat()
	}
	if tx.Category != "" {
		row.CategoryName = bigquery.NullString{StringVal: tx.Category, Valid: true}
		row.CategoryConfidence = bigquery.NullFloat64{Float64: tx.CategoryConfidence, Valid: true}
	}
	if len(tx.RawData) > 0 && json.Valid(tx.RawData) {
		row.RawData = bigquery.NullJSON{JSONVal: string(tx.RawData), Valid: true}
	}
	if row.CreatedTS.IsZero() {
		row.CreatedTS = time.Now().UTC()
	}

	return row
}

// TransactionFromRow maps a storage row back to a domain transaction.
func TransactionFromRow(row *TransactionRow) (*domain.Transaction, error) {
	amount, err := ratToDecimal(row.Amount)
	if err != nil {
		return nil, fmt.Errorf("TransactionFromRow: amount of %s: %w", row.TransactionID, err)
	}

	date := row.TransactionTS.UTC()
	if date.IsZero() {
		date = row.TransactionDate.In(time.UTC)
	}

	tx := &domain.Transaction{
		ID:          row.TransactionID,
		UserID:      row.UserID,
		Date:        date,
		Description: row.RawDescription,
		Amount:      amount,
		SourceFile:  row.SourceFile,
		CreatedAt:   row.CreatedTS,
	}

	if row.BalanceAfter != nil {
		balance, err := ratToDecimal(row.BalanceAfter)
		if err != nil {
			return nil, fmt.Errorf("TransactionFromRow: balance of %s: %w", row.TransactionID, err)
		}
		tx.Balance = &balance
	}
	if row.CategoryName.Valid {
		tx.Category = row.CategoryName.StringVal
	}
	if row.CategoryConfidence.Valid {
		tx.CategoryConfidence = row.CategoryConfidence.Float64
	}
	if row.RawData.Valid {
		tx.RawData = json.RawMessage(row.RawData.JSONVal)
	}

	return tx, nil
}

// ratToDecimal converts a NUMERIC value; BigQuery NUMERIC has 9 fractional digits.
func ratToDecimal(r *big.Rat) (decimal.Decimal, error) {
	if r == nil {
		return decimal.Zero, fmt.Errorf("NULL numeric")
	}
	return decimal.NewFromString(r.FloatString(9))
}
