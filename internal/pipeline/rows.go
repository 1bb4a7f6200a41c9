package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/n3xfin/finance-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// Source identifies who owns extracted transactions and where they came from.
type Source struct {
	UserID     string
	SourceFile string
}

// RowStatus is the outcome of parsing one delimited row.
type RowStatus int

const (
	// RowParsed means the row produced a transaction.
	RowParsed RowStatus = iota
	// RowSkipped means the row was blank in a required column.
	RowSkipped
	// RowFailed means a required cell could not be normalized.
	RowFailed
)

// RowResult is the three-way outcome of ParseRow.
type RowResult struct {
	Status      RowStatus
	Transaction *domain.Transaction
	Err         error
}

// ParseRow turns one delimited row into a transaction using a validated mapping.
func ParseRow(row Row, m ColumnMapping, src Source) RowResult {
	dateText := m.DateCell(row)
	desc := m.DescriptionCell(row)
	amountText := m.AmountCell(row)

	if dateText == "" || desc == "" || amountText == "" {
		return RowResult{Status: RowSkipped}
	}

	date, err := ParseDate(dateText)
	if err != nil {
		return RowResult{Status: RowFailed, Err: err}
	}

	amount, err := ParseAmount(amountText)
	if err != nil {
		return RowResult{Status: RowFailed, Err: err}
	}

	tx := newTransaction(src, date, desc, amount)

	// Balance is informational; a bad cell just leaves it unset.
	if balanceText := m.BalanceCell(row); balanceText != "" {
		if balance, err := ParseAmount(balanceText); err == nil {
			tx.Balance = &balance
		}
	}

	raw, err := json.Marshal(row.Fields)
	if err == nil {
		tx.RawData = raw
	}

	return RowResult{Status: RowParsed, Transaction: tx}
}

// ReadDelimited reads comma-separated data into a header row and data rows.
// A UTF-8 BOM is dropped; short rows read missing cells as empty; fully
// empty lines are ignored by the CSV reader.
func ReadDelimited(data []byte) ([]string, []Row, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	headers, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, newError(KindMissingColumns, "file has no headers",
			map[string]any{"missing": []string{string(FieldDate), string(FieldDescription), string(FieldAmount)}})
	}
	if err != nil {
		return nil, nil, fmt.Errorf("ReadDelimited: reading header: %w", err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	var rows []Row
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("ReadDelimited: reading row: %w", err)
		}

		line, _ := r.FieldPos(0)
		fields := make(map[string]string, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(record) {
				fields[h] = record[i]
			} else {
				fields[h] = ""
			}
		}
		rows = append(rows, Row{Number: line, Fields: fields})
	}

	return headers, rows, nil
}

func newTransaction(src Source, date time.Time, description string, amount decimal.Decimal) *domain.Transaction {
	return &domain.Transaction{
		ID:          uuid.NewString(),
		UserID:      src.UserID,
		Date:        date,
		Description: description,
		Amount:      amount,
		SourceFile:  src.SourceFile,
		CreatedAt:   time.Now().UTC(),
	}
}
