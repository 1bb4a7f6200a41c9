package pipeline

import (
	"strings"
)

// Field is a logical transaction field a header can map to.
type Field string

const (
	FieldDate        Field = "date"
	FieldDescription Field = "description"
	FieldAmount      Field = "amount"
	FieldBalance     Field = "balance"
)

// Keyword lists in priority order. A header matches a keyword when its
// lower-cased, trimmed form contains it.
var (
	dateKeywords        = []string{"date", "transaction date", "posting date", "trans date"}
	descriptionKeywords = []string{"description", "memo", "details", "transaction", "merchant", "payee", "narrative", "reference"}
	amountKeywords      = []string{"amount", "debit", "credit", "value", "transaction amount"}
	balanceKeywords     = []string{"balance", "running balance", "account balance"}
)

// Row is one data row of a delimited file, keyed by original header text.
// Number is the 1-based line in the file (the header is line 1).
type Row struct {
	Number int
	Fields map[string]string
}

// ColumnMapping maps logical fields to original header names.
type ColumnMapping struct {
	Date        string
	Description string
	Amount      string
	Balance     string // empty when the file has no balance column
}

// HasBalance reports whether a balance column was detected.
func (m ColumnMapping) HasBalance() bool {
	return m.Balance != ""
}

// DateCell returns the trimmed date cell of r.
func (m ColumnMapping) DateCell(r Row) string {
	return strings.TrimSpace(r.Fields[m.Date])
}

// DescriptionCell returns the trimmed description cell of r.
func (m ColumnMapping) DescriptionCell(r Row) string {
	return strings.TrimSpace(r.Fields[m.Description])
}

// AmountCell returns the trimmed amount cell of r.
func (m ColumnMapping) AmountCell(r Row) string {
	return strings.TrimSpace(r.Fields[m.Amount])
}

// BalanceCell returns the trimmed balance cell of r, or "" without a balance column.
func (m ColumnMapping) BalanceCell(r Row) string {
	if !m.HasBalance() {
		return ""
	}
	return strings.TrimSpace(r.Fields[m.Balance])
}

// DetectColumns infers the column mapping from a header row.
func DetectColumns(headers []string) (ColumnMapping, error) {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = normalizeHeader(h)
	}

	claimed := make(map[int]bool)
	find := func(keywords []string, exclude string) string {
		for _, kw := range keywords {
			for i, h := range normalized {
				if claimed[i] || h == "" {
					continue
				}
				if exclude != "" && strings.Contains(h, exclude) {
					continue
				}
				if strings.Contains(h, kw) {
					claimed[i] = true
					return headers[i]
				}
			}
		}
		return ""
	}

	// Amount is claimed before description so "Transaction Amount" is never
	// taken by the generic "transaction" description keyword.
	var m ColumnMapping
	m.Date = find(dateKeywords, "")
	m.Amount = find(amountKeywords, "balance")
	m.Description = find(descriptionKeywords, "")
	m.Balance = find(balanceKeywords, "")

	var missing []string
	if m.Date == "" {
		missing = append(missing, string(FieldDate))
	}
	if m.Description == "" {
		missing = append(missing, string(FieldDescription))
	}
	if m.Amount == "" {
		missing = append(missing, string(FieldAmount))
	}
	if len(missing) > 0 {
		return ColumnMapping{}, missingColumns(missing)
	}

	return m, nil
}

func missingColumns(missing []string) *IngestError {
	return newError(KindMissingColumns,
		"could not detect required columns: "+strings.Join(missing, ", "),
		map[string]any{"missing": missing})
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}
