package pipeline

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var testSource = Source{UserID: "user-1", SourceFile: "march.csv"}

func TestParseRow(t *testing.T) {
	m := ColumnMapping{Date: "Date", Description: "Description", Amount: "Amount", Balance: "Balance"}

	tests := []struct {
		name       string
		fields     map[string]string
		wantStatus RowStatus
		wantKind   ErrorKind
		wantAmount string
		wantBal    string
	}{
		{
			name:       "valid row",
			fields:     map[string]string{"Date": "2024-01-15", "Description": "Coffee Shop", "Amount": "-4.50", "Balance": "995.50"},
			wantStatus: RowParsed,
			wantAmount: "-4.5",
			wantBal:    "995.5",
		},
		{
			name:       "bad balance is ignored",
			fields:     map[string]string{"Date": "2024-01-15", "Description": "Coffee Shop", "Amount": "-4.50", "Balance": "n/a"},
			wantStatus: RowParsed,
			wantAmount: "-4.5",
		},
		{
			name:       "blank description skipped",
			fields:     map[string]string{"Date": "2024-01-15", "Description": "  ", "Amount": "-4.50"},
			wantStatus: RowSkipped,
		},
		{
			name:       "bad date fails",
			fields:     map[string]string{"Date": "invalid-date", "Description": "Coffee", "Amount": "-4.50"},
			wantStatus: RowFailed,
			wantKind:   KindInvalidDate,
		},
		{
			name:       "bad amount fails",
			fields:     map[string]string{"Date": "2024-01-15", "Description": "Coffee", "Amount": "lots"},
			wantStatus: RowFailed,
			wantKind:   KindInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ParseRow(Row{Number: 2, Fields: tt.fields}, m, testSource)
			if res.Status != tt.wantStatus {
				t.Fatalf("Status = %v, want %v (err=%v)", res.Status, tt.wantStatus, res.Err)
			}
			if tt.wantKind != "" {
				if KindOf(res.Err) != tt.wantKind {
					t.Errorf("error kind = %q, want %q", KindOf(res.Err), tt.wantKind)
				}
				return
			}
			if tt.wantStatus != RowParsed {
				return
			}

			tx := res.Transaction
			if !tx.Amount.Equal(decimal.RequireFromString(tt.wantAmount)) {
				t.Errorf("Amount = %s, want %s", tx.Amount, tt.wantAmount)
			}
			if tt.wantBal == "" && tx.Balance != nil {
				t.Errorf("Balance = %s, want nil", tx.Balance)
			}
			if tt.wantBal != "" && (tx.Balance == nil || !tx.Balance.Equal(decimal.RequireFromString(tt.wantBal))) {
				t.Errorf("Balance = %v, want %s", tx.Balance, tt.wantBal)
			}
			if tx.UserID != "user-1" || tx.SourceFile != "march.csv" {
				t.Errorf("source not propagated: %+v", tx)
			}
			if tx.ID == "" {
				t.Error("expected generated ID")
			}
			if !tx.Date.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)) {
				t.Errorf("Date = %v", tx.Date)
			}

			var raw map[string]string
			if err := json.Unmarshal(tx.RawData, &raw); err != nil {
				t.Fatalf("RawData is not JSON: %v", err)
			}
			if raw["Description"] != tt.fields["Description"] {
				t.Errorf("RawData = %v, want original row", raw)
			}
		})
	}
}

func TestReadDelimited(t *testing.T) {
	data := []byte("\xef\xbb\xbfDate,Description,Amount\n" +
		"2024-01-15,\"Grocery, Store\",-45.50\n" +
		"\n" +
		"2024-01-16,Short row\n")

	headers, rows, err := ReadDelimited(data)
	if err != nil {
		t.Fatalf("ReadDelimited() unexpected error: %v", err)
	}
	if len(headers) != 3 || headers[0] != "Date" {
		t.Fatalf("headers = %q, want BOM stripped", headers)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Number != 2 {
		t.Errorf("first row Number = %d, want 2", rows[0].Number)
	}
	if got := rows[0].Fields["Description"]; got != "Grocery, Store" {
		t.Errorf("quoted field = %q", got)
	}
	if got, ok := rows[1].Fields["Amount"]; !ok || got != "" {
		t.Errorf("short row Amount = %q (present=%v), want empty", got, ok)
	}
}

func TestReadDelimited_Empty(t *testing.T) {
	_, _, err := ReadDelimited(nil)
	if !errors.Is(err, ErrMissingColumns) {
		t.Fatalf("error = %v, want MISSING_COLUMNS", err)
	}
}
