package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestExtractFromText(t *testing.T) {
	text := `ACME BANK STATEMENT
Account 12345678
2024-03-01  COFFEE HOUSE   -4.50
03/02/2024 Salary ACME Corp 2,500.00  3,100.25
05 Mar 2024 Rent payment (1,200.00)
Page 1 of 2
2024-03-07 no amount here
`
	txs := ExtractFromText(context.Background(), text, Source{UserID: "u1", SourceFile: "march.pdf"})
	if len(txs) != 3 {
		t.Fatalf("got %d transactions, want 3", len(txs))
	}

	want := []struct {
		date   time.Time
		desc   string
		amount string
	}{
		{time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "COFFEE HOUSE", "-4.50"},
		{time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), "Salary ACME Corp 2,500.00", "3100.25"},
		{time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), "Rent payment", "-1200"},
	}
	for i, w := range want {
		tx := txs[i]
		if !tx.Date.Equal(w.date) {
			t.Errorf("[%d] Date = %v, want %v", i, tx.Date, w.date)
		}
		if tx.Description != w.desc {
			t.Errorf("[%d] Description = %q, want %q", i, tx.Description, w.desc)
		}
		if !tx.Amount.Equal(decimal.RequireFromString(w.amount)) {
			t.Errorf("[%d] Amount = %s, want %s", i, tx.Amount, w.amount)
		}
		if tx.UserID != "u1" || tx.SourceFile != "march.pdf" {
			t.Errorf("[%d] source not propagated", i)
		}
	}
}

func TestExtractFromText_NoMatches(t *testing.T) {
	txs := ExtractFromText(context.Background(), "Dear customer,\nthank you for banking with us.", testSource)
	if len(txs) != 0 {
		t.Errorf("got %d transactions, want 0", len(txs))
	}
}

func TestExtractFromText_AmountAndDateForms(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		date   time.Time
		desc   string
		amount string
	}{
		{"day first date", "15/01/2024 Grocery Store 42.10", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "Grocery Store", "42.10"},
		{"currency integer with grouping", "2024-01-20 Rent $1,500", time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), "Rent", "1500"},
		{"currency integer", "2024-01-21 Gym -$45", time.Date(2024, 1, 21, 0, 0, 0, 0, time.UTC), "Gym", "-45"},
		{"grouped integer", "2024-01-22 Transfer in 1,250", time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC), "Transfer in", "1250"},
		{"parenthesised integer", "2024-01-23 Card payment (2,000)", time.Date(2024, 1, 23, 0, 0, 0, 0, time.UTC), "Card payment", "-2000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs := ExtractFromText(context.Background(), tt.line, testSource)
			if len(txs) != 1 {
				t.Fatalf("got %d transactions, want 1", len(txs))
			}
			tx := txs[0]
			if !tx.Date.Equal(tt.date) {
				t.Errorf("Date = %v, want %v", tx.Date, tt.date)
			}
			if tx.Description != tt.desc {
				t.Errorf("Description = %q, want %q", tx.Description, tt.desc)
			}
			if !tx.Amount.Equal(decimal.RequireFromString(tt.amount)) {
				t.Errorf("Amount = %s, want %s", tx.Amount, tt.amount)
			}
		})
	}
}

func TestExtractFromText_BareIntegerIsNotAnAmount(t *testing.T) {
	txs := ExtractFromText(context.Background(), "2024-01-24 Cheque 100234", testSource)
	if len(txs) != 0 {
		t.Errorf("got %d transactions, want 0", len(txs))
	}
}
