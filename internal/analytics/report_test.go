package analytics

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/n3xfin/finance-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	march       = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	generatedAt = time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)
)

func marchTransactions() []*domain.Transaction {
	return []*domain.Transaction{
		tx("2024-03-01", "Income", "3000.00"),
		tx("2024-03-02", "Housing", "-1200.00"),
		tx("2024-03-10", "Dining", "-200.00"),
		tx("2024-03-20", "Dining", "-100.00"),
	}
}

func februaryTransactions() []*domain.Transaction {
	return []*domain.Transaction{
		tx("2024-02-02", "Housing", "-1200.00"),
		tx("2024-02-14", "Dining", "-150.00"),
	}
}

func TestBuildMonthlyReport(t *testing.T) {
	r := BuildMonthlyReport("user-1", march, marchTransactions(), februaryTransactions(), generatedAt)

	if r.ReportID != "user-1-2024-03" || r.Month != "2024-03" || r.TransactionCount != 4 {
		t.Errorf("header = %s %s %d", r.ReportID, r.Month, r.TransactionCount)
	}
	if !r.TotalIncome.Equal(decimal.NewFromInt(3000)) || !r.TotalSpending.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("income = %s, spending = %s", r.TotalIncome, r.TotalSpending)
	}
	if r.SavingsRate != 50 {
		t.Errorf("SavingsRate = %v, want 50", r.SavingsRate)
	}
	if len(r.Categories) != 2 || r.Categories[0].Category != "Housing" || r.Categories[0].PercentageOfTotal != 80 {
		t.Errorf("Categories = %+v", r.Categories)
	}

	wantTrends := []struct {
		category  string
		direction string
		change    float64
	}{
		{"Overall Spending", "increasing", 11.11},
		{"Housing", "stable", 0},
		{"Dining", "increasing", 100},
	}
	if len(r.Trends) != len(wantTrends) {
		t.Fatalf("got %d trends, want %d: %+v", len(r.Trends), len(wantTrends), r.Trends)
	}
	for i, w := range wantTrends {
		tr := r.Trends[i]
		if tr.Category != w.category || tr.Direction != w.direction || tr.PercentageChange != w.change {
			t.Errorf("[%d] trend = %s %s %v, want %s %s %v", i, tr.Category, tr.Direction, tr.PercentageChange, w.category, w.direction, w.change)
		}
		if tr.ComparisonPeriod != "2024-03 vs 2024-02" {
			t.Errorf("[%d] ComparisonPeriod = %q", i, tr.ComparisonPeriod)
		}
	}

	wantInsights := []string{
		"Excellent savings rate of 50.0%! You're saving more than the recommended 20%.",
		"Housing is your highest spending category at $1200.00 (80.0% of total spending).",
		"You made 3 purchases this month.",
	}
	if !reflect.DeepEqual(r.Insights, wantInsights) {
		t.Errorf("Insights = %q, want %q", r.Insights, wantInsights)
	}

	if len(r.Recommendations) != 2 {
		t.Fatalf("got %d recommendations, want 2", len(r.Recommendations))
	}
	if rec := r.Recommendations[0]; rec.Title != "Reduce Housing Spending" || !rec.PotentialSavings.Equal(decimal.NewFromInt(180)) {
		t.Errorf("first recommendation = %+v", rec)
	}
	if rec := r.Recommendations[1]; rec.Category != "Dining" || !rec.PotentialSavings.Equal(decimal.NewFromInt(45)) {
		t.Errorf("second recommendation = %+v", rec)
	}
}

func TestBuildMonthlyReport_EmptyMonth(t *testing.T) {
	r := BuildMonthlyReport("user-1", march, nil, februaryTransactions(), generatedAt)

	if !r.TotalIncome.IsZero() || !r.TotalSpending.IsZero() || r.SavingsRate != 0 {
		t.Errorf("got %+v, want zero totals", r)
	}
	if len(r.Insights) != 1 || r.Insights[0] != "No transactions found for this month" {
		t.Errorf("Insights = %q", r.Insights)
	}
	if r.Categories == nil || r.Trends == nil || r.Recommendations == nil {
		t.Error("empty report should carry empty, non-nil lists")
	}
}

func TestBuildMonthlyReport_NoPreviousSpending(t *testing.T) {
	previous := []*domain.Transaction{tx("2024-02-01", "Income", "100.00")}
	r := BuildMonthlyReport("user-1", march, marchTransactions(), previous, generatedAt)
	if len(r.Trends) != 0 {
		t.Errorf("Trends = %+v, want none without previous spending", r.Trends)
	}
}

func TestMonthlyInsights_SavingsBands(t *testing.T) {
	tests := []struct {
		income   string
		spending string
		prefix   string
	}{
		{"1000", "850", "Good savings rate of 15.0%"},
		{"1000", "950", "Your savings rate of 5.0% could be improved"},
		{"1000", "1200", "You're spending more than you earn"},
		{"0", "10", "You're spending more than you earn"},
	}
	for _, tt := range tests {
		txs := []*domain.Transaction{tx("2024-03-05", "Shopping", "-"+tt.spending)}
		if tt.income != "0" {
			txs = append(txs, tx("2024-03-01", "Income", tt.income))
		}
		r := BuildMonthlyReport("user-1", march, txs, nil, generatedAt)
		if !strings.HasPrefix(r.Insights[0], tt.prefix) {
			t.Errorf("income %s spending %s: insight = %q, want prefix %q", tt.income, tt.spending, r.Insights[0], tt.prefix)
		}
	}
}

func TestSavingsRate(t *testing.T) {
	d := decimal.RequireFromString
	tests := []struct {
		income   string
		spending string
		want     float64
	}{
		{"0", "100", 0},
		{"1000", "1200", -20},
		{"1000", "750", 25},
		{"3", "1", 66.7},
	}
	for _, tt := range tests {
		if got := SavingsRate(d(tt.income), d(tt.spending)); got != tt.want {
			t.Errorf("SavingsRate(%s, %s) = %v, want %v", tt.income, tt.spending, got, tt.want)
		}
	}
}

func TestParseMonth(t *testing.T) {
	got, err := ParseMonth("2024-03")
	if err != nil || !got.Equal(march) {
		t.Errorf("ParseMonth() = %v, %v", got, err)
	}
	for _, bad := range []string{"", "2024-13", "03/2024", "2024-03-01"} {
		if _, err := ParseMonth(bad); err == nil {
			t.Errorf("ParseMonth(%q) expected error", bad)
		}
	}
}

func TestExportCSV(t *testing.T) {
	r := BuildMonthlyReport("user-1", march, marchTransactions(), februaryTransactions(), generatedAt)

	var buf bytes.Buffer
	if err := ExportCSV(&buf, r); err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}

	cr := csv.NewReader(&buf)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}

	want := [][]string{
		{"Month", "2024-03"},
		{"Generated", "2024-04-02T09:00:00Z"},
		{"Total Income", "$3000.00"},
		{"Total Spending", "$1500.00"},
		{"Savings Rate", "50.0%"},
		{"Transaction Count", "4"},
		{"Category", "Amount", "Percentage", "Count"},
		{"Housing", "$1200.00", "80.0%", "1"},
		{"Dining", "$300.00", "20.0%", "2"},
		{"Overall Spending", "increasing", "11.1%"},
		{"1.", "Excellent savings rate of 50.0%! You're saving more than the recommended 20%."},
		{"1.", "Reduce Housing Spending"},
		{"", "Potential Savings: $180.00"},
		{"", "- Look for cheaper alternatives"},
	}
	for _, w := range want {
		if !containsRecord(records, w) {
			t.Errorf("CSV missing record %q", w)
		}
	}
	if records[0][0] != "Monthly Financial Report" {
		t.Errorf("first record = %q", records[0])
	}
}

func TestExportCSV_EmptyReportOmitsOptionalSections(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportCSV(&buf, BuildMonthlyReport("user-1", march, nil, nil, generatedAt)); err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}
	out := buf.String()
	for _, section := range []string{"Trends", "Recommendations"} {
		if strings.Contains(out, section) {
			t.Errorf("empty report should not have a %s section:\n%s", section, out)
		}
	}
	if !strings.Contains(out, "No transactions found for this month") {
		t.Errorf("missing empty-month insight:\n%s", out)
	}
}

func containsRecord(records [][]string, want []string) bool {
	for _, r := range records {
		if reflect.DeepEqual(r, want) {
			return true
		}
	}
	return false
}

func TestService_MonthlyReport(t *testing.T) {
	store := &mockStore{
		TransactionsBetweenFunc: func(ctx context.Context, userID string, start, end time.Time) ([]*domain.Transaction, error) {
			switch {
			case start.Equal(march) && end.Equal(march.AddDate(0, 1, 0)):
				return marchTransactions(), nil
			case start.Equal(march.AddDate(0, -1, 0)) && end.Equal(march):
				return februaryTransactions(), nil
			}
			return nil, errors.New("unexpected window")
		},
	}

	// Any day within the month selects the whole month.
	got, err := NewService(store, Config{}).MonthlyReport(context.Background(), "user-1", march.AddDate(0, 0, 14), generatedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Month != "2024-03" || len(got.Trends) != 3 || !got.GeneratedAt.Equal(generatedAt) {
		t.Errorf("got %+v", got)
	}
	if len(store.calls) != 2 {
		t.Errorf("got %d store calls, want 2", len(store.calls))
	}
}
