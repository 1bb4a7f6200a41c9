package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/n3xfin/finance-tracker/internal/domain"
	"github.com/n3xfin/finance-tracker/internal/pipeline"
	"github.com/shopspring/decimal"
)

var forecastNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// weeklyExpenses returns one expense per week ending the day before end,
// oldest first, so amounts[i] lands in regression week i of a 12-week fit.
func weeklyExpenses(end time.Time, category string, amounts []float64) []*domain.Transaction {
	var txs []*domain.Transaction
	for i, a := range amounts {
		d := end.AddDate(0, 0, -(7*(len(amounts)-1-i) + 1))
		txs = append(txs, tx(d.Format("2006-01-02"), category, fmt.Sprintf("-%.2f", a)))
	}
	return txs
}

func linearAmounts(base, step float64) []float64 {
	out := make([]float64, 12)
	for i := range out {
		out[i] = base + step*float64(i)
	}
	return out
}

func TestPredictSpending(t *testing.T) {
	tests := []struct {
		name           string
		amounts        []float64
		wantPredicted  float64
		wantAverage    string
		wantTrend      float64
		wantConfidence float64
	}{
		{"flat history", linearAmounts(10, 0), 42.86, "40", 0, 1},
		{"rising history", linearAmounts(10, 2), 159.80, "84", 2, 0.66},
		{"falling history clamps at zero", linearAmounts(120, -10), 0, "260", -10, 0.45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PredictSpending(weeklyExpenses(forecastNow, "Dining", tt.amounts), "Dining", forecastNow, 90, 30)

			if math.Abs(got.PredictedAmount.InexactFloat64()-tt.wantPredicted) > 0.01 {
				t.Errorf("PredictedAmount = %s, want %.2f", got.PredictedAmount, tt.wantPredicted)
			}
			if !got.HistoricalAverage.Equal(decimal.RequireFromString(tt.wantAverage)) {
				t.Errorf("HistoricalAverage = %s, want %s", got.HistoricalAverage, tt.wantAverage)
			}
			if got.WeeklyTrend != tt.wantTrend {
				t.Errorf("WeeklyTrend = %v, want %v", got.WeeklyTrend, tt.wantTrend)
			}
			if got.Confidence != tt.wantConfidence {
				t.Errorf("Confidence = %v, want %v", got.Confidence, tt.wantConfidence)
			}
			if got.DataPoints != 12 || got.HorizonDays != 30 || got.Message != "" {
				t.Errorf("got %+v", got)
			}
		})
	}
}

func TestPredictSpending_InsufficientData(t *testing.T) {
	txs := weeklyExpenses(forecastNow, "Dining", []float64{10, 20, 30, 40})
	// Other categories, credits and out-of-window expenses do not count.
	txs = append(txs,
		tx("2024-05-20", "Groceries", "-50.00"),
		tx("2024-05-21", "Dining", "25.00"),
		tx("2024-01-02", "Dining", "-15.00"),
		tx("2024-06-01", "Dining", "-15.00"),
	)

	got := PredictSpending(txs, "Dining", forecastNow, 90, 30)
	if got.DataPoints != 4 {
		t.Errorf("DataPoints = %d, want 4", got.DataPoints)
	}
	if !got.PredictedAmount.IsZero() || got.Confidence != 0 {
		t.Errorf("got %+v, want a zero forecast", got)
	}
	if got.Message == "" {
		t.Error("expected an insufficient-data message")
	}
}

func TestLinearFit(t *testing.T) {
	tests := []struct {
		ys            []float64
		wantIntercept float64
		wantSlope     float64
	}{
		{[]float64{3, 5, 7, 9}, 3, 2},
		{[]float64{4, 4, 4}, 4, 0},
		{[]float64{6}, 6, 0},
	}
	for _, tt := range tests {
		intercept, slope := linearFit(tt.ys)
		if intercept != tt.wantIntercept || slope != tt.wantSlope {
			t.Errorf("linearFit(%v) = %v, %v, want %v, %v", tt.ys, intercept, slope, tt.wantIntercept, tt.wantSlope)
		}
	}
}

func TestGenerateAlerts(t *testing.T) {
	var txs []*domain.Transaction
	txs = append(txs, weeklyExpenses(forecastNow, "Books", linearAmounts(10, 0.5))...)
	txs = append(txs, weeklyExpenses(forecastNow, "Dining", linearAmounts(10, 2))...)
	txs = append(txs, weeklyExpenses(forecastNow, "Groceries", linearAmounts(10, 0))...)
	txs = append(txs, weeklyExpenses(forecastNow, "Income", linearAmounts(10, 2))...)

	got := GenerateAlerts("user-1", txs, forecastNow, 120)
	if len(got) != 2 {
		t.Fatalf("got %d alerts, want 2: %+v", len(got), got)
	}

	want := []struct {
		category string
		severity AlertSeverity
	}{
		{"Dining", AlertCritical},
		{"Books", AlertWarning},
	}
	for i, w := range want {
		a := got[i]
		if a.Category != w.category || a.Severity != w.severity {
			t.Errorf("[%d] = %s/%s, want %s/%s", i, a.Category, a.Severity, w.category, w.severity)
		}
		if !a.PredictedAmount.GreaterThan(a.HistoricalAverage) {
			t.Errorf("[%d] predicted %s not above average %s", i, a.PredictedAmount, a.HistoricalAverage)
		}
		if !strings.HasPrefix(a.Message, "Your "+w.category+" spending is predicted to be $") {
			t.Errorf("[%d] Message = %q", i, a.Message)
		}
		if len(a.Recommendations) != 3 {
			t.Errorf("[%d] got %d recommendations, want 3", i, len(a.Recommendations))
		}
		if a.ID != fmt.Sprintf("alert-user-1-%s-%d", w.category, forecastNow.Unix()) || a.UserID != "user-1" {
			t.Errorf("[%d] ID = %q", i, a.ID)
		}
	}
}

func TestGenerateAlerts_Thresholds(t *testing.T) {
	rising := weeklyExpenses(forecastNow, "Dining", linearAmounts(10, 2))

	// Rising spending that stopped more than 30 days ago.
	stale := weeklyExpenses(forecastNow.AddDate(0, 0, -35), "Travel", []float64{10, 20, 30, 40, 50, 60, 70})

	// Irregular amounts give a confidence under 0.3.
	noisy := weeklyExpenses(forecastNow, "Shopping", []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 300})

	tests := []struct {
		name      string
		txs       []*domain.Transaction
		threshold float64
	}{
		{"threshold not reached", rising, 300},
		{"no recent activity", stale, 120},
		{"low confidence", noisy, 120},
		{"no transactions", nil, 120},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GenerateAlerts("user-1", tt.txs, forecastNow, tt.threshold); len(got) != 0 {
				t.Errorf("expected no alerts, got %+v", got)
			}
		})
	}
}

func TestAlertSeverityFor(t *testing.T) {
	tests := []struct {
		ratio float64
		want  AlertSeverity
	}{
		{1.21, AlertInfo},
		{1.3, AlertWarning},
		{1.49, AlertWarning},
		{1.5, AlertCritical},
	}
	for _, tt := range tests {
		if got := alertSeverityFor(tt.ratio); got != tt.want {
			t.Errorf("alertSeverityFor(%v) = %s, want %s", tt.ratio, got, tt.want)
		}
	}
}

func TestService_Forecast(t *testing.T) {
	store := &mockStore{
		TransactionsBetweenFunc: func(ctx context.Context, userID string, start, end time.Time) ([]*domain.Transaction, error) {
			return weeklyExpenses(forecastNow, "Dining", linearAmounts(10, 0)), nil
		},
	}
	svc := NewService(store, Config{})

	got, err := svc.Forecast(context.Background(), "user-1", "Dining", 0, forecastNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.HorizonDays != 30 || got.DataPoints != 12 {
		t.Errorf("got %+v", got)
	}
	if len(store.calls) != 1 || !store.calls[0][0].Equal(forecastNow.AddDate(0, 0, -90)) || !store.calls[0][1].Equal(forecastNow) {
		t.Errorf("unexpected query window %v", store.calls)
	}

	tests := []struct {
		name     string
		category string
		horizon  int
	}{
		{"missing category", "", 30},
		{"negative horizon", "Dining", -1},
		{"horizon too long", "Dining", 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Forecast(context.Background(), "user-1", tt.category, tt.horizon, forecastNow)
			if !errors.Is(err, pipeline.ErrInvalidRequest) {
				t.Errorf("err = %v, want INVALID_REQUEST", err)
			}
		})
	}
}

func TestService_Alerts(t *testing.T) {
	store := &mockStore{
		TransactionsBetweenFunc: func(ctx context.Context, userID string, start, end time.Time) ([]*domain.Transaction, error) {
			return weeklyExpenses(forecastNow, "Dining", linearAmounts(10, 2)), nil
		},
	}

	got, err := NewService(store, Config{}).Alerts(context.Background(), "user-1", forecastNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Category != "Dining" {
		t.Errorf("got %+v, want one Dining alert", got)
	}

	// A higher configured threshold silences it.
	got, err = NewService(store, Config{AlertThresholdPercent: 250}).Alerts(context.Background(), "user-1", forecastNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d alerts with a 250%% threshold, want 0", len(got))
	}
}
