package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/n3xfin/finance-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	minTransactionsForAnomalies = 10
	minSamplesPerCategory       = 5
)

// Granularity is the bucket size of a spending time series.
type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

// ParseGranularity validates a granularity name. Empty means Day.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case "":
		return Day, nil
	case Day, Week, Month:
		return g, nil
	default:
		return "", fmt.Errorf("granularity must be 'day', 'week', or 'month', got %q", s)
	}
}

// Severity ranks how far an anomaly lies from its category mean.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

// CategorySpending is one row of a spending-by-category report.
type CategorySpending struct {
	Category          string          `json:"category"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	TransactionCount  int             `json:"transactionCount"`
	PercentageOfTotal float64         `json:"percentageOfTotal"`
}

// SpendingPoint is one bucket of a spending time series.
type SpendingPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Amount    decimal.Decimal `json:"amount"`
}

// Range is an inclusive expected amount interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Anomaly is an expense whose amount is unusual for its category.
type Anomaly struct {
	Transaction   *domain.Transaction `json:"-"`
	Reason        string              `json:"reason"`
	Severity      Severity            `json:"severity"`
	ExpectedRange Range               `json:"expectedRange"`
	ZScore        float64             `json:"zScore"`
}

// Trend compares spending in two consecutive periods.
type Trend struct {
	Direction        string          `json:"direction"`
	PercentageChange float64         `json:"percentageChange"`
	ComparisonPeriod string          `json:"comparisonPeriod"`
	CurrentTotal     decimal.Decimal `json:"currentTotal"`
	PreviousTotal    decimal.Decimal `json:"previousTotal"`
	Category         string          `json:"category"`
}

// Config tunes anomaly detection and spending alerts.
type Config struct {
	AnomalyThresholdStdDev float64
	// AlertThresholdPercent is how far, as a percentage of the historical
	// average, a forecast must reach before it raises an alert.
	AlertThresholdPercent float64
}

func (c Config) withDefaults() Config {
	if c.AnomalyThresholdStdDev <= 0 {
		c.AnomalyThresholdStdDev = 2.5
	}
	if c.AlertThresholdPercent <= 0 {
		c.AlertThresholdPercent = 120
	}
	return c
}

// SpendingByCategory totals expenses per category. Credits are ignored and
// totals are absolute values.
func SpendingByCategory(txs []*domain.Transaction) []CategorySpending {
	byCategory := make(map[string]*CategorySpending)
	total := decimal.Zero

	for _, tx := range txs {
		if !tx.IsExpense() {
			continue
		}
		name := tx.CategoryOrDefault()
		row, ok := byCategory[name]
		if !ok {
			row = &CategorySpending{Category: name}
			byCategory[name] = row
		}
		amount := tx.Amount.Abs()
		row.TotalAmount = row.TotalAmount.Add(amount)
		row.TransactionCount++
		total = total.Add(amount)
	}

	out := make([]CategorySpending, 0, len(byCategory))
	for _, row := range byCategory {
		if total.IsPositive() {
			row.PercentageOfTotal = row.TotalAmount.Div(total).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
		}
		out = append(out, *row)
	}

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalAmount.Cmp(out[j].TotalAmount); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// SpendingOverTime buckets expenses by day, ISO week (Monday start) or month.
func SpendingOverTime(txs []*domain.Transaction, g Granularity) []SpendingPoint {
	buckets := make(map[time.Time]decimal.Decimal)
	for _, tx := range txs {
		if !tx.IsExpense() {
			continue
		}
		key := bucketStart(tx.Date, g)
		buckets[key] = buckets[key].Add(tx.Amount.Abs())
	}

	out := make([]SpendingPoint, 0, len(buckets))
	for ts, amount := range buckets {
		out = append(out, SpendingPoint{Timestamp: ts, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func bucketStart(t time.Time, g Granularity) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch g {
	case Week:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// TotalSpending sums absolute expense amounts, restricted to category when
// it is non-empty.
func TotalSpending(txs []*domain.Transaction, category string) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		if category != "" && tx.CategoryOrDefault() != category {
			continue
		}
		if tx.IsExpense() {
			total = total.Add(tx.Amount.Abs())
		}
	}
	return total
}

// CompareTotals builds a Trend from two period totals. Changes under 5% in
// either direction are reported as stable.
func CompareTotals(current, previous decimal.Decimal, category, period string) Trend {
	if category == "" {
		category = "all"
	}
	tr := Trend{
		ComparisonPeriod: period,
		CurrentTotal:     current,
		PreviousTotal:    previous,
		Category:         category,
	}

	if previous.IsZero() {
		if current.IsZero() {
			tr.Direction = "stable"
		} else {
			tr.Direction = "increasing"
			tr.PercentageChange = 100
		}
		return tr
	}

	change := current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100))
	tr.PercentageChange = change.Round(2).InexactFloat64()
	switch {
	case change.Abs().LessThan(decimal.NewFromInt(5)):
		tr.Direction = "stable"
	case change.IsPositive():
		tr.Direction = "increasing"
	default:
		tr.Direction = "decreasing"
	}
	return tr
}

// DetectAnomalies flags expenses whose amount lies more than the configured
// number of sample standard deviations from their category mean.
func DetectAnomalies(txs []*domain.Transaction, cfg Config) []Anomaly {
	cfg = cfg.withDefaults()
	if len(txs) < minTransactionsForAnomalies {
		return nil
	}

	byCategory := make(map[string][]*domain.Transaction)
	var order []string
	for _, tx := range txs {
		if !tx.IsExpense() {
			continue
		}
		name := tx.CategoryOrDefault()
		if _, ok := byCategory[name]; !ok {
			order = append(order, name)
		}
		byCategory[name] = append(byCategory[name], tx)
	}

	var anomalies []Anomaly
	for _, name := range order {
		group := byCategory[name]
		if len(group) < minSamplesPerCategory {
			continue
		}

		amounts := make([]float64, len(group))
		for i, tx := range group {
			amounts[i] = tx.Amount.Abs().InexactFloat64()
		}
		mean, stdev := meanStdev(amounts)
		if stdev == 0 {
			continue
		}

		expected := Range{
			Min: round2(mean - cfg.AnomalyThresholdStdDev*stdev),
			Max: round2(mean + cfg.AnomalyThresholdStdDev*stdev),
		}
		for i, tx := range group {
			z := (amounts[i] - mean) / stdev
			absZ := math.Abs(z)
			if absZ <= cfg.AnomalyThresholdStdDev {
				continue
			}
			anomalies = append(anomalies, Anomaly{
				Transaction:   tx,
				Reason:        fmt.Sprintf("Amount $%.2f is %.1f standard deviations from category average", amounts[i], absZ),
				Severity:      severityFor(absZ),
				ExpectedRange: expected,
				ZScore:        round2(z),
			})
		}
	}

	sort.SliceStable(anomalies, func(i, j int) bool {
		ri, rj := anomalies[i].Severity.rank(), anomalies[j].Severity.rank()
		if ri != rj {
			return ri > rj
		}
		return math.Abs(anomalies[i].ZScore) > math.Abs(anomalies[j].ZScore)
	})
	return anomalies
}

func severityFor(absZ float64) Severity {
	switch {
	case absZ > 3.5:
		return SeverityHigh
	case absZ > 3.0:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// meanStdev returns the mean and the sample (n-1) standard deviation.
func meanStdev(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}

	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(xs)-1))
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
