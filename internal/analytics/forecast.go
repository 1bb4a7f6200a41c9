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
	forecastHistoryDays   = 90
	defaultHorizonDays    = 30
	maxHorizonDays        = 365
	minForecastDataPoints = 5
	minAlertConfidence    = 0.3
	incomeCategory        = "Income"

	week = 7 * 24 * time.Hour
)

// Forecast projects one category's spending over the next HorizonDays.
//
// PredictedAmount extends the least-squares trend of weekly totals.
// HistoricalAverage is what the same horizon costs at the history's average
// daily rate, so the two are directly comparable.
type Forecast struct {
	Category          string          `json:"category"`
	PredictedAmount   decimal.Decimal `json:"predictedAmount"`
	HistoricalAverage decimal.Decimal `json:"historicalAverage"`
	WeeklyTrend       float64         `json:"weeklyTrend"`
	Confidence        float64         `json:"confidence"`
	HorizonDays       int             `json:"horizon"`
	DataPoints        int             `json:"dataPoints"`
	Message           string          `json:"message,omitempty"`
}

// AlertSeverity ranks how far a forecast overshoots its historical average.
type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "info"
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

func (s AlertSeverity) rank() int {
	switch s {
	case AlertCritical:
		return 3
	case AlertWarning:
		return 2
	default:
		return 1
	}
}

// Alert warns that a category is on course to exceed its usual spending.
type Alert struct {
	ID                string          `json:"id"`
	UserID            string          `json:"userId"`
	Category          string          `json:"category"`
	Message           string          `json:"message"`
	PredictedAmount   decimal.Decimal `json:"predictedAmount"`
	HistoricalAverage decimal.Decimal `json:"historicalAverage"`
	Severity          AlertSeverity   `json:"severity"`
	Confidence        float64         `json:"confidence"`
	Recommendations   []string        `json:"recommendations"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// PredictSpending forecasts category spending for horizonDays after end from
// the expenses in the historyDays before end. Fewer than five expenses give
// a zero forecast with a message instead.
func PredictSpending(txs []*domain.Transaction, category string, end time.Time, historyDays, horizonDays int) Forecast {
	f := Forecast{
		Category:          category,
		PredictedAmount:   decimal.Zero,
		HistoricalAverage: decimal.Zero,
		HorizonDays:       horizonDays,
	}

	start := end.AddDate(0, 0, -historyDays)
	weeks := historyDays / 7
	weekly := make([]float64, weeks)
	total := decimal.Zero
	var amounts []float64

	for _, tx := range txs {
		if !tx.IsExpense() || tx.CategoryOrDefault() != category {
			continue
		}
		if tx.Date.Before(start) || !tx.Date.Before(end) {
			continue
		}
		amount := tx.Amount.Abs()
		total = total.Add(amount)
		amounts = append(amounts, amount.InexactFloat64())

		// Week 0 is the oldest full week; the days before it only count
		// towards the average.
		if back := int(end.Sub(tx.Date) / week); back < weeks {
			weekly[weeks-1-back] += amount.InexactFloat64()
		}
	}

	f.DataPoints = len(amounts)
	if len(amounts) < minForecastDataPoints || weeks < 2 {
		f.Message = "Insufficient historical data for prediction"
		return f
	}

	f.HistoricalAverage = total.Mul(decimal.NewFromInt(int64(horizonDays))).
		Div(decimal.NewFromInt(int64(historyDays))).Round(2)

	intercept, slope := linearFit(weekly)
	h := float64(horizonDays) / 7
	center := float64(weeks) + (h-1)/2
	f.PredictedAmount = decimal.NewFromFloat(math.Max(0, intercept+slope*center) * h).Round(2)
	f.WeeklyTrend = round2(slope)

	mean, stdev := meanStdev(amounts)
	if mean > 0 {
		f.Confidence = round2(math.Max(0, math.Min(1, 1-stdev/mean)))
	}
	return f
}

// GenerateAlerts forecasts every expense category seen in the 30 days before
// now and raises an alert where the forecast exceeds thresholdPercent of the
// historical average. Forecasts below 0.3 confidence are ignored. Alerts are
// ordered by severity, then by predicted amount.
func GenerateAlerts(userID string, txs []*domain.Transaction, now time.Time, thresholdPercent float64) []Alert {
	recent := now.AddDate(0, 0, -defaultHorizonDays)
	seen := make(map[string]bool)
	var categories []string
	for _, tx := range txs {
		if !tx.IsExpense() || tx.Date.Before(recent) || !tx.Date.Before(now) {
			continue
		}
		name := tx.CategoryOrDefault()
		if name == incomeCategory || seen[name] {
			continue
		}
		seen[name] = true
		categories = append(categories, name)
	}
	sort.Strings(categories)

	threshold := decimal.NewFromFloat(thresholdPercent / 100)
	var alerts []Alert
	for _, category := range categories {
		f := PredictSpending(txs, category, now, forecastHistoryDays, defaultHorizonDays)
		if f.Confidence < minAlertConfidence || !f.HistoricalAverage.IsPositive() {
			continue
		}
		if !f.PredictedAmount.GreaterThan(f.HistoricalAverage.Mul(threshold)) {
			continue
		}

		ratio := f.PredictedAmount.Div(f.HistoricalAverage).InexactFloat64()
		alerts = append(alerts, Alert{
			ID:       fmt.Sprintf("alert-%s-%s-%d", userID, category, now.Unix()),
			UserID:   userID,
			Category: category,
			Message: fmt.Sprintf("Your %s spending is predicted to be $%s in the next %d days, which is %.0f%% higher than your average of $%s",
				category, f.PredictedAmount.StringFixed(2), f.HorizonDays, (ratio-1)*100, f.HistoricalAverage.StringFixed(2)),
			PredictedAmount:   f.PredictedAmount,
			HistoricalAverage: f.HistoricalAverage,
			Severity:          alertSeverityFor(ratio),
			Confidence:        f.Confidence,
			Recommendations:   recommendationsFor(category),
			CreatedAt:         now,
		})
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		ri, rj := alerts[i].Severity.rank(), alerts[j].Severity.rank()
		if ri != rj {
			return ri > rj
		}
		return alerts[i].PredictedAmount.GreaterThan(alerts[j].PredictedAmount)
	})
	return alerts
}

func alertSeverityFor(ratio float64) AlertSeverity {
	switch {
	case ratio >= 1.5:
		return AlertCritical
	case ratio >= 1.3:
		return AlertWarning
	default:
		return AlertInfo
	}
}

func recommendationsFor(category string) []string {
	return []string{
		fmt.Sprintf("Review your %s expenses and identify areas to cut back", category),
		fmt.Sprintf("Set a budget limit for %s spending", category),
		fmt.Sprintf("Track your %s purchases more carefully", category),
	}
}

// linearFit returns the least-squares intercept and slope of ys against
// x = 0, 1, ..., len(ys)-1.
func linearFit(ys []float64) (float64, float64) {
	n := float64(len(ys))
	xMean := (n - 1) / 2
	var yMean float64
	for _, y := range ys {
		yMean += y
	}
	yMean /= n

	var num, den float64
	for i, y := range ys {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	if den == 0 {
		return yMean, 0
	}
	slope := num / den
	return yMean - slope*xMean, slope
}
