package analytics

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/n3xfin/finance-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	monthLayout            = "2006-01"
	recommendedCategories  = 2
	potentialSavingsFactor = "0.15"
)

// Recommendation suggests where a month's spending could be reduced.
type Recommendation struct {
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Category         string          `json:"category"`
	PotentialSavings decimal.Decimal `json:"potentialSavings"`
	ActionItems      []string        `json:"actionItems"`
}

// MonthlyReport summarizes one calendar month of a user's finances.
type MonthlyReport struct {
	ReportID         string             `json:"reportId"`
	UserID           string             `json:"userId"`
	Month            string             `json:"month"`
	TotalIncome      decimal.Decimal    `json:"totalIncome"`
	TotalSpending    decimal.Decimal    `json:"totalSpending"`
	SavingsRate      float64            `json:"savingsRate"`
	Categories       []CategorySpending `json:"spendingByCategory"`
	Trends           []Trend            `json:"trends"`
	Insights         []string           `json:"insights"`
	Recommendations  []Recommendation   `json:"recommendations"`
	TransactionCount int                `json:"transactionCount"`
	GeneratedAt      time.Time          `json:"generatedAt"`
}

// ParseMonth reads a YYYY-MM month and returns its first day in UTC.
func ParseMonth(s string) (time.Time, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("month must be YYYY-MM, got %q", s)
	}
	return t.UTC(), nil
}

// BuildMonthlyReport aggregates the month starting at monthStart. previous
// holds the prior month and only feeds the trends.
func BuildMonthlyReport(userID string, monthStart time.Time, current, previous []*domain.Transaction, now time.Time) *MonthlyReport {
	month := monthStart.Format(monthLayout)
	r := &MonthlyReport{
		ReportID:         userID + "-" + month,
		UserID:           userID,
		Month:            month,
		TotalIncome:      decimal.Zero,
		TotalSpending:    decimal.Zero,
		Categories:       []CategorySpending{},
		Trends:           []Trend{},
		Recommendations:  []Recommendation{},
		TransactionCount: len(current),
		GeneratedAt:      now,
	}
	if len(current) == 0 {
		r.Insights = []string{"No transactions found for this month"}
		return r
	}

	r.TotalIncome = TotalIncome(current)
	r.TotalSpending = TotalSpending(current, "")
	r.SavingsRate = SavingsRate(r.TotalIncome, r.TotalSpending)
	r.Categories = SpendingByCategory(current)
	r.Trends = monthlyTrends(r, previous, monthStart)
	r.Insights = monthlyInsights(r)
	r.Recommendations = savingsRecommendations(r.Categories)
	return r
}

// TotalIncome sums credits.
func TotalIncome(txs []*domain.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		if tx.Amount.IsPositive() {
			total = total.Add(tx.Amount)
		}
	}
	return total
}

// SavingsRate is the share of income not spent, in percent with one
// decimal. It is zero without income.
func SavingsRate(income, spending decimal.Decimal) float64 {
	if !income.IsPositive() {
		return 0
	}
	return income.Sub(spending).Div(income).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
}

func monthlyTrends(r *MonthlyReport, previous []*domain.Transaction, monthStart time.Time) []Trend {
	prevTotal := TotalSpending(previous, "")
	if !prevTotal.IsPositive() {
		return []Trend{}
	}

	period := r.Month + " vs " + monthStart.AddDate(0, -1, 0).Format(monthLayout)
	trends := []Trend{CompareTotals(r.TotalSpending, prevTotal, "Overall Spending", period)}
	for _, c := range r.Categories {
		prev := TotalSpending(previous, c.Category)
		if prev.IsPositive() {
			trends = append(trends, CompareTotals(c.TotalAmount, prev, c.Category, period))
		}
	}
	return trends
}

func monthlyInsights(r *MonthlyReport) []string {
	var insights []string
	switch rate := r.SavingsRate; {
	case rate > 20:
		insights = append(insights, fmt.Sprintf("Excellent savings rate of %.1f%%! You're saving more than the recommended 20%%.", rate))
	case rate > 10:
		insights = append(insights, fmt.Sprintf("Good savings rate of %.1f%%. Consider increasing to 20%% for optimal financial health.", rate))
	case rate > 0:
		insights = append(insights, fmt.Sprintf("Your savings rate of %.1f%% could be improved. Aim for at least 10-20%%.", rate))
	default:
		insights = append(insights, "You're spending more than you earn this month. Review your expenses to identify areas to cut back.")
	}

	if len(r.Categories) > 0 {
		top := r.Categories[0]
		insights = append(insights, fmt.Sprintf("%s is your highest spending category at $%s (%.1f%% of total spending).",
			top.Category, top.TotalAmount.StringFixed(2), top.PercentageOfTotal))
	}

	var expenses int
	for _, c := range r.Categories {
		expenses += c.TransactionCount
	}
	insights = append(insights, fmt.Sprintf("You made %d purchases this month.", expenses))
	return insights
}

// savingsRecommendations targets the largest categories, assuming a 15%
// cut is achievable. categories must be sorted by total, largest first.
func savingsRecommendations(categories []CategorySpending) []Recommendation {
	factor := decimal.RequireFromString(potentialSavingsFactor)
	out := []Recommendation{}
	for i, c := range categories {
		if i == recommendedCategories {
			break
		}
		out = append(out, Recommendation{
			Title:            "Reduce " + c.Category + " Spending",
			Description:      fmt.Sprintf("You spent $%s on %s this month.", c.TotalAmount.StringFixed(2), c.Category),
			Category:         c.Category,
			PotentialSavings: c.TotalAmount.Mul(factor).Round(2),
			ActionItems: []string{
				"Review your " + c.Category + " expenses",
				"Set a monthly budget for " + c.Category,
				"Look for cheaper alternatives",
			},
		})
	}
	return out
}

// ExportCSV writes r as a sectioned CSV document: summary, categories,
// trends, insights and recommendations.
func ExportCSV(w io.Writer, r *MonthlyReport) error {
	cw := csv.NewWriter(w)
	money := func(d decimal.Decimal) string { return "$" + d.StringFixed(2) }
	pct := func(f float64) string { return strconv.FormatFloat(f, 'f', 1, 64) + "%" }

	records := [][]string{
		{"Monthly Financial Report"},
		{"Month", r.Month},
		{"Generated", r.GeneratedAt.UTC().Format(time.RFC3339)},
		{},
		{"Summary"},
		{"Total Income", money(r.TotalIncome)},
		{"Total Spending", money(r.TotalSpending)},
		{"Savings Rate", pct(r.SavingsRate)},
		{"Transaction Count", strconv.Itoa(r.TransactionCount)},
		{},
		{"Spending by Category"},
		{"Category", "Amount", "Percentage", "Count"},
	}
	for _, c := range r.Categories {
		records = append(records, []string{c.Category, money(c.TotalAmount), pct(c.PercentageOfTotal), strconv.Itoa(c.TransactionCount)})
	}
	records = append(records, []string{})

	if len(r.Trends) > 0 {
		records = append(records, []string{"Trends"})
		for _, t := range r.Trends {
			records = append(records, []string{t.Category, t.Direction, pct(t.PercentageChange)})
		}
		records = append(records, []string{})
	}

	records = append(records, []string{"Insights"})
	for i, insight := range r.Insights {
		records = append(records, []string{strconv.Itoa(i+1) + ".", insight})
	}
	records = append(records, []string{})

	if len(r.Recommendations) > 0 {
		records = append(records, []string{"Recommendations"})
		for i, rec := range r.Recommendations {
			records = append(records,
				[]string{strconv.Itoa(i+1) + ".", rec.Title},
				[]string{"", "Potential Savings: " + money(rec.PotentialSavings)})
			for _, action := range rec.ActionItems {
				records = append(records, []string{"", "- " + action})
			}
			records = append(records, []string{})
		}
	}

	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("ExportCSV: %w", err)
	}
	return nil
}
