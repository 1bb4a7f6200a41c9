package analytics

import (
	"context"
	"time"

	"github.com/n3xfin/finance-tracker/internal/domain"
	"github.com/n3xfin/finance-tracker/internal/logger"
	"github.com/n3xfin/finance-tracker/internal/pipeline"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	anomalyWindow = 90 * 24 * time.Hour
	trendWindow   = 30 * 24 * time.Hour
)

// Store reads a user's transactions in a half-open [start, end) time range
// and keeps their verdicts on flagged anomalies.
type Store interface {
	TransactionsBetween(ctx context.Context, userID string, start, end time.Time) ([]*domain.Transaction, error)
	SaveAnomalyFeedback(ctx context.Context, fb *domain.AnomalyFeedback) error
	// LegitimateTransactionIDs returns the transactions the user has confirmed
	// as legitimate in their latest verdict.
	LegitimateTransactionIDs(ctx context.Context, userID string) (map[string]struct{}, error)
}

// SpendingReport is the spending summary for one period.
type SpendingReport struct {
	Start      time.Time          `json:"start"`
	End        time.Time          `json:"end"`
	Total      decimal.Decimal    `json:"total"`
	Categories []CategorySpending `json:"categories"`
	Series     []SpendingPoint    `json:"series"`
}

// Service runs the analytics over stored transactions.
type Service struct {
	store Store
	cfg   Config
}

func NewService(store Store, cfg Config) *Service {
	return &Service{store: store, cfg: cfg.withDefaults()}
}

// SpendingReport loads the period and aggregates it by category and by
// the requested time bucket.
func (s *Service) SpendingReport(ctx context.Context, userID string, start, end time.Time, g Granularity) (*SpendingReport, error) {
	txs, err := s.load(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}

	return &SpendingReport{
		Start:      start,
		End:        end,
		Total:      TotalSpending(txs, ""),
		Categories: SpendingByCategory(txs),
		Series:     SpendingOverTime(txs, g),
	}, nil
}

// RecentAnomalies runs anomaly detection over the 90 days before now.
// Transactions the user has confirmed as legitimate are not reported again.
func (s *Service) RecentAnomalies(ctx context.Context, userID string, now time.Time) ([]Anomaly, error) {
	if userID == "" {
		return nil, pipeline.InvalidRequest("user_id is required")
	}

	var (
		txs        []*domain.Transaction
		legitimate map[string]struct{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = s.load(gctx, userID, now.Add(-anomalyWindow), now)
		return err
	})
	g.Go(func() error {
		var err error
		legitimate, err = s.store.LegitimateTransactionIDs(gctx, userID)
		if err != nil {
			return pipeline.ExternalError("transaction_store", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	detected := DetectAnomalies(txs, s.cfg)
	anomalies := detected[:0]
	for _, a := range detected {
		if _, ok := legitimate[a.Transaction.ID]; !ok {
			anomalies = append(anomalies, a)
		}
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("user_id", userID).
		Int("transactions", len(txs)).
		Int("anomalies", len(anomalies)).
		Int("dismissed", len(detected)-len(anomalies)).
		Msg("anomaly detection finished")
	return anomalies, nil
}

// RecordAnomalyFeedback stores the user's verdict on a flagged transaction.
func (s *Service) RecordAnomalyFeedback(ctx context.Context, fb domain.AnomalyFeedback, now time.Time) (*domain.AnomalyFeedback, error) {
	if fb.UserID == "" {
		return nil, pipeline.InvalidRequest("user_id is required")
	}
	if fb.TransactionID == "" {
		return nil, pipeline.InvalidRequest("transaction_id is required")
	}
	if fb.SubmittedAt.IsZero() {
		fb.SubmittedAt = now
	}

	if err := s.store.SaveAnomalyFeedback(ctx, &fb); err != nil {
		return nil, pipeline.ExternalError("transaction_store", err)
	}
	return &fb, nil
}

// Forecast predicts category spending for the next horizonDays from the 90
// days before now. A zero horizon means 30 days.
func (s *Service) Forecast(ctx context.Context, userID, category string, horizonDays int, now time.Time) (*Forecast, error) {
	if category == "" {
		return nil, pipeline.InvalidRequest("category is required")
	}
	if horizonDays == 0 {
		horizonDays = defaultHorizonDays
	}
	if horizonDays < 1 || horizonDays > maxHorizonDays {
		return nil, pipeline.InvalidRequest("horizon_days must be between 1 and 365")
	}

	txs, err := s.load(ctx, userID, now.AddDate(0, 0, -forecastHistoryDays), now)
	if err != nil {
		return nil, err
	}
	f := PredictSpending(txs, category, now, forecastHistoryDays, horizonDays)
	return &f, nil
}

// Alerts forecasts each recently active category and returns those on
// course to exceed the configured share of their historical average.
func (s *Service) Alerts(ctx context.Context, userID string, now time.Time) ([]Alert, error) {
	txs, err := s.load(ctx, userID, now.AddDate(0, 0, -forecastHistoryDays), now)
	if err != nil {
		return nil, err
	}
	return GenerateAlerts(userID, txs, now, s.cfg.AlertThresholdPercent), nil
}

// MonthlyReport builds the report for the month starting at monthStart.
// The month and the one before it are loaded concurrently.
func (s *Service) MonthlyReport(ctx context.Context, userID string, monthStart, now time.Time) (*MonthlyReport, error) {
	monthStart = time.Date(monthStart.Year(), monthStart.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)
	prevStart := monthStart.AddDate(0, -1, 0)

	var current, previous []*domain.Transaction
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = s.load(gctx, userID, monthStart, monthEnd)
		return err
	})
	g.Go(func() error {
		var err error
		previous, err = s.load(gctx, userID, prevStart, monthStart)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return BuildMonthlyReport(userID, monthStart, current, previous, now), nil
}

// Trend compares the last 30 days with the 30 days before them. Both
// periods are loaded concurrently.
func (s *Service) Trend(ctx context.Context, userID, category string, now time.Time) (*Trend, error) {
	currentStart := now.Add(-trendWindow)
	previousStart := currentStart.Add(-trendWindow)

	var current, previous []*domain.Transaction
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = s.load(gctx, userID, currentStart, now)
		return err
	})
	g.Go(func() error {
		var err error
		previous, err = s.load(gctx, userID, previousStart, currentStart)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tr := CompareTotals(TotalSpending(current, category), TotalSpending(previous, category),
		category, "last 30 days vs previous 30 days")
	return &tr, nil
}

func (s *Service) load(ctx context.Context, userID string, start, end time.Time) ([]*domain.Transaction, error) {
	if userID == "" {
		return nil, pipeline.InvalidRequest("user_id is required")
	}
	if !end.After(start) {
		return nil, pipeline.InvalidRequest("end must be after start")
	}

	txs, err := s.store.TransactionsBetween(ctx, userID, start, end)
	if err != nil {
		return nil, pipeline.ExternalError("transaction_store", err)
	}
	return txs, nil
}
