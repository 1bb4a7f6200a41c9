package categorize

import (
	"context"
	"errors"
	"fmt"

	"github.com/n3xfin/finance-tracker/internal/logger"
)

// UserLister finds users that still have uncategorized transactions.
type UserLister interface {
	UsersWithUncategorizedTransactions(ctx context.Context, limit int) ([]string, error)
}

// UserCategorizer categorizes one user's backlog.
type UserCategorizer interface {
	CategorizeUser(ctx context.Context, userID string, limit int) (*Summary, error)
}

// Sweeper runs CategorizeUser for every user with a backlog.
type Sweeper struct {
	users       UserLister
	categorizer UserCategorizer
	maxUsers    int
	perUser     int
}

// NewSweeper creates a sweeper visiting at most maxUsers users per run and
// categorizing at most perUser transactions for each.
func NewSweeper(users UserLister, categorizer UserCategorizer, maxUsers, perUser int) *Sweeper {
	if maxUsers <= 0 {
		maxUsers = 100
	}
	if perUser <= 0 {
		perUser = defaultUserLimit
	}
	return &Sweeper{users: users, categorizer: categorizer, maxUsers: maxUsers, perUser: perUser}
}

// SweepResult totals one sweep.
type SweepResult struct {
	Users       int
	Processed   int
	Categorized int
	Failed      int
}

// Run categorizes each listed user in turn. A failing user is logged and
// skipped; the joined failures are returned alongside the totals.
func (s *Sweeper) Run(ctx context.Context) (SweepResult, error) {
	log := logger.FromContext(ctx)

	var res SweepResult
	userIDs, err := s.users.UsersWithUncategorizedTransactions(ctx, s.maxUsers)
	if err != nil {
		return res, fmt.Errorf("Run: listing users: %w", err)
	}

	var errs []error
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res.Users++

		summary, err := s.categorizer.CategorizeUser(ctx, userID, s.perUser)
		if err != nil {
			res.Failed++
			log.Warn().Err(err).Str("user_id", userID).Msg("categorization sweep failed for user")
			errs = append(errs, fmt.Errorf("user %s: %w", userID, err))
			continue
		}
		res.Processed += summary.TotalProcessed
		res.Categorized += summary.Categorized
	}

	log.Info().
		Int("users", res.Users).
		Int("processed", res.Processed).
		Int("categorized", res.Categorized).
		Int("failed", res.Failed).
		Msg("categorization sweep finished")

	return res, errors.Join(errs...)
}
