package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/n3xfin/finance-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

type stubHashStore struct {
	hashes map[string]struct{}
	err    error
}

func (s *stubHashStore) ExistingTransactionHashes(ctx context.Context, userID string) (map[string]struct{}, error) {
	return s.hashes, s.err
}

func mkTx(date, desc, amount string) *domain.Transaction {
	d, _ := time.Parse("2006-01-02", date)
	return &domain.Transaction{Date: d, Description: desc, Amount: decimal.RequireFromString(amount)}
}

func TestDeduplicator_FilterNew(t *testing.T) {
	stored := mkTx("2024-01-15", "Grocery Store", "-45.50")
	store := &stubHashStore{hashes: map[string]struct{}{stored.ContentHash(): {}}}
	d := NewDeduplicator(store)

	candidates := []*domain.Transaction{
		mkTx("2024-01-15", "GROCERY STORE ", "-45.5"),
		mkTx("2024-01-16", "Coffee", "-3.00"),
		mkTx("2024-01-16", "coffee", "-3"),
		mkTx("2024-01-17", "Salary", "2000"),
	}

	got := d.FilterNew(context.Background(), candidates, "user-1")
	if len(got) != 2 {
		t.Fatalf("got %d unique, want 2", len(got))
	}
	if got[0] != candidates[1] || got[1] != candidates[3] {
		t.Errorf("unexpected survivors or order: %v", got)
	}
	if len(store.hashes) != 1 {
		t.Errorf("store hashes were mutated: %d entries", len(store.hashes))
	}
}

func TestDeduplicator_StoreErrorTreatsAllAsNew(t *testing.T) {
	d := NewDeduplicator(&stubHashStore{err: errors.New("bigquery unavailable")})

	candidates := []*domain.Transaction{
		mkTx("2024-01-15", "Grocery Store", "-45.50"),
		mkTx("2024-01-15", "Grocery Store", "-45.50"),
	}
	got := d.FilterNew(context.Background(), candidates, "user-1")
	if len(got) != 1 {
		t.Errorf("got %d unique, want 1 (within-batch duplicates still dropped)", len(got))
	}
}
