package categorize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/n3xfin/finance-tracker/internal/domain"
	"github.com/n3xfin/finance-tracker/internal/pipeline"
	"github.com/shopspring/decimal"
)

type MockCompleter struct {
	CompleteFunc func(ctx context.Context, prompt string) (string, error)
	Prompts      []string
}

func (m *MockCompleter) Complete(ctx context.Context, prompt string, maxTokens int32, temperature float32) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	return m.CompleteFunc(ctx, prompt)
}

type MockStore struct {
	ListUncategorizedTransactionsFunc func(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error)
	UpdateTransactionCategoryFunc     func(ctx context.Context, userID, contentHash string, a domain.CategoryAssignment) error
	Updates                           map[string]domain.CategoryAssignment
}

func (m *MockStore) ListUncategorizedTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
	return m.ListUncategorizedTransactionsFunc(ctx, userID, limit)
}

func (m *MockStore) UpdateTransactionCategory(ctx context.Context, userID, contentHash string, a domain.CategoryAssignment) error {
	if m.Updates == nil {
		m.Updates = make(map[string]domain.CategoryAssignment)
	}
	m.Updates[contentHash] = a
	if m.UpdateTransactionCategoryFunc != nil {
		return m.UpdateTransactionCategoryFunc(ctx, userID, contentHash, a)
	}
	return nil
}

func sampleTxs(n int) []*domain.Transaction {
	txs := make([]*domain.Transaction, n)
	for i := range txs {
		txs[i] = &domain.Transaction{
			ID:          fmt.Sprintf("tx-%d", i),
			UserID:      "u1",
			Date:        time.Date(2024, 3, 1+i%28, 0, 0, 0, 0, time.UTC),
			Description: fmt.Sprintf("Merchant %d", i),
			Amount:      decimal.NewFromInt(int64(-10 - i)),
		}
	}
	return txs
}

func TestParseResults(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		n       int
		want    []string
		wantErr bool
	}{
		{
			name: "valid answers",
			raw:  `[{"category":"Dining","confidence":0.95,"reasoning":"Coffee"},{"category":"Housing","confidence":0.9,"reasoning":"Rent"}]`,
			n:    2,
			want: []string{Dining, Housing},
		},
		{
			name: "unknown category becomes Other",
			raw:  `[{"category":"Pets","confidence":0.99}]`,
			n:    1,
			want: []string{Other},
		},
		{
			name: "low confidence becomes Other",
			raw:  `[{"category":"Shopping","confidence":0.5}]`,
			n:    1,
			want: []string{Other},
		},
		{
			name: "missing results are padded",
			raw:  "```json\n[{\"category\":\"Income\",\"confidence\":\"0.8\"}]\n```",
			n:    3,
			want: []string{Income, Other, Other},
		},
		{
			name: "extra results are truncated",
			raw:  `[{"category":"Dining","confidence":1},{"category":"Dining","confidence":1}]`,
			n:    1,
			want: []string{Dining},
		},
		{
			name:    "not json",
			raw:     "Sorry, I cannot help with that.",
			n:       1,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseResults(tt.raw, tt.n, 0.7)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != tt.n {
				t.Fatalf("got %d results, want %d", len(got), tt.n)
			}
			for i, w := range tt.want {
				if got[i].Category != w {
					t.Errorf("[%d] Category = %q, want %q", i, got[i].Category, w)
				}
			}
		})
	}
}

func TestParseResults_UnknownCategoryZeroConfidence(t *testing.T) {
	got, err := parseResults(`[{"category":"Pets","confidence":0.99,"reasoning":"Vet"}]`, 1, 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", got[0].Confidence)
	}
}

func TestCategorizeBatch_Batches(t *testing.T) {
	completer := &MockCompleter{CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
		n := strings.Count(prompt, "Description:")
		items := make([]string, n)
		for i := range items {
			items[i] = `{"category":"Shopping","confidence":0.9,"reasoning":"store"}`
		}
		return "[" + strings.Join(items, ",") + "]", nil
	}}
	svc := NewService(completer, nil, Config{BatchSize: 2})

	got := svc.CategorizeBatch(context.Background(), sampleTxs(5))
	if len(got) != 5 {
		t.Fatalf("got %d results, want 5", len(got))
	}
	if len(completer.Prompts) != 3 {
		t.Errorf("completer called %d times, want 3", len(completer.Prompts))
	}
	for i, a := range got {
		if a.Category != Shopping {
			t.Errorf("[%d] Category = %q", i, a.Category)
		}
	}
}

func TestCategorizeBatch_CompletionFailure(t *testing.T) {
	completer := &MockCompleter{CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("rate limited")
	}}
	svc := NewService(completer, nil, Config{})

	got := svc.CategorizeBatch(context.Background(), sampleTxs(3))
	if len(got) != 3 {
		t.Fatalf("got %d results, want 3", len(got))
	}
	for _, a := range got {
		if a.Category != Other || a.Confidence != 0 || !strings.Contains(a.Reasoning, "rate limited") {
			t.Errorf("unexpected fallback %+v", a)
		}
	}
}

func TestCategorizeUser(t *testing.T) {
	txs := sampleTxs(2)
	store := &MockStore{
		ListUncategorizedTransactionsFunc: func(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
			if limit != 100 {
				t.Errorf("limit = %d, want default 100", limit)
			}
			return txs, nil
		},
	}
	completer := &MockCompleter{CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
		return `[{"category":"Dining","confidence":0.95},{"category":"Dining","confidence":0.2}]`, nil
	}}
	svc := NewService(completer, store, Config{})

	sum, err := svc.CategorizeUser(context.Background(), "u1", 0)
	if err != nil {
		t.Fatalf("CategorizeUser() error: %v", err)
	}
	if sum.TotalProcessed != 2 || sum.Categorized != 1 || sum.Uncategorized != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if got := store.Updates[txs[0].ContentHash()]; got.Category != Dining {
		t.Errorf("first update = %+v", got)
	}
	if got := store.Updates[txs[1].ContentHash()]; got.Category != Other {
		t.Errorf("second update = %+v", got)
	}
}

func TestCategorizeUser_NothingToDo(t *testing.T) {
	store := &MockStore{
		ListUncategorizedTransactionsFunc: func(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
			return nil, nil
		},
	}
	svc := NewService(&MockCompleter{}, store, Config{})

	sum, err := svc.CategorizeUser(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("CategorizeUser() error: %v", err)
	}
	if sum.TotalProcessed != 0 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestCategorizeUser_UpdateFailure(t *testing.T) {
	store := &MockStore{
		ListUncategorizedTransactionsFunc: func(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
			return sampleTxs(1), nil
		},
		UpdateTransactionCategoryFunc: func(ctx context.Context, userID, contentHash string, a domain.CategoryAssignment) error {
			return errors.New("streaming buffer")
		},
	}
	completer := &MockCompleter{CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
		return `[{"category":"Dining","confidence":0.95}]`, nil
	}}
	svc := NewService(completer, store, Config{})

	_, err := svc.CategorizeUser(context.Background(), "u1", 10)
	if !errors.Is(err, pipeline.ErrExternalService) {
		t.Fatalf("error = %v, want EXTERNAL_SERVICE_ERROR", err)
	}
}

func TestBuildPrompt(t *testing.T) {
	txs := sampleTxs(1)
	p := buildPrompt(txs)
	for _, want := range []string{"Merchant 0", "10.00 (expense)", "2024-03-01", "Savings"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
