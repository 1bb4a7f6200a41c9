package categorize

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/n3xfin/finance-tracker/internal/domain"
	"github.com/n3xfin/finance-tracker/internal/llm"
	"github.com/n3xfin/finance-tracker/internal/logger"
	"github.com/n3xfin/finance-tracker/internal/pipeline"
)

const (
	defaultBatchSize  = 50
	defaultThreshold  = 0.7
	defaultMaxTokens  = 2000
	defaultTemp       = 0.1
	defaultUserLimit  = 100
	reasonMissing     = "Missing categorization"
	reasonNoReasoning = "No reasoning provided"
)

// Config controls batching and acceptance of model answers.
type Config struct {
	BatchSize           int
	ConfidenceThreshold float64
	MaxTokens           int32
	Temperature         float32
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = defaultThreshold
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.Temperature <= 0 {
		c.Temperature = defaultTemp
	}
	return c
}

// Store is the slice of the transaction repository categorization needs.
type Store interface {
	ListUncategorizedTransactions(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error)
	UpdateTransactionCategory(ctx context.Context, userID, contentHash string, a domain.CategoryAssignment) error
}

// Summary reports the outcome of CategorizeUser.
type Summary struct {
	TotalProcessed int    `json:"totalProcessed"`
	Categorized    int    `json:"categorized"`
	Uncategorized  int    `json:"uncategorized"`
	Message        string `json:"message"`
}

// Service categorizes transactions in batches.
type Service struct {
	completer llm.Completer
	store     Store
	cfg       Config
}

// NewService creates a categorization service.
func NewService(completer llm.Completer, store Store, cfg Config) *Service {
	return &Service{completer: completer, store: store, cfg: cfg.withDefaults()}
}

// CategorizeBatch returns one assignment per transaction, in order. It never
// fails: a batch whose completion or parsing fails is assigned Other with
// zero confidence and the failure as reasoning.
func (s *Service) CategorizeBatch(ctx context.Context, txs []*domain.Transaction) []domain.CategoryAssignment {
	out := make([]domain.CategoryAssignment, 0, len(txs))
	for start := 0; start < len(txs); start += s.cfg.BatchSize {
		batch := txs[start:min(start+s.cfg.BatchSize, len(txs))]
		out = append(out, s.categorizeChunk(ctx, batch)...)
	}
	return out
}

func (s *Service) categorizeChunk(ctx context.Context, txs []*domain.Transaction) []domain.CategoryAssignment {
	log := logger.FromContext(ctx)

	raw, err := s.completer.Complete(ctx, buildPrompt(txs), s.cfg.MaxTokens, s.cfg.Temperature)
	if err != nil {
		log.Error().Err(err).Int("batch_size", len(txs)).Msg("Categorization completion failed")
		return fallback(len(txs), "Categorization failed: "+err.Error())
	}

	results, err := parseResults(raw, len(txs), s.cfg.ConfidenceThreshold)
	if err != nil {
		log.Error().Err(err).Int("response_len", len(raw)).Msg("Could not parse categorization response")
		return fallback(len(txs), "Parse error: "+err.Error())
	}
	return results
}

// CategorizeUser categorizes up to limit of a user's uncategorized transactions
// and stores the results.
func (s *Service) CategorizeUser(ctx context.Context, userID string, limit int) (*Summary, error) {
	log := logger.FromContext(ctx)
	if limit <= 0 {
		limit = defaultUserLimit
	}

	txs, err := s.store.ListUncategorizedTransactions(ctx, userID, limit)
	if err != nil {
		return nil, pipeline.ExternalError("transaction_store", fmt.Errorf("CategorizeUser: listing transactions: %w", err))
	}
	if len(txs) == 0 {
		return &Summary{Message: "No uncategorized transactions found"}, nil
	}

	results := s.CategorizeBatch(ctx, txs)

	categorized := 0
	for i, tx := range txs {
		if err := s.store.UpdateTransactionCategory(ctx, userID, tx.ContentHash(), results[i]); err != nil {
			return nil, pipeline.ExternalError("transaction_store",
				fmt.Errorf("CategorizeUser: updating transaction %s: %w", tx.ID, err))
		}
		if results[i].Category != Other {
			categorized++
		}
	}

	log.Info().
		Str("user_id", userID).
		Int("processed", len(txs)).
		Int("categorized", categorized).
		Msg("Categorized transactions")

	return &Summary{
		TotalProcessed: len(txs),
		Categorized:    categorized,
		Uncategorized:  len(txs) - categorized,
		Message:        fmt.Sprintf("Successfully categorized %d out of %d transactions", categorized, len(txs)),
	}, nil
}

type modelResult struct {
	Category   string          `json:"category"`
	Confidence json.RawMessage `json:"confidence"`
	Reasoning  string          `json:"reasoning"`
}

// parseResults normalizes the model answer to exactly n assignments.
func parseResults(raw string, n int, threshold float64) ([]domain.CategoryAssignment, error) {
	var items []modelResult
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &items); err != nil {
		return nil, fmt.Errorf("parseResults: decoding JSON array: %w", err)
	}

	out := make([]domain.CategoryAssignment, 0, n)
	for _, item := range items {
		if len(out) == n {
			break
		}

		a := domain.CategoryAssignment{
			Category:   strings.TrimSpace(item.Category),
			Confidence: parseConfidence(item.Confidence),
			Reasoning:  item.Reasoning,
		}
		if a.Category == "" {
			a.Category = Other
		}
		if a.Reasoning == "" {
			a.Reasoning = reasonNoReasoning
		}
		if !IsValid(a.Category) {
			a.Category = Other
			a.Confidence = 0
		}
		if a.Confidence < threshold {
			a.Category = Other
		}
		out = append(out, a)
	}

	for len(out) < n {
		out = append(out, domain.CategoryAssignment{Category: Other, Reasoning: reasonMissing})
	}
	return out, nil
}

func parseConfidence(raw json.RawMessage) float64 {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func fallback(n int, reason string) []domain.CategoryAssignment {
	out := make([]domain.CategoryAssignment, n)
	for i := range out {
		out[i] = domain.CategoryAssignment{Category: Other, Reasoning: reason}
	}
	return out
}
