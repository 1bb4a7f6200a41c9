package pipeline

import (
	"context"

	"github.com/n3xfin/finance-tracker/internal/domain"
	"github.com/n3xfin/finance-tracker/internal/logger"
)

// Deduplicator filters out transactions already stored for a user.
type Deduplicator struct {
	store HashStore
}

// NewDeduplicator creates a deduplicator backed by store.
func NewDeduplicator(store HashStore) *Deduplicator {
	return &Deduplicator{store: store}
}

// FilterNew returns the candidates whose content hash is neither stored nor
// seen earlier in the same batch, preserving order. If the store cannot be
// reached every candidate is treated as new.
func (d *Deduplicator) FilterNew(ctx context.Context, candidates []*domain.Transaction, userID string) []*domain.Transaction {
	log := logger.FromContext(ctx)

	existing, err := d.store.ExistingTransactionHashes(ctx, userID)
	if err != nil {
		log.Warn().
			Err(err).
			Str("user_id", userID).
			Msg("Could not load existing transaction hashes, treating all candidates as new")
		existing = nil
	}

	seen := make(map[string]struct{}, len(existing)+len(candidates))
	for h := range existing {
		seen[h] = struct{}{}
	}

	unique := make([]*domain.Transaction, 0, len(candidates))
	for _, tx := range candidates {
		h := tx.ContentHash()
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		unique = append(unique, tx)
	}

	return unique
}
