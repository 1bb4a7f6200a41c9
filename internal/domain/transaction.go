package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UncategorizedCategory is the category of a transaction that has not been
// through categorization yet.
const UncategorizedCategory = "Uncategorized"

// Transaction is one normalized statement entry.
// ID is random and never derived from content; the content hash is the
// identity used for duplicate detection and storage keys.
type Transaction struct {
	ID          string
	UserID      string
	Date        time.Time        // always UTC
	Description string           // trimmed, non-empty
	Amount      decimal.Decimal  // negative = debit, positive = credit
	Balance     *decimal.Decimal // nil when the statement carries no balance

	Category           string
	CategoryConfidence float64

	SourceFile string
	RawData    json.RawMessage
	CreatedAt  time.Time
}

// ContentHash returns the identity hash of the transaction.
func (t *Transaction) ContentHash() string {
	return ContentHash(t.Date, t.Description, t.Amount)
}

// IsExpense reports whether the transaction moved money out of the account.
func (t *Transaction) IsExpense() bool {
	return t.Amount.IsNegative()
}

// CategoryOrDefault returns the category, or UncategorizedCategory when unset.
func (t *Transaction) CategoryOrDefault() string {
	if t.Category == "" {
		return UncategorizedCategory
	}
	return t.Category
}

// ContentHash computes the SHA-256 hex digest of the normalized
// (calendar day, lower-cased trimmed description, amount to cents) triple.
func ContentHash(date time.Time, description string, amount decimal.Decimal) string {
	key := HashKey(date, description, amount)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// HashKey is the pre-digest form of ContentHash, e.g. "2024-02-20|coffee shop|-5.50".
func HashKey(date time.Time, description string, amount decimal.Decimal) string {
	day := date.UTC().Format("2006-01-02")
	desc := strings.ToLower(strings.TrimSpace(description))
	return day + "|" + desc + "|" + amount.StringFixed(2)
}

// CategoryAssignment is the outcome of categorizing one transaction.
type CategoryAssignment struct {
	Category   string
	Confidence float64
	Reasoning  string
}

// AnomalyFeedback is a user's verdict on a transaction flagged as unusual.
// The most recent verdict per transaction wins.
type AnomalyFeedback struct {
	UserID        string    `json:"userId"`
	TransactionID string    `json:"transactionId"`
	IsLegitimate  bool      `json:"isLegitimate"`
	Notes         string    `json:"notes,omitempty"`
	SubmittedAt   time.Time `json:"submittedAt"`
}
