package pipeline

import (
	"context"

	"github.com/n3xfin/finance-tracker/internal/domain"
)

// ObjectStore retrieves uploaded statement bytes.
type ObjectStore interface {
	FetchRawBytes(ctx context.Context, sourceRef string) ([]byte, error)
}

// TextExtractor turns a non-delimited document into plain text.
type TextExtractor interface {
	ExtractText(ctx context.Context, filename string, data []byte) (string, error)
}

// HashStore returns the identity hashes of a user's stored transactions.
type HashStore interface {
	ExistingTransactionHashes(ctx context.Context, userID string) (map[string]struct{}, error)
}

// TransactionStore is the persistence boundary of the ingestion core.
// PersistTransactions is best-effort: it returns how many rows were stored
// even when it also returns an error for the rest.
type TransactionStore interface {
	HashStore
	PersistTransactions(ctx context.Context, txs []*domain.Transaction) (int, error)
}

// RunRecorder keeps an audit trail of ingestion runs. All methods are
// best-effort from the pipeline's point of view.
type RunRecorder interface {
	StartIngestionRun(ctx context.Context, run *RunInfo) (string, error)
	MarkIngestionRunFailed(ctx context.Context, runID string, runErr error)
	MarkIngestionRunSucceeded(ctx context.Context, runID string, result *IngestResult) error
	StoreModelOutput(ctx context.Context, runID, modelName, rawResponse string) error
}

// RunInfo describes an ingestion run at start time.
type RunInfo struct {
	UserID     string
	SourceRef  string
	SourceFile string
	ForceAI    bool
}

type runIDKey struct{}

// WithIngestionRunID returns a context carrying the current ingestion run ID,
// so stores can link persisted rows to their run.
func WithIngestionRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey{}, runID)
}

// IngestionRunIDFromContext returns the run ID set by WithIngestionRunID, or "".
func IngestionRunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
