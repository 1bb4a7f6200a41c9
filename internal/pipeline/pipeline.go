package pipeline

import (
	"context"
	"path"
	"strings"

	"github.com/n3xfin/finance-tracker/internal/logger"
)

// Config holds the ingestion core's limits.
type Config struct {
	MaxFileSizeBytes int64
}

// Deps are the collaborators the Ingestor calls out to. AI and Runs are optional.
type Deps struct {
	Storage ObjectStore
	Texts   TextExtractor
	Store   TransactionStore
	AI      *AIExtractor
	Runs    RunRecorder
}

// IngestRequest identifies one uploaded statement.
type IngestRequest struct {
	SourceRef  string // e.g. "gs://bucket/user-1/march.csv"
	UserID     string
	SourceFile string // original filename; defaults to the base of SourceRef
	ForceAI    bool
}

func (r IngestRequest) sourceName() string {
	if r.SourceFile != "" {
		return r.SourceFile
	}
	ref := strings.TrimPrefix(r.SourceRef, "gs://")
	return path.Base(ref)
}

// IngestResult is returned on success.
type IngestResult struct {
	TotalExtracted    int            `json:"totalExtracted"`
	Unique            int            `json:"unique"`
	Stored            int            `json:"stored"`
	DuplicatesSkipped int            `json:"duplicatesSkipped"`
	SkippedRows       int            `json:"skippedRows"`
	Tier              ExtractionTier `json:"tier"`
	IngestionRunID    string         `json:"ingestionRunId,omitempty"`
}

// Ingestor turns uploaded statements into stored, deduplicated transactions.
type Ingestor struct {
	deps     Deps
	cfg      Config
	pipeline *Pipeline
}

// NewIngestor wires the ingestion steps around deps.
func NewIngestor(deps Deps, cfg Config) *Ingestor {
	return &Ingestor{
		deps: deps,
		cfg:  cfg,
		pipeline: NewPipeline(
			&StartRunStep{runs: deps.Runs},
			&FetchSourceStep{storage: deps.Storage, maxBytes: cfg.MaxFileSizeBytes},
			&ExtractStep{texts: deps.Texts, ai: deps.AI},
			&StoreModelOutputStep{runs: deps.Runs, ai: deps.AI},
			&DeduplicateStep{dedup: NewDeduplicator(deps.Store)},
			&PersistStep{store: deps.Store},
			&MarkSuccessStep{runs: deps.Runs},
		),
	}
}

// Ingest processes a single statement stored at req.SourceRef.
func (in *Ingestor) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.UserID == "" {
		return nil, InvalidRequest("user ID is required")
	}
	if req.SourceRef == "" {
		return nil, InvalidRequest("source reference is required")
	}

	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"user_id":    req.UserID,
		"source_ref": req.SourceRef,
	})
	ctx = logger.WithContext(ctx, log)
	log.Info().Str("source_file", req.sourceName()).Bool("force_ai", req.ForceAI).Msg("Starting statement ingestion")

	state := &PipelineState{Request: req}
	if err := in.pipeline.Execute(ctx, state); err != nil {
		if in.deps.Runs != nil && state.RunID != "" {
			in.deps.Runs.MarkIngestionRunFailed(ctx, state.RunID, err)
		}
		log.Error().Err(err).Str("kind", string(KindOf(err))).Msg("Statement ingestion failed")
		return nil, err
	}

	result := state.Result()
	log.Info().
		Str("tier", string(result.Tier)).
		Int("extracted", result.TotalExtracted).
		Int("unique", result.Unique).
		Int("stored", result.Stored).
		Int("skipped_rows", result.SkippedRows).
		Msg("Statement ingestion completed")
	return result, nil
}
