// Package app wires configuration into the concrete services shared by the
// binaries under cmd/.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/n3xfin/finance-tracker/internal/analytics"
	"github.com/n3xfin/finance-tracker/internal/categorize"
	"github.com/n3xfin/finance-tracker/internal/config"
	"github.com/n3xfin/finance-tracker/internal/doctext"
	"github.com/n3xfin/finance-tracker/internal/gcsuploader"
	infraBQ "github.com/n3xfin/finance-tracker/internal/infra/bigquery"
	"github.com/n3xfin/finance-tracker/internal/llm"
	"github.com/n3xfin/finance-tracker/internal/pipeline"
	"github.com/rs/zerolog"
)

// App holds the services built from one Config. Completer, AI and
// Categorizer are nil when no model is configured.
type App struct {
	Config      *config.Config
	Repo        *infraBQ.BigQueryRepository
	Storage     *gcsuploader.GCSStorageService
	Completer   llm.Completer
	AI          *pipeline.AIExtractor
	Ingestor    *pipeline.Ingestor
	Categorizer *categorize.Service
	Analytics   *analytics.Service
}

// New connects to BigQuery, Cloud Storage and the model provider and builds
// the ingestion, categorization and analytics services on top of them.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("New: invalid config: %w", err)
	}

	repo, err := infraBQ.NewBigQueryRepository(ctx, cfg.ProjectID, cfg.Dataset, cfg.InsertBatchSize)
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}

	storage, err := gcsuploader.NewGCSStorageService(ctx)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("New: %w", err)
	}

	a := &App{
		Config:  cfg,
		Repo:    repo,
		Storage: storage,
	}

	if cfg.ModelName != "" {
		gemini, err := llm.NewGeminiCompleter(ctx, cfg.ModelName)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("New: %w", err)
		}
		a.Completer = llm.NewRateLimitedCompleter(gemini, cfg.LLMRatePerSec, cfg.LLMBurst)
		a.AI = pipeline.NewAIExtractor(a.Completer, pipeline.AIConfig{
			ModelName:     cfg.ModelName,
			MaxInputChars: cfg.AIMaxInputChars,
			MaxTokens:     cfg.AIMaxTokens,
			Temperature:   cfg.AITemperature,
			ReferenceYear: cfg.ReferenceYear,
			Timeout:       cfg.LLMTimeout,
		})
		a.Categorizer = categorize.NewService(a.Completer, repo, categorize.Config{
			BatchSize:           cfg.CategorizationBatchSize,
			ConfidenceThreshold: cfg.CategoryConfidenceThreshold,
		})
	} else {
		log.Warn().Msg("GEMINI_MODEL is empty: AI extraction and categorization are disabled")
	}

	a.Ingestor = pipeline.NewIngestor(pipeline.Deps{
		Storage: storage,
		Texts:   doctext.NewExtractor(),
		Store:   repo,
		AI:      a.AI,
		Runs:    repo,
	}, pipeline.Config{MaxFileSizeBytes: cfg.MaxFileSizeBytes})

	a.Analytics = analytics.NewService(repo, analytics.Config{
		AnomalyThresholdStdDev: cfg.AnomalyThresholdStdDev,
		AlertThresholdPercent:  cfg.AlertThresholdPercent,
	})

	log.Info().
		Str("project", cfg.ProjectID).
		Str("dataset", cfg.Dataset).
		Str("model", cfg.ModelName).
		Msg("services initialized")

	return a, nil
}

// Close releases the storage and BigQuery clients.
func (a *App) Close() error {
	var errs []error
	if a.Storage != nil {
		errs = append(errs, a.Storage.Close())
	}
	if a.Repo != nil {
		errs = append(errs, a.Repo.Close())
	}
	return errors.Join(errs...)
}
