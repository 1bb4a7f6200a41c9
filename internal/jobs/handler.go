package jobs

import (
	"context"
	"fmt"

	"github.com/n3xfin/finance-tracker/internal/logger"
	"github.com/n3xfin/finance-tracker/internal/pipeline"
)

// Ingester runs one statement ingestion.
type Ingester interface {
	Ingest(ctx context.Context, req pipeline.IngestRequest) (*pipeline.IngestResult, error)
}

// NewIngestHandler returns a JobHandler that ingests IngestStatementJobs
// and records the counts on the job.
func NewIngestHandler(ingester Ingester) JobHandler {
	return func(ctx context.Context, job Job) error {
		ingestJob, ok := job.(*IngestStatementJob)
		if !ok {
			return fmt.Errorf("NewIngestHandler: unexpected job type: %T", job)
		}

		log := logger.FromContext(ctx)
		log.Info().
			Str("source_ref", ingestJob.SourceRef).
			Int("attempt", ingestJob.RetryCount+1).
			Msg("processing ingest job")

		res, err := ingester.Ingest(ctx, pipeline.IngestRequest{
			SourceRef:  ingestJob.SourceRef,
			UserID:     ingestJob.UserID,
			SourceFile: ingestJob.SourceFile,
			ForceAI:    ingestJob.ForceAI,
		})
		if err != nil {
			return err
		}

		ingestJob.Result = OutcomeFromResult(res)
		log.Info().
			Int("stored", res.Stored).
			Int("duplicates_skipped", res.DuplicatesSkipped).
			Msg("ingest job completed")
		return nil
	}
}

// OutcomeFromResult copies the counts of an ingestion result.
func OutcomeFromResult(res *pipeline.IngestResult) *IngestOutcome {
	if res == nil {
		return nil
	}
	return &IngestOutcome{
		IngestionRunID:    res.IngestionRunID,
		Tier:              string(res.Tier),
		TotalExtracted:    res.TotalExtracted,
		Unique:            res.Unique,
		Stored:            res.Stored,
		DuplicatesSkipped: res.DuplicatesSkipped,
		SkippedRows:       res.SkippedRows,
	}
}
