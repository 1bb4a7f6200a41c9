package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/n3xfin/finance-tracker/internal/logger"
	"github.com/n3xfin/finance-tracker/internal/pipeline"
)

const (
	ingestionRunsTable = "ingestion_runs"
	maxErrorMessageLen = 2000

	runStatusRunning = "RUNNING"
	runStatusSuccess = "SUCCESS"
	runStatusFailed  = "FAILED"
)

// StartIngestionRunWithClient inserts a new ingestion run with status=RUNNING
// and returns the generated ingestion_run_id. DML is used instead of
// streaming so the row can be updated right away.
func StartIngestionRunWithClient(ctx context.Context, client *bigquery.Client, t Target, run *pipeline.RunInfo) (string, error) {
	runID := uuid.NewString()

	q := client.Query(fmt.Sprintf(`
		INSERT %s (
			ingestion_run_id,
			user_id,
			source_ref,
			source_file,
			started_ts,
			status,
			force_ai
		)
		VALUES (
			@ingestion_run_id,
			@user_id,
			@source_ref,
			@source_file,
			@started_ts,
			@status,
			@force_ai
		)
	`, t.Table(ingestionRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "ingestion_run_id", Value: runID},
		{Name: "user_id", Value: run.UserID},
		{Name: "source_ref", Value: run.SourceRef},
		{Name: "source_file", Value: run.SourceFile},
		{Name: "started_ts", Value: time.Now().UTC()},
		{Name: "status", Value: runStatusRunning},
		{Name: "force_ai", Value: run.ForceAI},
	}

	if err := runDML(ctx, q, "StartIngestionRun"); err != nil {
		return "", err
	}

	return runID, nil
}

// MarkIngestionRunFailedWithClient sets status=FAILED, finished_ts and the
// error code and message. Failures are logged, never returned.
func MarkIngestionRunFailedWithClient(ctx context.Context, client *bigquery.Client, t Target, runID string, runErr error) {
	log := logger.FromContext(ctx)

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		if len(errMsg) > maxErrorMessageLen {
			errMsg = errMsg[:maxErrorMessageLen]
		}
	}
	code := string(pipeline.KindOf(runErr))
	if code == "" {
		code = "INTERNAL"
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_code = @error_code,
		    error_message = @error_message
		WHERE ingestion_run_id = @ingestion_run_id
	`, t.Table(ingestionRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: runStatusFailed},
		{Name: "finished_ts", Value: time.Now().UTC()},
		{Name: "error_code", Value: code},
		{Name: "error_message", Value: errMsg},
		{Name: "ingestion_run_id", Value: runID},
	}

	if err := runDML(ctx, q, "MarkIngestionRunFailed"); err != nil {
		log.Error().
			Err(err).
			Str("ingestion_run_id", runID).
			Msg("MarkIngestionRunFailed: update failed")
	}
}

// MarkIngestionRunSucceededWithClient sets status=SUCCESS, finished_ts and the result counts.
func MarkIngestionRunSucceededWithClient(ctx context.Context, client *bigquery.Client, t Target, runID string, result *pipeline.IngestResult) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    tier = @tier,
		    total_extracted = @total_extracted,
		    stored_count = @stored_count,
		    duplicate_count = @duplicate_count,
		    skipped_rows = @skipped_rows,
		    error_code = NULL,
		    error_message = NULL
		WHERE ingestion_run_id = @ingestion_run_id
	`, t.Table(ingestionRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: runStatusSuccess},
		{Name: "finished_ts", Value: time.Now().UTC()},
		{Name: "tier", Value: string(result.Tier)},
		{Name: "total_extracted", Value: result.TotalExtracted},
		{Name: "stored_count", Value: result.Stored},
		{Name: "duplicate_count", Value: result.DuplicatesSkipped},
		{Name: "skipped_rows", Value: result.SkippedRows},
		{Name: "ingestion_run_id", Value: runID},
	}

	return runDML(ctx, q, "MarkIngestionRunSucceeded")
}
