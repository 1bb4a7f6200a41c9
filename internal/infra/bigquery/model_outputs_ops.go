package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
)

const modelOutputsTable = "model_outputs"

// InsertModelOutputWithClient stores one raw model response. Uses DML INSERT
// to avoid streaming buffer issues when the run is cleaned up later.
func InsertModelOutputWithClient(ctx context.Context, client *bigquery.Client, t Target, row *ModelOutputRow) error {
	if row.OutputID == "" {
		row.OutputID = uuid.NewString()
	}
	if row.CreatedTS.IsZero() {
		row.CreatedTS = time.Now().UTC()
	}

	q := client.Query(fmt.Sprintf(`
		INSERT INTO %s (
			output_id, ingestion_run_id, model_name,
			raw_response, notes, created_ts
		)
		VALUES (
			@output_id, @ingestion_run_id, @model_name,
			@raw_response, @notes, @created_ts
		)
	`, t.Table(modelOutputsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "output_id", Value: row.OutputID},
		{Name: "ingestion_run_id", Value: row.IngestionRunID},
		{Name: "model_name", Value: row.ModelName},
		{Name: "raw_response", Value: row.RawResponse},
		{Name: "notes", Value: row.Notes},
		{Name: "created_ts", Value: row.CreatedTS},
	}

	return runDML(ctx, q, "InsertModelOutput")
}
