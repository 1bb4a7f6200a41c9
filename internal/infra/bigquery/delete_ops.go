package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// DeleteIngestionRunWithClient deletes an ingestion run and everything it
// produced, so the same statement can be ingested again from scratch.
func DeleteIngestionRunWithClient(ctx context.Context, client *bigquery.Client, t Target, userID, runID string) error {
	// Children first: transactions, model_outputs, then the run itself.
	ownedRun := fmt.Sprintf(
		"ingestion_run_id IN (SELECT ingestion_run_id FROM %s WHERE user_id = @user_id AND ingestion_run_id = @ingestion_run_id)",
		t.Table(ingestionRunsTable))
	steps := []struct {
		table string
		where string
	}{
		{transactionsTable, "user_id = @user_id AND ingestion_run_id = @ingestion_run_id"},
		{modelOutputsTable, ownedRun},
		{ingestionRunsTable, "user_id = @user_id AND ingestion_run_id = @ingestion_run_id"},
	}

	for _, s := range steps {
		q := client.Query(fmt.Sprintf(`DELETE FROM %s WHERE %s`, t.Table(s.table), s.where))
		q.Parameters = []bigquery.QueryParameter{
			{Name: "user_id", Value: userID},
			{Name: "ingestion_run_id", Value: runID},
		}
		if err := runDML(ctx, q, "DeleteIngestionRun "+s.table); err != nil {
			return err
		}
	}

	return nil
}
