// Package migrations embeds the numbered BigQuery schema migrations.
package migrations

import "embed"

// BigQuery holds bigquery/NNNN_name.sql with {{PROJECT_ID}} and
// {{DATASET_ID}} placeholders.
//
//go:embed bigquery/*.sql
var BigQuery embed.FS
