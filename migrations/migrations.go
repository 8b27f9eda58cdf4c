// Package migrations embeds the versioned BigQuery schema files applied by
// cmd/migrate.
package migrations

import "embed"

// BigQuery holds bigquery/NNNN_name.sql.
//
//go:embed bigquery/*.sql
var BigQuery embed.FS
