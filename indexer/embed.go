// Package indexer holds embedded assets for the event indexer, primarily
// the ClickHouse schema migrations applied by goose.
package indexer

import "embed"

//go:embed db/clickhouse/migrations/*.sql
var ClickHouseMigrationsFS embed.FS
