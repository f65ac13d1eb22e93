// Package admin implements the operational commands behind the admin CLI:
// schema migrations and destructive resets for both stores.
package admin

import (
	"log/slog"

	apiconfig "github.com/wellspringlabs/wellspring/api/config"
	"github.com/wellspringlabs/wellspring/pool/pkg/store/pgstore"
)

// PgMigrateUp runs all pending PostgreSQL migrations
func PgMigrateUp(log *slog.Logger, cfg apiconfig.PgConfig) error {
	return pgstore.Migrate(log, cfg.ConnString())
}

// PgMigrateDown rolls back the last PostgreSQL migration
func PgMigrateDown(log *slog.Logger, cfg apiconfig.PgConfig) error {
	return pgstore.MigrateDown(log, cfg.ConnString())
}

// PgMigrateStatus shows the status of all PostgreSQL migrations
func PgMigrateStatus(log *slog.Logger, cfg apiconfig.PgConfig) error {
	return pgstore.MigrateStatus(log, cfg.ConnString())
}
