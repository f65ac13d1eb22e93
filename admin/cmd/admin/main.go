package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/wellspringlabs/wellspring/admin/internal/admin"
	apiconfig "github.com/wellspringlabs/wellspring/api/config"
	"github.com/wellspringlabs/wellspring/indexer/pkg/clickhouse"
	"github.com/wellspringlabs/wellspring/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// ClickHouse configuration
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", "default", "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")

	// Commands
	pgMigrateFlag := flag.Bool("pg-migrate", false, "Run PostgreSQL pool schema migrations (connection from POSTGRES_* env vars)")
	pgMigrateDownFlag := flag.Bool("pg-migrate-down", false, "Roll back the most recent PostgreSQL migration")
	pgMigrateStatusFlag := flag.Bool("pg-migrate-status", false, "Show PostgreSQL migration status")
	pgResetFlag := flag.Bool("pg-reset", false, "Drop all wellspring tables from PostgreSQL and re-run migrations")
	chMigrateFlag := flag.Bool("ch-migrate", false, "Run ClickHouse event schema migrations using goose")
	chMigrateStatusFlag := flag.Bool("ch-migrate-status", false, "Show ClickHouse migration status")
	chResetFlag := flag.Bool("ch-reset", false, "Drop all wellspring tables from ClickHouse and re-run migrations")
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show what would be done without actually executing")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")

	flag.Parse()

	// Optional .env for local development.
	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	// Override ClickHouse flags with environment variables if set
	if envClickhouseAddr := os.Getenv("CLICKHOUSE_ADDR_TCP"); envClickhouseAddr != "" {
		*clickhouseAddrFlag = envClickhouseAddr
	}
	if envClickhouseDatabase := os.Getenv("CLICKHOUSE_DATABASE"); envClickhouseDatabase != "" {
		*clickhouseDatabaseFlag = envClickhouseDatabase
	}
	if envClickhouseUsername := os.Getenv("CLICKHOUSE_USERNAME"); envClickhouseUsername != "" {
		*clickhouseUsernameFlag = envClickhouseUsername
	}
	if envClickhousePassword := os.Getenv("CLICKHOUSE_PASSWORD"); envClickhousePassword != "" {
		*clickhousePasswordFlag = envClickhousePassword
	}
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		*clickhouseSecureFlag = true
	}

	// PostgreSQL commands
	if *pgMigrateFlag || *pgMigrateDownFlag || *pgMigrateStatusFlag || *pgResetFlag {
		pgCfg, err := apiconfig.LoadPgConfigFromEnv()
		if err != nil {
			return err
		}

		switch {
		case *pgMigrateFlag:
			return admin.PgMigrateUp(log, pgCfg)
		case *pgMigrateDownFlag:
			return admin.PgMigrateDown(log, pgCfg)
		case *pgMigrateStatusFlag:
			return admin.PgMigrateStatus(log, pgCfg)
		case *pgResetFlag:
			return admin.PgReset(log, pgCfg, *dryRunFlag, *yesFlag)
		}
	}

	// ClickHouse commands
	if *chMigrateFlag || *chMigrateStatusFlag || *chResetFlag {
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for ClickHouse commands")
		}
		chCfg := clickhouse.MigrationConfig{
			Addr:     *clickhouseAddrFlag,
			Database: *clickhouseDatabaseFlag,
			Username: *clickhouseUsernameFlag,
			Password: *clickhousePasswordFlag,
			Secure:   *clickhouseSecureFlag,
		}

		switch {
		case *chMigrateFlag:
			return clickhouse.RunMigrations(context.Background(), log, chCfg)
		case *chResetFlag:
			return admin.ChReset(log, chCfg, *dryRunFlag, *yesFlag)
		}
		return clickhouse.MigrationStatus(context.Background(), log, chCfg)
	}

	flag.Usage()
	return nil
}
