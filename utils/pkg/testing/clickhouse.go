package wstesting

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wellspringlabs/wellspring/indexer/pkg/clickhouse"
	clickhousetesting "github.com/wellspringlabs/wellspring/indexer/pkg/clickhouse/testing"
)

// ClientInfo holds a test client and its database name.
type ClientInfo struct {
	Client   clickhouse.Client
	Database string
}

// NewClickHouseClient creates a migrated per-test client against the shared
// container.
func NewClickHouseClient(t *testing.T, db *clickhousetesting.DB) clickhouse.Client {
	info := NewClickHouseClientWithInfo(t, db)
	return info.Client
}

// NewClickHouseClientWithInfo creates a test client and returns info including
// the database name.
func NewClickHouseClientWithInfo(t *testing.T, db *clickhousetesting.DB) *ClientInfo {
	info, err := clickhousetesting.NewTestClientWithInfo(t, db)
	require.NoError(t, err)

	log := NewLogger()
	err = clickhouse.RunMigrations(t.Context(), log, db.MigrationConfig(info.Database))
	require.NoError(t, err)

	return &ClientInfo{
		Client:   info.Client,
		Database: info.Database,
	}
}
