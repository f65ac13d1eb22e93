// Package clickhousetesting starts a throwaway ClickHouse container and
// hands out per-test databases so tests can run against a real server
// without interfering with each other.
package clickhousetesting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	tcch "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"github.com/wellspringlabs/wellspring/indexer/pkg/clickhouse"
)

const dialAttempts = 3

type DBConfig struct {
	Database       string
	Username       string
	Password       string
	Port           string
	ContainerImage string
}

func (cfg *DBConfig) Validate() error {
	if cfg.Database == "" {
		cfg.Database = "test"
	}
	if cfg.Username == "" {
		cfg.Username = "default"
	}
	if cfg.Password == "" {
		cfg.Password = "password"
	}
	if cfg.Port == "" {
		cfg.Port = "9000"
	}
	if cfg.ContainerImage == "" {
		cfg.ContainerImage = "clickhouse/clickhouse-server:latest"
	}
	return nil
}

// DB is a shared ClickHouse container, typically started once in TestMain.
// Each call to NewTestClient carves out its own randomly named database.
type DB struct {
	log       *slog.Logger
	cfg       *DBConfig
	addr      string
	container *tcch.ClickHouseContainer
}

// NewDB starts a ClickHouse container and waits for it to accept
// connections. Container start is retried because the Docker daemon can
// flake under parallel package runs.
func NewDB(ctx context.Context, log *slog.Logger, cfg *DBConfig) (*DB, error) {
	if cfg == nil {
		cfg = &DBConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate DB config: %w", err)
	}

	container, err := startContainer(ctx, cfg)
	if err != nil {
		return nil, err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ClickHouse container host: %w", err)
	}
	mappedPort, err := container.MappedPort(ctx, nat.Port(cfg.Port+"/tcp"))
	if err != nil {
		return nil, fmt.Errorf("failed to get ClickHouse container mapped port: %w", err)
	}

	return &DB{
		log:       log,
		cfg:       cfg,
		addr:      fmt.Sprintf("%s:%s", host, mappedPort.Port()),
		container: container,
	}, nil
}

func (db *DB) Username() string { return db.cfg.Username }
func (db *DB) Password() string { return db.cfg.Password }

// Addr returns the native protocol address (host:port) of the container.
func (db *DB) Addr() string { return db.addr }

// MigrationConfig returns migration settings targeting the given database
// inside this container.
func (db *DB) MigrationConfig(database string) clickhouse.MigrationConfig {
	return clickhouse.MigrationConfig{
		Addr:     db.addr,
		Database: database,
		Username: db.cfg.Username,
		Password: db.cfg.Password,
		Secure:   false,
	}
}

func (db *DB) Close() {
	terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.container.Terminate(terminateCtx); err != nil {
		db.log.Error("failed to terminate ClickHouse container", "error", err)
	}
}

// TestClientInfo holds a test client and the name of its private database.
type TestClientInfo struct {
	Client   clickhouse.Client
	Database string
}

// NewTestClientWithInfo creates a client bound to a fresh database and
// reports the database name, for callers that need to run migrations
// against it.
func NewTestClientWithInfo(t *testing.T, db *DB) (*TestClientInfo, error) {
	client, dbName, err := newIsolatedClient(t, db)
	if err != nil {
		return nil, err
	}
	return &TestClientInfo{Client: client, Database: dbName}, nil
}

func NewTestClient(t *testing.T, db *DB) (clickhouse.Client, error) {
	client, _, err := newIsolatedClient(t, db)
	return client, err
}

func NewTestConn(t *testing.T, db *DB) (clickhouse.Connection, error) {
	testClient, err := NewTestClient(t, db)
	require.NoError(t, err)
	conn, err := testClient.Conn(t.Context())
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
	})
	return conn, nil
}

// newIsolatedClient creates a uniquely named database in the shared
// container and returns a client scoped to it. The database is dropped in
// t.Cleanup.
func newIsolatedClient(t *testing.T, db *DB) (clickhouse.Client, string, error) {
	adminClient, err := dialWithRetry(t, db, db.cfg.Database)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create ClickHouse admin client: %w", err)
	}

	databaseName := "test_" + strings.ReplaceAll(uuid.New().String(), "-", "")

	adminConn, err := adminClient.Conn(t.Context())
	require.NoError(t, err)
	defer adminConn.Close()
	err = adminConn.Exec(t.Context(), fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", databaseName))
	require.NoError(t, err)

	testClient, err := dialWithRetry(t, db, databaseName)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create ClickHouse client: %w", err)
	}

	t.Cleanup(func() {
		dropCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := adminConn.Exec(dropCtx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", databaseName))
		require.NoError(t, err)
		testClient.Close()
	})

	return testClient, databaseName, nil
}

// dialWithRetry connects to the container with backoff. The server can
// reject handshakes for a short window after the container reports ready.
func dialWithRetry(t *testing.T, db *DB, database string) (clickhouse.Client, error) {
	var lastErr error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		client, err := clickhouse.NewClient(t.Context(), &clickhouse.ClientConfig{
			Logger:   db.log,
			Addr:     db.addr,
			Database: database,
			Username: db.cfg.Username,
			Password: db.cfg.Password,
		})
		if err == nil {
			return client, nil
		}
		lastErr = err
		if !isRetryableConnectionErr(err) {
			break
		}
		time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
	}
	return nil, lastErr
}

func startContainer(ctx context.Context, cfg *DBConfig) (*tcch.ClickHouseContainer, error) {
	var lastErr error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		container, err := tcch.Run(ctx,
			cfg.ContainerImage,
			tcch.WithDatabase(cfg.Database),
			tcch.WithUsername(cfg.Username),
			tcch.WithPassword(cfg.Password),
		)
		if err == nil {
			return container, nil
		}
		lastErr = err
		if !isRetryableContainerStartErr(err) {
			break
		}
		time.Sleep(time.Duration(attempt) * 750 * time.Millisecond)
	}
	return nil, fmt.Errorf("failed to start ClickHouse container after retries: %w", lastErr)
}

func isRetryableContainerStartErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "wait until ready") ||
		strings.Contains(s, "mapped port") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "context deadline exceeded") ||
		strings.Contains(s, "/containers/") && strings.Contains(s, "json") ||
		strings.Contains(s, "Get \"http://%2Fvar%2Frun%2Fdocker.sock")
}

func isRetryableConnectionErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "handshake") ||
		strings.Contains(s, "unexpected packet") ||
		strings.Contains(s, "failed to ping") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "context deadline exceeded") ||
		strings.Contains(s, "dial tcp")
}
