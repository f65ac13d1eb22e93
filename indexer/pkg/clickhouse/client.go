// Package clickhouse wraps the native ClickHouse driver behind small
// interfaces so the event store and tests can swap in fakes.
package clickhouse

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const (
	DefaultDatabase = "default"

	dialTimeout      = 5 * time.Second
	maxExecutionSecs = 60
)

// Client is a handle to a ClickHouse server scoped to one database.
type Client interface {
	Conn(ctx context.Context) (Connection, error)
	Close() error
}

// Connection is the query surface the event store needs.
type Connection interface {
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	PrepareBatch(ctx context.Context, query string) (driver.Batch, error)
	Close() error
}

// ClientConfig configures a Client. Database defaults to DefaultDatabase;
// Secure enables TLS for hosted ClickHouse (native port 9440).
type ClientConfig struct {
	Logger   *slog.Logger
	Addr     string
	Database string
	Username string
	Password string
	Secure   bool
}

func (cfg *ClientConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Addr == "" {
		return errors.New("addr is required")
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	return nil
}

func (cfg *ClientConfig) options() *clickhouse.Options {
	opts := &clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": maxExecutionSecs,
		},
		DialTimeout: dialTimeout,
	}
	if cfg.Secure {
		opts.TLS = &tls.Config{}
	}
	return opts
}

// NewClient opens a connection pool against the configured server and
// verifies it with a ping before returning.
func NewClient(ctx context.Context, cfg *ClientConfig) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate client config: %w", err)
	}

	conn, err := clickhouse.Open(cfg.options())
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	cfg.Logger.Info("ClickHouse client initialized", "addr", cfg.Addr, "database", cfg.Database, "secure", cfg.Secure)

	return &client{conn: conn, log: cfg.Logger}, nil
}

// ContextWithSyncInsert returns a context whose inserts are synchronous and
// immediately visible to subsequent reads. The event store uses it so a view
// flush can be observed by the queries that follow it.
func ContextWithSyncInsert(ctx context.Context) context.Context {
	return clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
		"async_insert":                           0,
		"wait_for_async_insert":                  1,
		"async_insert_use_adaptive_busy_timeout": 0, // 24.3+: adaptive timeout can override the settings above
		"insert_deduplicate":                     0,
		"select_sequential_consistency":          1,
	}))
}

type client struct {
	conn driver.Conn
	log  *slog.Logger
}

func (c *client) Conn(ctx context.Context) (Connection, error) {
	return &connection{conn: c.conn}, nil
}

func (c *client) Close() error {
	return c.conn.Close()
}

// connection borrows the client's pooled driver.Conn; Close is a no-op so
// callers can defer it without tearing down the shared pool.
type connection struct {
	conn driver.Conn
}

func (c *connection) Exec(ctx context.Context, query string, args ...any) error {
	return c.conn.Exec(ctx, query, args...)
}

func (c *connection) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	return c.conn.Query(ctx, query, args...)
}

func (c *connection) PrepareBatch(ctx context.Context, query string) (driver.Batch, error) {
	return c.conn.PrepareBatch(ctx, query)
}

func (c *connection) Close() error {
	return nil
}
