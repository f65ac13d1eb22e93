package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof" // Register pprof handlers
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	apiconfig "github.com/wellspringlabs/wellspring/api/config"
	"github.com/wellspringlabs/wellspring/api/handlers"
	"github.com/wellspringlabs/wellspring/api/metrics"
	"github.com/wellspringlabs/wellspring/api/server"
	"github.com/wellspringlabs/wellspring/indexer/pkg/clickhouse"
	"github.com/wellspringlabs/wellspring/indexer/pkg/indexer"
	"github.com/wellspringlabs/wellspring/pool/pkg/event"
	"github.com/wellspringlabs/wellspring/pool/pkg/identity"
	"github.com/wellspringlabs/wellspring/pool/pkg/pool"
	"github.com/wellspringlabs/wellspring/pool/pkg/store/memstore"
	"github.com/wellspringlabs/wellspring/pool/pkg/store/pgstore"
	"github.com/wellspringlabs/wellspring/pool/pkg/treasury"
	"github.com/wellspringlabs/wellspring/slack/bot"
	"github.com/wellspringlabs/wellspring/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr  = "0.0.0.0:8080"
	defaultMetricsAddr = "0.0.0.0:0"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "Enable verbose (debug) logging")
	enablePprofFlag := flag.Bool("enable-pprof", false, "Enable pprof server")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "Address to listen on for API requests")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics")
	corsOriginsFlag := flag.StringSlice("cors-origins", nil, "Allowed CORS origins (default: allow all)")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 10*time.Second, "Maximum time to wait for in-flight requests during graceful shutdown")

	storeFlag := flag.String("store", "memory", "Ledger store backend: 'memory' or 'postgres' (connection from POSTGRES_* env vars)")
	mutationRateFlag := flag.Float64("mutation-rate", 0, "Signed mutations allowed per second per account (0 uses the default)")
	mutationBurstFlag := flag.Int("mutation-burst", 0, "Signed mutation burst per account (0 uses the default)")
	devMintFlag := flag.StringArray("dev-mint", nil, "Seed the in-memory treasury with 'account:asset:amount' (repeatable; local runs only)")

	// ClickHouse event indexing (optional; empty addr disables it)
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) to index ledger events into (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", "default", "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")
	clickhouseMigrateFlag := flag.Bool("clickhouse-migrate", true, "Run ClickHouse migrations before indexing starts")
	clickhouseFlushIntervalFlag := flag.Duration("clickhouse-flush-interval", 5*time.Second, "How often buffered ledger events are flushed to ClickHouse")
	clickhouseMaxBatchFlag := flag.Int("clickhouse-max-batch", 100, "Flush early once this many ledger events are buffered")

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

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			Release:          version,
			TracesSampleRate: 0.1,
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		log.Info("sentry tracing enabled")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start pprof server if enabled
	if *enablePprofFlag {
		go func() {
			log.Info("starting pprof server", "address", "localhost:6060")
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				log.Error("failed to start pprof server", "error", err)
			}
		}()
	}

	// Ledger store
	var store pool.Store
	switch *storeFlag {
	case "memory":
		store = memstore.New()
		log.Info("using in-memory store")
	case "postgres":
		pgCfg, err := apiconfig.LoadPgConfigFromEnv()
		if err != nil {
			return err
		}
		pgPool, err := apiconfig.NewPostgresPool(ctx, log, pgCfg)
		if err != nil {
			return err
		}
		defer pgPool.Close()
		pgStore, err := pgstore.New(pgstore.Config{Logger: log, Pool: pgPool})
		if err != nil {
			return err
		}
		store = pgStore
		log.Info("using postgres store", "host", pgCfg.Host, "database", pgCfg.Database)
	default:
		return fmt.Errorf("unknown store backend %q", *storeFlag)
	}

	vault, err := treasury.NewVault(treasury.VaultConfig{Logger: log})
	if err != nil {
		return err
	}
	for _, spec := range *devMintFlag {
		account, asset, amount, err := parseMintSpec(spec)
		if err != nil {
			return err
		}
		vault.Mint(asset, account, amount)
		log.Info("minted dev balance", "account", account, "asset", asset, "amount", amount)
	}

	bus, err := event.NewBus(event.BusConfig{Logger: log})
	if err != nil {
		return err
	}
	defer bus.Close()

	ledger, err := pool.New(pool.Config{
		Logger:   log,
		Store:    store,
		Treasury: vault,
		Bus:      bus,
	})
	if err != nil {
		return err
	}

	// Embedded event indexer (optional)
	var idx *indexer.Indexer
	if *clickhouseAddrFlag != "" {
		chClient, err := clickhouse.NewClient(ctx, &clickhouse.ClientConfig{
			Logger:   log,
			Addr:     *clickhouseAddrFlag,
			Database: *clickhouseDatabaseFlag,
			Username: *clickhouseUsernameFlag,
			Password: *clickhousePasswordFlag,
			Secure:   *clickhouseSecureFlag,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		defer chClient.Close()

		idx, err = indexer.New(ctx, indexer.Config{
			Logger:        log,
			Bus:           bus,
			ClickHouse:    chClient,
			FlushInterval: *clickhouseFlushIntervalFlag,
			MaxBatch:      *clickhouseMaxBatchFlag,

			MigrationsEnable: *clickhouseMigrateFlag,
			MigrationsConfig: clickhouse.MigrationConfig{
				Addr:     *clickhouseAddrFlag,
				Database: *clickhouseDatabaseFlag,
				Username: *clickhouseUsernameFlag,
				Password: *clickhousePasswordFlag,
				Secure:   *clickhouseSecureFlag,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create indexer: %w", err)
		}
		idx.Start(ctx)
		log.Info("event indexer started", "address", *clickhouseAddrFlag, "database", *clickhouseDatabaseFlag)
	}

	// Slack notifier (optional)
	slackCfg, err := bot.LoadFromEnv()
	if err != nil {
		return err
	}
	if slackCfg.Enabled {
		client := bot.NewClient(slackCfg.BotToken, log)
		if _, err := client.Initialize(ctx); err != nil {
			log.Warn("slack auth test failed, continuing anyway", "error", err)
		}
		notifier, err := bot.NewNotifier(bot.NotifierConfig{
			Logger:  log,
			Client:  client,
			Bus:     bus,
			Channel: slackCfg.Channel,
		})
		if err != nil {
			return err
		}
		notifier.Start(ctx)
		log.Info("slack notifier started", "channel", slackCfg.Channel)
	}

	h, err := handlers.New(handlers.Config{
		Logger:        log,
		Ledger:        ledger,
		MutationRate:  rate.Limit(*mutationRateFlag),
		MutationBurst: *mutationBurstFlag,
	})
	if err != nil {
		return err
	}

	var ready func() bool
	if idx != nil {
		ready = idx.Ready
	}

	srv, err := server.New(server.Config{
		Logger:          log,
		ListenAddr:      *listenAddrFlag,
		ShutdownTimeout: *shutdownTimeoutFlag,
		VersionInfo:     server.VersionInfo{Version: version, Commit: commit, Date: date},
		Handlers:        h,
		AllowedOrigins:  *corsOriginsFlag,
		Ready:           ready,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		g.Go(func() error {
			return serveMetrics(gctx, log, *metricsAddrFlag)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("api shut down cleanly")
	return nil
}

// serveMetrics runs the prometheus endpoint on its own listener until ctx
// is done.
func serveMetrics(ctx context.Context, log *slog.Logger, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start prometheus metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("prometheus metrics server listening", "address", listener.Addr().String())
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve prometheus metrics: %w", err)
	}
	return nil
}

// parseMintSpec parses an 'account:asset:amount' triple.
func parseMintSpec(s string) (identity.Account, identity.Asset, uint64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return "", "", 0, fmt.Errorf("invalid --dev-mint %q: expected account:asset:amount", s)
	}
	account, err := identity.ParseAccount(parts[0])
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid --dev-mint account in %q: %w", s, err)
	}
	asset, err := identity.ParseAsset(parts[1])
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid --dev-mint asset in %q: %w", s, err)
	}
	amount, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid --dev-mint amount in %q: %w", s, err)
	}
	if amount == 0 {
		return "", "", 0, fmt.Errorf("invalid --dev-mint amount in %q: must be positive", s)
	}
	return account, asset, amount, nil
}
