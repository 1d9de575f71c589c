/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the landed cost server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, YAML file, .env, environment)
  2. Build the logger
  3. Open the store (memory, SQLite or PostgreSQL)
  4. Load reference data (persisted table, else built-in)
  5. Build the rate oracle and load schedules
  6. Create service, handler and router
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config file (default: $LANDED_CONFIG_FILE)
  -env     .env file (default: .env)
  -port    HTTP server port, overrides config

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the schedule reloader
  2. Stop accepting new connections
  3. Wait for active requests to complete
  4. Close the store

EXAMPLES:
  # Run with defaults (SQLite at ./landed-cost.db, demo schedules)
  ./server

  # Run against PostgreSQL with a schedule file
  LANDED_STORAGE_DRIVER=postgres DATABASE_URL=postgres://... \
  LANDED_ORACLE_SCHEDULE_FILE=./schedules.yaml ./server

  # Run against a remote rate oracle
  LANDED_ORACLE_PROVIDER=http LANDED_ORACLE_BASE_URL=http://rates:9000 ./server

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/landed-cost/api"
	"github.com/warp/landed-cost/config"
	"github.com/warp/landed-cost/factory"
	"github.com/warp/landed-cost/landedcost"
	"github.com/warp/landed-cost/metrics"
	"github.com/warp/landed-cost/oracle"
	"github.com/warp/landed-cost/refdata"
	"github.com/warp/landed-cost/store/postgres"
	"github.com/warp/landed-cost/store/sqlite"
	"github.com/warp/landed-cost/tariff"
	"github.com/warp/landed-cost/tariff/store"
	"go.uber.org/zap"
)

// backend is what every storage driver provides.
type backend interface {
	tariff.SuspensionDirectory
	tariff.SuspensionWriter
	tariff.HistoryStore
	Reset(ctx context.Context) error
}

// refStore is implemented by drivers that persist reference data.
type refStore interface {
	LoadRefData(ctx context.Context) (*refdata.Table, error)
	SaveRefData(ctx context.Context, t *refdata.Table) error
}

func main() {
	os.Exit(start())
}

// start returns the process exit code so deferred log syncing runs first.
func start() int {
	// Flags
	configFile := flag.String("config", "", "YAML config file")
	envFile := flag.String("env", "", ".env file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(config.Options{ConfigFile: *configFile, EnvFile: *envFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
		return 1
	}
	return 0
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	db, closeDB, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeDB()
	logger.Info("store opened", zap.String("driver", cfg.Storage.Driver))

	ref, err := loadRefData(ctx, db, logger)
	if err != nil {
		return err
	}

	// Schedules from a file are loaded by the reloader below.
	var schedules []oracle.Schedule
	if cfg.Oracle.ScheduleFile == "" {
		schedules, err = factory.ParseSchedules(factory.DemoSchedulesJSON)
		if err != nil {
			return fmt.Errorf("invalid demo schedules: %w", err)
		}
	}

	m := metrics.New()
	rateOracle, err := oracle.NewByName(cfg.Oracle.Provider, oracle.Options{
		BaseURL:          cfg.Oracle.BaseURL,
		Timeout:          cfg.Oracle.Timeout,
		RPS:              cfg.Oracle.RPS,
		Burst:            cfg.Oracle.Burst,
		Schedules:        schedules,
		FreightPercent:   cfg.Oracle.FreightPercent,
		InsurancePercent: cfg.Oracle.InsurancePercent,
		Logger:           logger.Named("oracle"),
		Metrics:          m,
	})
	if err != nil {
		return fmt.Errorf("failed to build rate oracle: %w", err)
	}

	svc := landedcost.New(rateOracle, db, db, ref, landedcost.Options{
		RequestTimeout:     cfg.Calculation.RequestTimeout,
		CompareConcurrency: cfg.Calculation.CompareConcurrency,
		Metrics:            m,
		Logger:             logger.Named("landedcost"),
	})

	table, _ := oracle.TableOf(rateOracle)
	if cfg.Oracle.ScheduleFile != "" {
		if table == nil {
			return errors.New("schedule_file requires the table oracle")
		}
		reloader := api.NewScheduleReloader(cfg.Oracle.ScheduleFile, table, svc, logger.Named("reloader"))
		reloader.CheckInterval = cfg.Oracle.ReloadInterval
		if _, err := reloader.ReloadIfChanged(ctx); err != nil {
			return fmt.Errorf("failed to load schedules: %w", err)
		}
		reloader.Start()
		defer reloader.Stop()
	}

	handler := api.NewHandler(svc, db, table, logger.Named("api"))
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        m.Handler(),
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("oracle", cfg.Oracle.Provider))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", zap.Stringer("signal", sig))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (backend, func(), error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return store.NewMemory(), func() {}, nil
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		s, err := postgres.New(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil
	default:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return s, func() { s.Close() }, nil
	}
}

// loadRefData prefers a persisted table and seeds the store with the
// built-in one when it is empty.
func loadRefData(ctx context.Context, db backend, logger *zap.Logger) (*refdata.Table, error) {
	rs, ok := db.(refStore)
	if !ok {
		return refdata.Default(), nil
	}

	ref, err := rs.LoadRefData(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference data: %w", err)
	}
	if ref != nil {
		logger.Info("reference data loaded", zap.Int("countries", len(ref.Countries())))
		return ref, nil
	}

	ref = refdata.Default()
	if err := rs.SaveRefData(ctx, ref); err != nil {
		return nil, fmt.Errorf("failed to seed reference data: %w", err)
	}
	logger.Info("reference data seeded", zap.Int("countries", len(ref.Countries())))
	return ref, nil
}
