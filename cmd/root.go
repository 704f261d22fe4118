package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/drivescore/internal/adapters/repository"
	"github.com/okian/drivescore/internal/adapters/repository/migrate"
	"github.com/okian/drivescore/internal/adapters/repository/postgres"
	service "github.com/okian/drivescore/internal/app"
	"github.com/okian/drivescore/internal/config"
	"github.com/okian/drivescore/pkg/logger"
)

// storeBreakerName labels the store circuit breaker in metrics.
const storeBreakerName = "store"

func newRootCmd() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:           "drivescore",
		Short:         "Driving simulator telemetry ingest, sessions and scoring",
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if cfgFile != "" {
				return os.Setenv(config.EnvConfigFile, cfgFile)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "",
		"YAML config file (same as "+config.EnvConfigFile+")")

	root.AddCommand(newServeCmd(), newMigrateCmd(), newReevaluateCmd())
	return root
}

// bootstrap loads the configuration and initializes the global logger from it.
func bootstrap(ctx context.Context) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.InitWithBackend(cfg.LogBackend); err != nil {
		return nil, nil, fmt.Errorf("init logging: %w", err)
	}
	log := logger.Get()
	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, log, nil
}

// openStore builds the configured backend behind a circuit breaker.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, error) {
	var next repository.Store
	switch cfg.Store {
	case config.StorePostgres:
		if cfg.MigrateOnStart {
			log.Info(ctx, "applying schema migrations")
			if err := migrate.Up(cfg.DatabaseURL); err != nil {
				return nil, err
			}
		}
		opts := []postgres.PoolConfigOption{postgres.WithMaxConns(int32(cfg.DBMaxConns))}
		if zl, ok := logger.Zap(); ok {
			opts = append(opts, postgres.WithTracer(zl.Named("sql")))
		}
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, opts...)
		if err != nil {
			return nil, err
		}
		next = postgres.New(pool)
	default:
		next = repository.NewMemoryStore()
	}
	log.Info(ctx, "store ready", logger.String("store", cfg.Store))

	return repository.NewBreakerStore(next,
		repository.WithBreakerName(storeBreakerName),
		repository.WithFailureThreshold(uint32(cfg.BreakerFailureThreshold)),
		repository.WithOpenTimeout(cfg.BreakerTimeout()),
	), nil
}

// newService wires the service with the configured tuning.
func newService(cfg *config.Config, store repository.Store, log logger.Logger) (*service.Service, error) {
	grades, err := cfg.GradeScale()
	if err != nil {
		return nil, err
	}
	return service.New(store,
		service.WithLogger(log),
		service.WithFlushSize(cfg.BufferFlushSize),
		service.WithThresholds(cfg.Thresholds()),
		service.WithGradeScale(grades),
		service.WithWorkerCount(cfg.ReevaluateWorkers),
		service.WithQueueSize(cfg.ReevaluateQueueSize),
	), nil
}
