package bootstrap

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-pipeline/config"
	"github.com/target/mmk-pipeline/internal/adapters/reconciler"
	"github.com/target/mmk-pipeline/internal/adapters/sweeper"
	"github.com/target/mmk-pipeline/internal/observability/statsd"
)

// ReconcilerConfig contains configuration for the reconciler runner.
type ReconcilerConfig struct {
	DB                *sql.DB
	Config            config.ReconcilerConfig
	ProcessingTimeout time.Duration
	Logger            *slog.Logger
	Metrics           statsd.Sink
}

// NewReconcilerRunner builds the crash recovery and retention loop.
func NewReconcilerRunner(cfg ReconcilerConfig) (*reconciler.Runner, error) {
	runner, err := reconciler.NewRunner(reconciler.RunnerOptions{
		DB:                cfg.DB,
		Config:            cfg.Config,
		ProcessingTimeout: cfg.ProcessingTimeout,
		Logger:            cfg.Logger,
		Metrics:           cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create reconciler runner: %w", err)
	}
	return runner, nil
}

// SweeperConfig contains configuration for the stale lead sweeper.
type SweeperConfig struct {
	DB      *sql.DB
	Config  config.SweeperConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// NewSweeperRunner builds the cron-driven stale lead sweep.
func NewSweeperRunner(cfg SweeperConfig) (*sweeper.Runner, error) {
	runner, err := sweeper.NewRunner(sweeper.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create sweeper runner: %w", err)
	}
	return runner, nil
}
