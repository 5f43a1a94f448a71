// Package reconciler provides adapters for running the job reconciler.
package reconciler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-pipeline/config"
	"github.com/target/mmk-pipeline/internal/core"
	"github.com/target/mmk-pipeline/internal/data"
	"github.com/target/mmk-pipeline/internal/observability/statsd"
	"github.com/target/mmk-pipeline/internal/service"
)

// Runner provides a simple adapter to run the reconciler loop.
// It constructs the reconciler service and runs the recovery loop.
type Runner struct {
	reconciler *service.ReconcilerService
	logger     *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.ReconcilerConfig
	// ProcessingTimeout mirrors the dispatcher's per-job timeout.
	ProcessingTimeout time.Duration
	Logger            *slog.Logger
	Metrics           statsd.Sink

	// Optional dependency injection for testing/decoupling
	Repo      core.ReconcilerRepository
	Reminders service.ReminderPruner
}

// NewRunner creates a new reconciler runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	svc, err := wireReconcilerService(opts)
	if err != nil {
		return nil, fmt.Errorf("wire reconciler service: %w", err)
	}
	return &Runner{reconciler: svc, logger: opts.Logger}, nil
}

func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && (opts.Repo == nil || opts.Reminders == nil) {
		return errors.New("database connection is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

func wireReconcilerService(opts RunnerOptions) (*service.ReconcilerService, error) {
	repo := opts.Repo
	if repo == nil {
		repo = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}
	reminders := opts.Reminders
	if reminders == nil {
		reminders = data.NewReminderRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}

	cfg := opts.Config
	cfg.Sanitize()
	return service.NewReconcilerService(service.ReconcilerServiceOptions{
		Repo:              repo,
		Reminders:         reminders,
		Config:            cfg,
		ProcessingTimeout: opts.ProcessingTimeout,
		Logger:            opts.Logger,
		Metrics:           opts.Metrics,
	})
}

// Run starts the reconciler loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reconciler runner")
	return r.reconciler.Run(ctx)
}

// RunOnce performs a single pass; used by the admin CLI.
func (r *Runner) RunOnce(ctx context.Context) error {
	return r.reconciler.RunOnce(ctx)
}
