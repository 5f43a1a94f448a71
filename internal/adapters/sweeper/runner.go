// Package sweeper runs the stale lead sweep on a cron schedule.
package sweeper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/target/mmk-pipeline/config"
	"github.com/target/mmk-pipeline/internal/data"
	"github.com/target/mmk-pipeline/internal/observability/statsd"
	"github.com/target/mmk-pipeline/internal/service"
)

// Sweeper is the work performed on each schedule fire.
type Sweeper interface {
	Sweep(ctx context.Context) (service.SweepResult, error)
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB      *sql.DB
	Config  config.SweeperConfig
	Logger  *slog.Logger
	Metrics statsd.Sink

	// Sweeper overrides the database-backed sweeper.
	Sweeper Sweeper
	// RunTimeout bounds a single sweep. Defaults to 10 minutes.
	RunTimeout time.Duration
}

// Runner fires the sweeper on a five-field cron schedule.
type Runner struct {
	sweeper    Sweeper
	schedule   cron.Schedule
	spec       string
	loc        *time.Location
	runTimeout time.Duration
	logger     *slog.Logger

	// running prevents overlapping sweeps when one outlasts the schedule gap.
	running sync.Mutex
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewRunner validates the schedule and timezone and wires the sweeper.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	spec := strings.TrimSpace(opts.Config.Schedule)
	if spec == "" {
		spec = "0 9 * * *"
	}
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse sweeper schedule %q: %w", spec, err)
	}

	loc := time.UTC
	if tz := strings.TrimSpace(opts.Config.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("load sweeper timezone %q: %w", tz, err)
		}
	}

	sw := opts.Sweeper
	if sw == nil {
		if opts.DB == nil {
			return nil, errors.New("database connection is required")
		}
		sw, err = wireSweeper(opts, logger)
		if err != nil {
			return nil, fmt.Errorf("wire stale lead sweeper: %w", err)
		}
	}

	runTimeout := opts.RunTimeout
	if runTimeout <= 0 {
		runTimeout = 10 * time.Minute
	}

	return &Runner{
		sweeper:    sw,
		schedule:   schedule,
		spec:       spec,
		loc:        loc,
		runTimeout: runTimeout,
		logger:     logger.With("component", "sweeper_runner"),
	}, nil
}

func wireSweeper(opts RunnerOptions, logger *slog.Logger) (*service.StaleLeadSweeper, error) {
	repoCfg := data.RepoConfig{Logger: logger}
	reminderRepo := data.NewReminderRepo(opts.DB, repoCfg)
	scheduler, err := service.NewReminderService(service.ReminderServiceOptions{Repo: reminderRepo, Logger: logger})
	if err != nil {
		return nil, err
	}
	return service.NewStaleLeadSweeper(service.StaleLeadSweeperOptions{
		Customers: data.NewCustomerRepo(opts.DB, repoCfg),
		Open:      reminderRepo,
		Reminders: scheduler,
		Config:    opts.Config,
		Logger:    logger,
		Metrics:   opts.Metrics,
	})
}

// Next reports the next fire time after t in the runner's timezone.
func (r *Runner) Next(t time.Time) time.Time {
	return r.schedule.Next(t.In(r.loc))
}

// Run starts the cron scheduler and blocks until ctx is cancelled, then waits for an
// in-flight sweep to finish. Returns nil on graceful shutdown.
func (r *Runner) Run(ctx context.Context) error {
	c := cron.New(cron.WithParser(parser), cron.WithLocation(r.loc))
	c.Schedule(r.schedule, cron.FuncJob(func() { r.fire(ctx) }))

	r.logger.InfoContext(ctx, "sweeper scheduled",
		"schedule", r.spec,
		"timezone", r.loc.String(),
		"next_run", r.Next(time.Now()),
	)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	r.logger.InfoContext(ctx, "sweeper stopped", "reason", ctx.Err())
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// fire runs one sweep unless the previous one is still going.
func (r *Runner) fire(ctx context.Context) {
	if !r.running.TryLock() {
		r.logger.WarnContext(ctx, "previous sweep still running, skipping")
		return
	}
	defer r.running.Unlock()

	if ctx.Err() != nil {
		return
	}
	runCtx, cancel := context.WithTimeout(ctx, r.runTimeout)
	defer cancel()

	if _, err := r.sweeper.Sweep(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.ErrorContext(ctx, "stale lead sweep failed", "error", err)
	}
}
