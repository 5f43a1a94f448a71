package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-pipeline/config"
	"github.com/target/mmk-pipeline/internal/core"
	"github.com/target/mmk-pipeline/internal/domain/model"
	"github.com/target/mmk-pipeline/internal/observability/metrics"
	"github.com/target/mmk-pipeline/internal/observability/statsd"
)

// StaleLeadFinder lists customers that have not moved in a while.
type StaleLeadFinder interface {
	ListStale(ctx context.Context, params core.ListStaleParams) ([]*model.Customer, error)
}

// OpenReminderChecker reports whether a customer already has an open reminder of a type.
type OpenReminderChecker interface {
	HasOpen(ctx context.Context, customerID string, reminderType model.ReminderType) (bool, error)
}

// StaleLeadSweeperOptions groups dependencies for StaleLeadSweeper.
type StaleLeadSweeperOptions struct {
	Customers StaleLeadFinder      // Required: customer lookup
	Open      OpenReminderChecker  // Required: open reminder check
	Reminders ReminderCreator      // Required: reminder scheduler
	Config    config.SweeperConfig // Required: sweep configuration
	Clock     func() time.Time     // Optional: defaults to time.Now
	Logger    *slog.Logger         // Optional: structured logger
	Metrics   statsd.Sink          // Optional: metrics sink
}

// SweepResult counts what a sweep did.
type SweepResult struct {
	Scanned int
	Created int
	Skipped int
	Failed  int
}

// StaleLeadSweeper schedules a seven-day follow-up for leads stuck in NEW_LEAD.
type StaleLeadSweeper struct {
	customers StaleLeadFinder
	open      OpenReminderChecker
	reminders ReminderCreator
	config    config.SweeperConfig
	clock     func() time.Time
	logger    *slog.Logger
	metrics   statsd.Sink
}

const staleLeadMessage = "Lead has not progressed in a week; check in"

// NewStaleLeadSweeper constructs a new StaleLeadSweeper.
func NewStaleLeadSweeper(opts StaleLeadSweeperOptions) (*StaleLeadSweeper, error) {
	switch {
	case opts.Customers == nil:
		return nil, errors.New("StaleLeadFinder is required")
	case opts.Open == nil:
		return nil, errors.New("OpenReminderChecker is required")
	case opts.Reminders == nil:
		return nil, errors.New("ReminderCreator is required")
	}
	cfg := opts.Config
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 7 * 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StaleLeadSweeper{
		customers: opts.Customers,
		open:      opts.Open,
		reminders: opts.Reminders,
		config:    cfg,
		clock:     clock,
		logger:    logger.With("component", "stale_lead_sweeper"),
		metrics:   opts.Metrics,
	}, nil
}

// Sweep creates a FOLLOW_UP_7D reminder, due now, for each stale NEW_LEAD customer that
// does not already have one open. Per-customer failures are logged and counted.
func (s *StaleLeadSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.clock()
	start := time.Now()

	stale, err := s.customers.ListStale(ctx, core.ListStaleParams{
		Stage:     model.StageNewLead,
		Before:    now.Add(-s.config.StaleAfter),
		BatchSize: s.config.BatchSize,
	})
	if err != nil {
		s.emit(SweepResult{}, err, time.Since(start))
		return SweepResult{}, fmt.Errorf("list stale leads: %w", err)
	}

	res := SweepResult{Scanned: len(stale)}
	for _, c := range stale {
		if ctx.Err() != nil {
			break
		}
		open, err := s.open.HasOpen(ctx, c.ID, model.ReminderFollowUp7D)
		if err != nil {
			s.logger.WarnContext(ctx, "check open reminder", "customer_id", c.ID, "error", err)
			res.Failed++
			continue
		}
		if open {
			res.Skipped++
			continue
		}
		if _, err := s.reminders.Create(ctx, &model.CreateReminderRequest{
			CustomerID:   c.ID,
			Type:         model.ReminderFollowUp7D,
			Message:      staleLeadMessage,
			ScheduledFor: now,
		}); err != nil {
			s.logger.WarnContext(ctx, "create stale lead reminder", "customer_id", c.ID, "error", err)
			res.Failed++
			continue
		}
		res.Created++
	}

	if res.Scanned > 0 {
		s.logger.InfoContext(ctx, "stale lead sweep finished",
			"scanned", res.Scanned,
			"created", res.Created,
			"skipped", res.Skipped,
			"failed", res.Failed,
		)
	}
	s.emit(res, nil, time.Since(start))
	return res, ctx.Err()
}

func (s *StaleLeadSweeper) emit(res SweepResult, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	tags := map[string]string{"result": metrics.ResultFor(int64(res.Created), err)}
	s.metrics.Count("sweeper.run", 1, tags)
	s.metrics.Timing("sweeper.run_duration", elapsed, metrics.CloneTags(tags))
	if res.Created > 0 {
		s.metrics.Count("sweeper.reminders_created", int64(res.Created), nil)
	}
}
