package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-pipeline/config"
	"github.com/target/mmk-pipeline/internal/core"
	"github.com/target/mmk-pipeline/internal/domain/model"
	obserrors "github.com/target/mmk-pipeline/internal/observability/errors"
	"github.com/target/mmk-pipeline/internal/observability/metrics"
	"github.com/target/mmk-pipeline/internal/observability/statsd"
)

// ReminderPruner deletes completed reminders past retention.
type ReminderPruner interface {
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// ReconcilerServiceOptions groups dependencies for ReconcilerService.
type ReconcilerServiceOptions struct {
	Repo      core.ReconcilerRepository // Required: job maintenance repository
	Reminders ReminderPruner            // Optional: reminder retention
	Config    config.ReconcilerConfig   // Required: reconciler configuration
	// ProcessingTimeout is how long a job may stay in processing before it counts as abandoned.
	ProcessingTimeout time.Duration
	Clock             func() time.Time // Optional: defaults to time.Now
	Logger            *slog.Logger     // Optional: structured logger
	Metrics           statsd.Sink      // Optional: metrics sink (StatsD-compatible)
}

// ReconcilerService recovers jobs abandoned by crashed dispatchers and enforces retention.
//
// Each pass:
// - returns stale processing jobs to pending, or fails them when out of attempts
// - deletes old completed and failed jobs
// - deletes old completed reminders.
type ReconcilerService struct {
	repo              core.ReconcilerRepository
	reminders         ReminderPruner
	config            config.ReconcilerConfig
	processingTimeout time.Duration
	clock             func() time.Time
	logger            *slog.Logger
	metrics           statsd.Sink
}

// NewReconcilerService constructs a new ReconcilerService.
func NewReconcilerService(opts ReconcilerServiceOptions) (*ReconcilerService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReconcilerRepository is required")
	}
	if opts.ProcessingTimeout <= 0 {
		return nil, errors.New("processing timeout must be positive")
	}
	cfg := opts.Config
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reconciler_service")
	logger.Debug("ReconcilerService initialized",
		"interval", cfg.Interval,
		"processing_timeout", opts.ProcessingTimeout,
		"completed_max_age", cfg.CompletedMaxAge,
		"failed_max_age", cfg.FailedMaxAge,
		"reminder_max_age", cfg.ReminderMaxAge,
	)

	return &ReconcilerService{
		repo:              opts.Repo,
		reminders:         opts.Reminders,
		config:            cfg,
		processingTimeout: opts.ProcessingTimeout,
		clock:             clock,
		logger:            logger,
		metrics:           opts.Metrics,
	}, nil
}

// Run performs a pass immediately after a short jitter and then every Interval until
// the context is cancelled. Returns nil on graceful shutdown.
func (s *ReconcilerService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reconciler service", "interval", s.config.Interval)

	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		s.logPassError(err, "initial reconcile")
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reconciler service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logPassError(err, "reconcile")
			}
		}
	}
}

// waitWithJitter sleeps up to 10% of the interval so replicas started together spread out.
func (s *ReconcilerService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// RunOnce performs a single reconcile pass. Steps run independently; their errors are joined.
func (s *ReconcilerService) RunOnce(ctx context.Context) error {
	start := time.Now()
	steps := []passStep{
		{operation: "reconcile_processing", label: "reconcile processing jobs", fn: s.reconcileProcessing},
		{operation: "delete_completed", label: "delete old completed jobs", fn: s.deleteJobs(
			model.JobStatusCompleted, s.config.CompletedMaxAge)},
		{operation: "delete_failed", label: "delete old failed jobs", fn: s.deleteJobs(
			model.JobStatusFailed, s.config.FailedMaxAge)},
	}
	if s.reminders != nil {
		steps = append(steps, passStep{
			operation: "delete_reminders", label: "delete old completed reminders", fn: s.deleteReminders,
		})
	}

	var (
		errs        []error
		allCanceled = true
		firstErr    error
		total       int64
	)
	for _, step := range steps {
		count, err := step.fn(ctx)
		total += count
		s.emitOperation(step.operation, count, suppressContextCancellation(err))
		if err == nil {
			continue
		}
		if firstErr == nil && !isContextCancellation(err) {
			firstErr = err
		}
		allCanceled = allCanceled && isContextCancellation(err)
		errs = append(errs, fmt.Errorf("%s: %w", step.label, err))
	}

	s.emitPass(total, firstErr, time.Since(start))

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allCanceled {
			return context.Canceled
		}
		return fmt.Errorf("reconcile failed: %w", joined)
	}
	return nil
}

type passStep struct {
	operation string
	label     string
	fn        func(context.Context) (int64, error)
}

// reconcileProcessing loops in batches until no stale processing rows remain.
func (s *ReconcilerService) reconcileProcessing(ctx context.Context) (int64, error) {
	var requeued, failed int64
	for {
		counts, err := s.repo.ReconcileProcessing(ctx, core.ReconcileParams{
			StaleAfter: s.processingTimeout,
			BatchSize:  s.config.BatchSize,
		})
		if err != nil {
			return requeued + failed, err
		}
		requeued += counts.Requeued
		failed += counts.Failed
		if counts.Requeued+counts.Failed == 0 {
			break
		}
		if ctx.Err() != nil {
			return requeued + failed, ctx.Err()
		}
	}

	if requeued+failed > 0 {
		s.logger.InfoContext(ctx, "recovered abandoned jobs",
			"requeued", requeued,
			"failed", failed,
			"stale_after", s.processingTimeout,
		)
	}
	return requeued + failed, nil
}

func (s *ReconcilerService) deleteJobs(status model.JobStatus, maxAge time.Duration) func(context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		total, err := drainBatches(ctx, func() (int64, error) {
			return s.repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
				Status:    status,
				MaxAge:    maxAge,
				BatchSize: s.config.BatchSize,
			})
		})
		if total > 0 {
			s.logger.InfoContext(ctx, "deleted old jobs", "status", status, "count", total, "max_age", maxAge)
		}
		return total, err
	}
}

func (s *ReconcilerService) deleteReminders(ctx context.Context) (int64, error) {
	cutoff := s.clock().Add(-s.config.ReminderMaxAge)
	total, err := drainBatches(ctx, func() (int64, error) {
		return s.reminders.DeleteCompletedBefore(ctx, cutoff, s.config.BatchSize)
	})
	if total > 0 {
		s.logger.InfoContext(ctx, "deleted old reminders", "count", total, "max_age", s.config.ReminderMaxAge)
	}
	return total, err
}

// drainBatches calls fn until it reports zero rows, checking ctx between batches.
func drainBatches(ctx context.Context, fn func() (int64, error)) (int64, error) {
	var total int64
	for {
		count, err := fn()
		if err != nil {
			return total, err
		}
		total += count
		if count == 0 {
			return total, nil
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
}

func (s *ReconcilerService) emitPass(total int64, firstErr error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	tags := map[string]string{"result": metrics.ResultFor(total, firstErr)}
	if firstErr != nil {
		tags["error_class"] = obserrors.Classify(firstErr)
	}
	s.metrics.Count("reconciler.pass", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reconciler.pass_duration", elapsed, metrics.CloneTags(tags))
	}
	if firstErr == nil {
		s.metrics.Gauge("reconciler.last_success_epoch", float64(s.clock().Unix()), nil)
	}
}

func (s *ReconcilerService) emitOperation(operation string, count int64, err error) {
	if s.metrics == nil {
		return
	}
	tags := map[string]string{
		"operation": operation,
		"result":    metrics.ResultFor(count, err),
	}
	if err != nil {
		tags["error_class"] = obserrors.Classify(err)
	}
	s.metrics.Count("reconciler.operation", 1, tags)
	if err == nil && count > 0 {
		s.metrics.Count("reconciler.rows", count, metrics.CloneTags(tags))
	}
}

func (s *ReconcilerService) logPassError(err error, label string) {
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
