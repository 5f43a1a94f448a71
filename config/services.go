package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeDispatcher runs the job dispatcher loop.
	ServiceModeDispatcher ServiceMode = "dispatcher"
	// ServiceModeReconciler runs crash recovery and retention cleanup.
	ServiceModeReconciler ServiceMode = "reconciler"
	// ServiceModeSweeper runs the cron-driven stale lead sweep.
	ServiceModeSweeper ServiceMode = "sweeper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeDispatcher, ServiceModeReconciler, ServiceModeSweeper}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if strings.TrimSpace(servicesStr) == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		mode := ServiceMode(name)
		switch mode {
		case ServiceModeHTTP, ServiceModeDispatcher, ServiceModeReconciler, ServiceModeSweeper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, dispatcher, reconciler, sweeper)", name)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}
	return services, nil
}

// DispatcherConfig contains job dispatcher configuration.
type DispatcherConfig struct {
	// PollInterval is the time between ticks.
	PollInterval time.Duration `env:"DISPATCHER_POLL_INTERVAL" envDefault:"5s"`

	// BatchSize is the maximum number of pending jobs handled per tick.
	BatchSize int `env:"DISPATCHER_BATCH_SIZE" envDefault:"10"`

	// MaxRetries applies to jobs created without an explicit limit.
	MaxRetries int `env:"DISPATCHER_MAX_RETRIES" envDefault:"3"`

	// ProcessingTimeout is how long a job may sit in processing before the
	// reconciler treats its dispatcher as crashed.
	ProcessingTimeout time.Duration `env:"DISPATCHER_PROCESSING_TIMEOUT" envDefault:"5m"`

	// TickLockEnabled turns on the Redis lock that lets only one replica tick at a time.
	TickLockEnabled bool          `env:"DISPATCHER_TICK_LOCK_ENABLED" envDefault:"false"`
	TickLockKey     string        `env:"DISPATCHER_TICK_LOCK_KEY"     envDefault:"pipeline:dispatcher:tick"`
	TickLockTTL     time.Duration `env:"DISPATCHER_TICK_LOCK_TTL"     envDefault:"1m"`
}

// Sanitize applies guardrails to dispatcher configuration values.
func (d *DispatcherConfig) Sanitize() {
	if d.PollInterval < 100*time.Millisecond {
		d.PollInterval = 100 * time.Millisecond
	}
	if d.BatchSize < 1 {
		d.BatchSize = 1
	}
	if d.BatchSize > 1000 {
		d.BatchSize = 1000
	}
	if d.MaxRetries < 1 {
		d.MaxRetries = 1
	}
	if d.ProcessingTimeout < 30*time.Second {
		d.ProcessingTimeout = 30 * time.Second
	}
	// The lease must outlive a tick or a second replica could start mid-batch.
	if d.TickLockTTL < d.PollInterval {
		d.TickLockTTL = d.PollInterval
	}
	if strings.TrimSpace(d.TickLockKey) == "" {
		d.TickLockKey = "pipeline:dispatcher:tick"
	}
}

// WorkerConfig contains configuration for the external AI worker.
type WorkerConfig struct {
	BaseURL string `env:"WORKER_BASE_URL" envDefault:"http://localhost:8000"`

	// Timeout bounds every worker call.
	Timeout time.Duration `env:"WORKER_TIMEOUT" envDefault:"30s"`

	// RateLimit is the sustained calls per second allowed to the worker; 0 disables throttling.
	RateLimit float64 `env:"WORKER_RATE_LIMIT" envDefault:"5"`
	RateBurst int     `env:"WORKER_RATE_BURST" envDefault:"5"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	w.BaseURL = strings.TrimRight(strings.TrimSpace(w.BaseURL), "/")
	if w.Timeout <= 0 {
		w.Timeout = 30 * time.Second
	}
	if w.RateLimit < 0 {
		w.RateLimit = 0
	}
	if w.RateBurst < 1 {
		w.RateBurst = 1
	}
}

// ReconcilerConfig contains crash recovery and retention configuration.
type ReconcilerConfig struct {
	// Interval is the reconciler tick interval.
	Interval time.Duration `env:"RECONCILER_INTERVAL" envDefault:"1m"`

	// CompletedMaxAge is the maximum age for completed jobs before deletion.
	CompletedMaxAge time.Duration `env:"RECONCILER_COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// FailedMaxAge is the maximum age for failed jobs before deletion.
	FailedMaxAge time.Duration `env:"RECONCILER_FAILED_MAX_AGE" envDefault:"720h"` // 30 days

	// ReminderMaxAge is how long completed reminders are kept.
	ReminderMaxAge time.Duration `env:"RECONCILER_REMINDER_MAX_AGE" envDefault:"2160h"` // 90 days

	// BatchSize is the maximum number of rows to process per operation.
	BatchSize int `env:"RECONCILER_BATCH_SIZE" envDefault:"500"`
}

// Sanitize applies guardrails to reconciler configuration values.
func (r *ReconcilerConfig) Sanitize() {
	if r.Interval < 10*time.Second {
		r.Interval = 10 * time.Second
	}
	if r.CompletedMaxAge < time.Hour {
		r.CompletedMaxAge = time.Hour
	}
	if r.FailedMaxAge < time.Hour {
		r.FailedMaxAge = time.Hour
	}
	if r.ReminderMaxAge < 24*time.Hour {
		r.ReminderMaxAge = 24 * time.Hour
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}

// SweeperConfig contains configuration for the stale lead sweep.
type SweeperConfig struct {
	// Schedule is a standard five-field cron expression.
	Schedule string `env:"SWEEPER_SCHEDULE" envDefault:"0 9 * * *"`

	// Timezone is the IANA zone the schedule is evaluated in.
	Timezone string `env:"SWEEPER_TIMEZONE" envDefault:"UTC"`

	// StaleAfter is how long a NEW_LEAD may sit untouched before it gets a follow-up.
	StaleAfter time.Duration `env:"SWEEPER_STALE_AFTER" envDefault:"168h"`

	BatchSize int `env:"SWEEPER_BATCH_SIZE" envDefault:"200"`
}

// Sanitize applies guardrails to sweeper configuration values.
func (s *SweeperConfig) Sanitize() {
	s.Schedule = strings.TrimSpace(s.Schedule)
	if s.Schedule == "" {
		s.Schedule = "0 9 * * *"
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil || s.Timezone == "" {
		s.Timezone = "UTC"
	}
	if s.StaleAfter < time.Hour {
		s.StaleAfter = time.Hour
	}
	if s.BatchSize < 1 {
		s.BatchSize = 1
	}
}
