package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service",
			input:    "dispatcher",
			expected: map[ServiceMode]bool{ServiceModeDispatcher: true},
		},
		{
			name:  "all services with spaces and duplicates",
			input: " http , dispatcher,reconciler, sweeper,http ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:       true,
				ServiceModeDispatcher: true,
				ServiceModeReconciler: true,
				ServiceModeSweeper:    true,
			},
		},
		{name: "empty string", input: "", expectError: true},
		{name: "only commas", input: ",,", expectError: true},
		{name: "invalid service", input: "http,reaper", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServices(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ParseServices() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAppConfig_IsEnabled(t *testing.T) {
	cfg := AppConfig{Services: "http,sweeper"}
	if !cfg.IsEnabled(ServiceModeHTTP) || !cfg.IsEnabled(ServiceModeSweeper) {
		t.Errorf("expected http and sweeper enabled")
	}
	if cfg.IsEnabled(ServiceModeDispatcher) {
		t.Errorf("dispatcher should be disabled")
	}

	bad := AppConfig{Services: "bogus"}
	if bad.IsEnabled(ServiceModeHTTP) {
		t.Errorf("invalid services string should enable nothing")
	}
}

func TestValidServiceModes(t *testing.T) {
	for _, mode := range ValidServiceModes() {
		if _, err := ParseServices(string(mode)); err != nil {
			t.Errorf("ParseServices(%q) error = %v", mode, err)
		}
	}
}

func TestAppConfig_ParseDefaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Dispatcher.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.Dispatcher.PollInterval)
	}
	if cfg.Dispatcher.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.Dispatcher.MaxRetries)
	}
	if cfg.Sweeper.Schedule != "0 9 * * *" {
		t.Errorf("Sweeper.Schedule = %q", cfg.Sweeper.Schedule)
	}
	if cfg.Sweeper.StaleAfter != 7*24*time.Hour {
		t.Errorf("Sweeper.StaleAfter = %v, want 168h", cfg.Sweeper.StaleAfter)
	}
	if cfg.Postgres.Name != "pipeline" {
		t.Errorf("Postgres.Name = %q", cfg.Postgres.Name)
	}
}

func TestAppConfig_ParseEnv(t *testing.T) {
	t.Setenv("SERVICES", "dispatcher")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("DISPATCHER_BATCH_SIZE", "25")
	t.Setenv("DISPATCHER_TICK_LOCK_ENABLED", "true")
	t.Setenv("WORKER_BASE_URL", "http://worker:8000/")
	t.Setenv("WORKER_TIMEOUT", "2s")
	t.Setenv("SWEEPER_TIMEZONE", "America/Chicago")
	t.Setenv("LOG_LEVEL", "DEBUG")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Postgres.Host != "db.internal" || !cfg.Redis.Enabled {
		t.Errorf("unexpected storage config: %+v %+v", cfg.Postgres, cfg.Redis)
	}
	if cfg.Dispatcher.BatchSize != 25 || !cfg.Dispatcher.TickLockEnabled {
		t.Errorf("unexpected dispatcher config: %+v", cfg.Dispatcher)
	}
	if cfg.Worker.BaseURL != "http://worker:8000" || cfg.Worker.Timeout != 2*time.Second {
		t.Errorf("unexpected worker config: %+v", cfg.Worker)
	}
	if cfg.Sweeper.Timezone != "America/Chicago" {
		t.Errorf("Sweeper.Timezone = %q", cfg.Sweeper.Timezone)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestAppConfig_WorkerTimeoutBelowProcessingTimeout(t *testing.T) {
	cfg := AppConfig{
		Dispatcher: DispatcherConfig{ProcessingTimeout: time.Minute},
		Worker:     WorkerConfig{Timeout: 5 * time.Minute},
	}
	cfg.Sanitize()

	if cfg.Worker.Timeout != 30*time.Second {
		t.Errorf("Worker.Timeout = %v, want 30s", cfg.Worker.Timeout)
	}

	cfg.Worker.Timeout = 10 * time.Second
	cfg.Sanitize()
	if cfg.Worker.Timeout != 10*time.Second {
		t.Errorf("Worker.Timeout = %v, want 10s unchanged", cfg.Worker.Timeout)
	}
}

func TestDispatcherConfig_Sanitize(t *testing.T) {
	cfg := DispatcherConfig{
		PollInterval:      time.Millisecond,
		BatchSize:         0,
		MaxRetries:        -1,
		ProcessingTimeout: time.Second,
		TickLockTTL:       0,
	}
	cfg.Sanitize()

	want := DispatcherConfig{
		PollInterval:      100 * time.Millisecond,
		BatchSize:         1,
		MaxRetries:        1,
		ProcessingTimeout: 30 * time.Second,
		TickLockTTL:       100 * time.Millisecond,
		TickLockKey:       "pipeline:dispatcher:tick",
	}
	if !reflect.DeepEqual(cfg, want) {
		t.Errorf("Sanitize() = %+v, want %+v", cfg, want)
	}
}

func TestSweeperConfig_Sanitize(t *testing.T) {
	cfg := SweeperConfig{Schedule: "  ", Timezone: "Mars/Olympus", StaleAfter: time.Minute}
	cfg.Sanitize()

	if cfg.Schedule != "0 9 * * *" || cfg.Timezone != "UTC" || cfg.StaleAfter != time.Hour || cfg.BatchSize != 1 {
		t.Errorf("Sanitize() = %+v", cfg)
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{Enabled: true, StatsdAddress: "   ", Prefix: ".pipeline."}
	cfg.Sanitize()

	if cfg.IsEnabled() {
		t.Errorf("metrics should be disabled without an address")
	}
	if cfg.Prefix != "pipeline" {
		t.Errorf("Prefix = %q, want pipeline", cfg.Prefix)
	}
}
