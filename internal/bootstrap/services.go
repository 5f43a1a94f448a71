package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/mmk-pipeline/config"
	"github.com/target/mmk-pipeline/internal/adapters/worker"
	"github.com/target/mmk-pipeline/internal/core"
	"github.com/target/mmk-pipeline/internal/data"
	"github.com/target/mmk-pipeline/internal/domain/pipeline"
	"github.com/target/mmk-pipeline/internal/observability/statsd"
	"github.com/target/mmk-pipeline/internal/service"
	"golang.org/x/sync/errgroup"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Stages     *service.StageService
	Reminders  *service.ReminderService
	Automation *service.AutomationService
	Jobs       *service.JobService
	Dispatcher *service.JobDispatcher
	Worker     *worker.Client
	Metrics    statsd.Sink
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	Jobs           *data.JobRepo
	Agents         *data.AgentRepo
	Customers      *data.CustomerRepo
	Reminders      *data.ReminderRepo
	Qualifications *data.QualificationRepo
	TickLock       core.TickLocker
}

// buildMetrics returns the StatsD sink, or nil when metrics are disabled or the dial failed.
//
//nolint:ireturn // callers only need the Sink surface.
func buildMetrics(logger *slog.Logger, cfg config.ObservabilityMetricsConfig) statsd.Sink {
	if !cfg.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(deps *ServiceDeps) *serviceRepositories {
	repoCfg := data.RepoConfig{
		DefaultMaxRetries: deps.Config.Dispatcher.MaxRetries,
		Logger:            deps.Logger,
	}
	repos := &serviceRepositories{
		Jobs:           data.NewJobRepo(deps.DB, repoCfg),
		Agents:         data.NewAgentRepo(deps.DB, repoCfg),
		Customers:      data.NewCustomerRepo(deps.DB, repoCfg),
		Reminders:      data.NewReminderRepo(deps.DB, repoCfg),
		Qualifications: data.NewQualificationRepo(deps.DB, repoCfg),
	}
	if deps.RedisClient != nil && deps.Config.Dispatcher.TickLockEnabled {
		repos.TickLock = data.NewRedisTickLock(deps.RedisClient, deps.Config.Dispatcher.TickLockKey)
	}
	return repos
}

// NewServices wires the repositories into the domain services.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database connection is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	cfg := deps.Config
	metrics := buildMetrics(deps.Logger, cfg.Observability.Metrics)
	repos := buildRepositories(deps)

	graph, err := pipeline.NewGraph(pipeline.GraphOptions{Oracle: repos.Qualifications})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("stage graph: %w", err)
	}
	stages, err := service.NewStageService(service.StageServiceOptions{
		Customers: repos.Customers,
		Graph:     graph,
		Logger:    deps.Logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("stage service: %w", err)
	}
	reminders, err := service.NewReminderService(service.ReminderServiceOptions{
		Repo:   repos.Reminders,
		Logger: deps.Logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("reminder service: %w", err)
	}
	automation, err := service.NewAutomationService(service.AutomationServiceOptions{
		Reminders: reminders,
		Customers: repos.Customers,
		Logger:    deps.Logger,
		Metrics:   metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("automation service: %w", err)
	}
	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:   repos.Jobs,
		Admin:  repos.Jobs,
		Logger: deps.Logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("job service: %w", err)
	}
	workerClient, err := worker.NewClient(worker.Options{Config: cfg.Worker, Logger: deps.Logger})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("worker client: %w", err)
	}
	dispatcher, err := service.NewJobDispatcher(service.JobDispatcherOptions{
		Jobs:       repos.Jobs,
		Agents:     repos.Agents,
		Worker:     workerClient,
		Reconciler: repos.Jobs,
		TickLock:   repos.TickLock,
		Config:     cfg.Dispatcher,
		Logger:     deps.Logger,
		Metrics:    metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("job dispatcher: %w", err)
	}

	return ServiceContainer{
		Stages:     stages,
		Reminders:  reminders,
		Automation: automation,
		Jobs:       jobs,
		Dispatcher: dispatcher,
		Worker:     workerClient,
		Metrics:    metrics,
	}, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Logger   *slog.Logger
}

// backgroundService describes a startable component.
type backgroundService struct {
	mode config.ServiceMode
	run  func(context.Context) error
}

// buildBackgroundServices constructs every enabled component up front so a bad
// configuration fails before anything starts.
func buildBackgroundServices(cfg *ServiceOrchestrationConfig, enabled map[config.ServiceMode]bool) ([]backgroundService, error) {
	var out []backgroundService
	if enabled[config.ServiceModeHTTP] {
		srv := NewHTTPServer(HTTPServerConfig{HTTP: cfg.Config.HTTP, Services: cfg.Services, Logger: cfg.Logger})
		out = append(out, backgroundService{mode: config.ServiceModeHTTP, run: func(ctx context.Context) error {
			return ServeHTTP(ctx, srv, cfg.Config.HTTP.ShutdownTimeout, cfg.Logger)
		}})
	}
	if enabled[config.ServiceModeDispatcher] {
		if cfg.Services.Dispatcher == nil {
			return nil, errors.New("dispatcher enabled but not configured")
		}
		out = append(out, backgroundService{mode: config.ServiceModeDispatcher, run: cfg.Services.Dispatcher.Run})
	}
	if enabled[config.ServiceModeReconciler] {
		runner, err := NewReconcilerRunner(ReconcilerConfig{
			DB:                cfg.DB,
			Config:            cfg.Config.Reconciler,
			ProcessingTimeout: cfg.Config.Dispatcher.ProcessingTimeout,
			Logger:            cfg.Logger,
			Metrics:           cfg.Services.Metrics,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, backgroundService{mode: config.ServiceModeReconciler, run: runner.Run})
	}
	if enabled[config.ServiceModeSweeper] {
		runner, err := NewSweeperRunner(SweeperConfig{
			DB:      cfg.DB,
			Config:  cfg.Config.Sweeper,
			Logger:  cfg.Logger,
			Metrics: cfg.Services.Metrics,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, backgroundService{mode: config.ServiceModeSweeper, run: runner.Run})
	}
	return out, nil
}

// RunServicesWithShutdown starts all enabled services and blocks until ctx is cancelled
// or one of them fails. A failure cancels the others; each one drains before return.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	services, err := buildBackgroundServices(cfg, enabled)
	if err != nil {
		return err
	}
	return runAll(ctx, services, cfg.Logger)
}

func runAll(ctx context.Context, services []backgroundService, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		g.Go(func() error {
			logger.InfoContext(gctx, "service started", "service", svc.mode)
			if err := svc.run(gctx); err != nil {
				return fmt.Errorf("%s failed: %w", svc.mode, err)
			}
			logger.InfoContext(gctx, "service stopped", "service", svc.mode)
			return nil
		})
	}
	return g.Wait()
}
