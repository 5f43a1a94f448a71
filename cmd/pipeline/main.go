package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/target/mmk-pipeline/config"
	"github.com/target/mmk-pipeline/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	logger := bootstrap.InitLogger()
	err := run(ctx, logger)
	stop()
	if err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger = bootstrap.ConfigureLogger(&cfg)
	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}

	logger.InfoContext(ctx, "starting pipeline service",
		"db", fmt.Sprintf("%s:%d/%s", cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.Name),
		"redis_enabled", cfg.Redis.Enabled,
		"enabled_services", bootstrap.GetEnabledServices(&cfg))

	infra, err := connect(&cfg, logger)
	if err != nil {
		return err
	}
	defer infra.close(ctx, logger)

	if cfg.Postgres.RunMigrationsOnStart {
		if err = bootstrap.RunMigrations(ctx, infra.db, logger); err != nil {
			return err
		}
	}

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      &cfg,
		DB:          infra.db,
		RedisClient: infra.redis,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}

	return bootstrap.RunServicesWithShutdown(ctx, &bootstrap.ServiceOrchestrationConfig{
		Config:   &cfg,
		Services: services,
		DB:       infra.db,
		Logger:   logger,
	})
}

// infrastructure holds the connections shared by every background service.
type infrastructure struct {
	db    *sql.DB
	redis redis.UniversalClient // nil when REDIS_ENABLED=false
}

func connect(cfg *config.AppConfig, logger *slog.Logger) (*infrastructure, error) {
	dbCfg := bootstrap.DatabaseConfig{
		DBConfig:    cfg.Postgres,
		RedisConfig: cfg.Redis,
		Logger:      logger,
	}
	db, err := bootstrap.ConnectDB(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	rdb, err := bootstrap.ConnectRedis(dbCfg)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("connect redis: %w", err), db.Close())
	}
	return &infrastructure{db: db, redis: rdb}, nil
}

func (i *infrastructure) close(ctx context.Context, logger *slog.Logger) {
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			logger.ErrorContext(ctx, "close redis failed", "error", err)
		}
	}
	if err := i.db.Close(); err != nil {
		logger.ErrorContext(ctx, "close database failed", "error", err)
	}
}
