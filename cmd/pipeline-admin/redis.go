package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/target/mmk-pipeline/internal/bootstrap"
	"github.com/target/mmk-pipeline/internal/data"
)

var errRedisNotConfigured = errors.New("redis not configured (set REDIS_ENABLED=true)")

func runClearTickLock(cmdCtx *commandContext, _ []string) error {
	if !cmdCtx.Config.Redis.Enabled {
		return errRedisNotConfigured
	}
	client, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{
		RedisConfig: cmdCtx.Config.Redis,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", cerr)
		}
	}()

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	key := cmdCtx.Config.Dispatcher.TickLockKey
	held, err := data.NewRedisTickLock(client, key).ForceRelease(ctx)
	if err != nil {
		return err
	}
	if !held {
		return writef(cmdCtx.Out, "tick lock %q was not held\n", key)
	}
	return writef(cmdCtx.Out, "tick lock %q cleared\n", key)
}
