package bootstrap

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-pipeline/config"
)

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("SERVICES", "http,sweeper")
	t.Setenv("DISPATCHER_POLL_INTERVAL", "1ms")
	t.Setenv("SWEEPER_TIMEZONE", "Nowhere/Special")
	t.Setenv("LOG_LEVEL", "LOUD")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"http", "sweeper"}, GetEnabledServices(&cfg))
	assert.Equal(t, "UTC", cfg.Sweeper.Timezone)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Positive(t, cfg.Dispatcher.PollInterval.Milliseconds())
	assert.NoError(t, ValidateServiceConfig(&cfg))
}

func TestValidateServiceConfig(t *testing.T) {
	assert.Error(t, ValidateServiceConfig(nil))
	assert.Error(t, ValidateServiceConfig(&config.AppConfig{Services: "http,rules-engine"}))
	assert.Error(t, ValidateServiceConfig(&config.AppConfig{Services: " "}))
	assert.Empty(t, GetEnabledServices(&config.AppConfig{Services: "bogus"}))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.AppConfig{LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	logger = newLogger(&buf, &config.AppConfig{LogLevel: "debug", IsDev: true})
	logger.Debug("dev line")
	assert.Contains(t, buf.String(), "msg=\"dev line\"")

	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}
