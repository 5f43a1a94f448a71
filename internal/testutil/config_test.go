package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTestDBConfig(t *testing.T) {
	t.Run("defaults to local test database port 55432", func(t *testing.T) {
		for _, k := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME"} {
			t.Setenv(k, "")
		}

		cfg := DefaultTestDBConfig()
		assert.Equal(t, TestDBConfig{
			Host:     "localhost",
			Port:     "55432",
			User:     "pipeline",
			Password: "pipeline",
			DBName:   "pipeline",
		}, cfg)
	})

	t.Run("respects environment overrides", func(t *testing.T) {
		t.Setenv("TEST_DB_HOST", "postgres")
		t.Setenv("TEST_DB_PORT", "5432")
		t.Setenv("TEST_DB_NAME", "ci")

		cfg := DefaultTestDBConfig()
		assert.Equal(t, "postgres", cfg.Host)
		assert.Equal(t, "5432", cfg.Port)
		assert.Equal(t, "ci", cfg.DBName)
	})
}

func TestCleanupTablesOrder(t *testing.T) {
	// customers is referenced by every other table and must be cleared last.
	assert.Equal(t, "customers", cleanupTables[len(cleanupTables)-1])
}

func TestTestDBConfigDSN(t *testing.T) {
	t.Setenv("DB_SSL_MODE", "")
	cfg := TestDBConfig{Host: "db", Port: "5432", User: "u", Password: "p@ss", DBName: "pipeline"}

	assert.Equal(t, "postgres://u:p%40ss@db:5432/pipeline?sslmode=disable", cfg.DSN(""))
	assert.Equal(t,
		"postgres://u:p%40ss@db:5432/pipeline?search_path=t_abc%2Cpublic&sslmode=disable",
		cfg.DSN("t_abc"))
}
