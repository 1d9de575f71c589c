package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/landed-cost/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(config.Options{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, config.DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "table", cfg.Oracle.Provider)
	assert.Equal(t, 4, cfg.Calculation.CompareConcurrency)
}

func TestLoad_FileThenEnv(t *testing.T) {
	// GIVEN: A YAML file and an environment override
	// THEN: The environment wins over the file, the file over defaults

	path := writeFile(t, "config.yaml", `
server:
  port: 9090
  read_timeout: 5s
oracle:
  provider: http
  base_url: http://oracle.internal
  rps: 2.5
calculation:
  compare_concurrency: 8
`)
	t.Setenv("LANDED_SERVER_PORT", "7070")
	t.Setenv("LANDED_STORAGE_DRIVER", "memory")

	cfg, err := config.Load(config.Options{ConfigFile: path, EnvFile: filepath.Join(t.TempDir(), "none")})
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "http", cfg.Oracle.Provider)
	assert.Equal(t, 2.5, cfg.Oracle.RPS)
	assert.Equal(t, 8, cfg.Calculation.CompareConcurrency)
	assert.Equal(t, config.DriverMemory, cfg.Storage.Driver)
}

func TestLoad_DotEnv(t *testing.T) {
	envFile := writeFile(t, ".env", "LANDED_LOGGING_LEVEL=debug\nLANDED_ORACLE_FREIGHT_PERCENT=7\n")
	t.Setenv("LANDED_LOGGING_LEVEL", "warn")
	// Cleared after the test; godotenv sets it for the process
	t.Setenv("LANDED_ORACLE_FREIGHT_PERCENT", "")
	require.NoError(t, os.Unsetenv("LANDED_ORACLE_FREIGHT_PERCENT"))

	cfg, err := config.Load(config.Options{EnvFile: envFile})
	require.NoError(t, err)

	// Process environment wins over .env
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "7", cfg.Oracle.FreightPercent)
}

func TestLoad_DatabaseURLFallback(t *testing.T) {
	t.Setenv("LANDED_STORAGE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/landed")

	cfg, err := config.Load(config.Options{EnvFile: filepath.Join(t.TempDir(), "none")})
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/landed", cfg.Storage.DatabaseURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"bad port", func(c *config.Config) { c.Server.Port = 0 }},
		{"unknown driver", func(c *config.Config) { c.Storage.Driver = "mongo" }},
		{"postgres without url", func(c *config.Config) { c.Storage.Driver = "postgres" }},
		{"http without url", func(c *config.Config) { c.Oracle.Provider = "http" }},
		{"unknown provider", func(c *config.Config) { c.Oracle.Provider = "fax" }},
		{"zero concurrency", func(c *config.Config) { c.Calculation.CompareConcurrency = 0 }},
		{"bad level", func(c *config.Config) { c.Logging.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := config.Default()
	assert.NoError(t, cfg.Validate())
}

func TestNewLogger(t *testing.T) {
	logger, err := config.LoggingConfig{Level: "debug", Development: false}.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = config.LoggingConfig{Level: "chatty"}.NewLogger()
	assert.Error(t, err)
}
