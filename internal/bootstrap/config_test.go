package bootstrap

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketplace/catalog-api/config"
)

func writeEnvFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_EnvironmentOverridesDotenv(t *testing.T) {
	path := writeEnvFile(t, "DB_HOST=from-file\nDB_NAME=filedb\nSERVICES=http,cache-warmer\n")

	cfg, err := loadConfig(path, []string{"DB_HOST=from-env", "APP_ENV=dev", "MALFORMED"})
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Postgres.Host)
	assert.Equal(t, "filedb", cfg.Postgres.Name)
	assert.Equal(t, "http,cache-warmer", cfg.Services)
	assert.Equal(t, "text", cfg.Observability.Logging.Format)
}

func TestLoadConfig_MissingDotenvIsIgnored(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.env"), nil)
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, "json", cfg.Observability.Logging.Format)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("unparsable value", func(t *testing.T) {
		_, err := loadConfig(filepath.Join(t.TempDir(), "absent.env"), []string{"DB_PORT=abc"})
		require.ErrorContains(t, err, "parse config")
	})

	t.Run("invalid value", func(t *testing.T) {
		_, err := loadConfig(filepath.Join(t.TempDir(), "absent.env"), []string{"DB_SSL_MODE=sometimes"})
		require.ErrorContains(t, err, "invalid configuration")
	})

	t.Run("unknown service", func(t *testing.T) {
		_, err := loadConfig(filepath.Join(t.TempDir(), "absent.env"), []string{"SERVICES=http,scheduler"})
		require.ErrorContains(t, err, "invalid service name")
	})

	t.Run("dotenv is a directory", func(t *testing.T) {
		_, err := loadConfig(t.TempDir(), nil)
		require.Error(t, err)
	})
}

func TestInitLogger_InstallsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := InitLogger(config.LoggingConfig{Level: "debug", Format: "text"})
	assert.True(t, logger.Enabled(t.Context(), slog.LevelDebug))
	assert.Same(t, logger.Handler(), slog.Default().Handler())

	logger = InitLogger(config.LoggingConfig{Level: "warn", Format: "json"})
	assert.False(t, logger.Enabled(t.Context(), slog.LevelInfo))
}
