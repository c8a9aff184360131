package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/marketplace/catalog-api/config"
)

// InitLogger initializes the structured logger and installs it as the slog default.
func InitLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// envFileVar names an alternative dotenv file; the default is ./.env.
const envFileVar = "CATALOG_ENV_FILE"

// LoadConfig reads configuration from the process environment, falling back to values in a
// dotenv file for keys the environment leaves unset. A missing dotenv file is not an error.
func LoadConfig() (config.AppConfig, error) {
	path := os.Getenv(envFileVar)
	if path == "" {
		path = ".env"
	}
	return loadConfig(path, os.Environ())
}

func loadConfig(envFile string, environ []string) (config.AppConfig, error) {
	vars, err := godotenv.Read(envFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		vars = map[string]string{}
	case err != nil:
		return config.AppConfig{}, fmt.Errorf("read %s: %w", envFile, err)
	}
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}

	var cfg config.AppConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ValidateServiceConfig fails unless SERVICES names at least one known service.
func ValidateServiceConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("service config is required")
	}
	if _, err := cfg.GetEnabledServices(); err != nil {
		return fmt.Errorf("invalid service configuration: %w", err)
	}
	return nil
}

// GetEnabledServices lists enabled service names in a stable order for startup logs. An
// invalid configuration yields an empty list; ValidateServiceConfig reports the error.
func GetEnabledServices(cfg *config.AppConfig) []string {
	if cfg == nil {
		return []string{}
	}
	names := []string{}
	for _, mode := range config.ValidServiceModes() {
		if cfg.ServiceEnabled(mode) {
			names = append(names, string(mode))
		}
	}
	slices.Sort(names)
	return names
}
