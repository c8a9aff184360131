// Package config defines the catalog API's environment-driven configuration. Each concern lives
// in its own file; AppConfig composes them under their env prefixes.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// AppConfig is the root configuration, parsed with github.com/caarlos0/env.
type AppConfig struct {
	// Env names the deployment; "development" (or "dev") switches the default log format to text.
	Env string `env:"APP_ENV" envDefault:"production"`

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Cache    CacheConfig `envPrefix:"PAGE_CACHE_"`

	HTTP       HTTPConfig
	Pagination PaginationConfig `envPrefix:"PAGINATION_"`

	// Services is a comma separated subset of ValidServiceModes.
	Services    string            `env:"SERVICES" envDefault:"http" validate:"required"`
	CacheWarmer CacheWarmerConfig `envPrefix:"CACHE_WARMER_"`

	Observability ObservabilityConfig
}

// IsDevelopment reports whether Env names a development deployment.
func (c *AppConfig) IsDevelopment() bool {
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "development", "dev", "local":
		return true
	default:
		return false
	}
}

// Sanitize clamps loaded values into their working ranges. Call it once after parsing.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Pagination.Sanitize()
	c.Postgres.Sanitize()
	c.Cache.Sanitize()
	c.CacheWarmer.Sanitize()
	c.Observability.Sanitize()

	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "json"
		if c.IsDevelopment() {
			c.Observability.Logging.Format = "text"
		}
	}
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the values Sanitize cannot repair.
func (c *AppConfig) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := ParseServices(c.Services); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// ServiceEnabled reports whether mode is enabled. An unparsable Services value enables nothing.
func (c *AppConfig) ServiceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	return err == nil && services[mode]
}
