package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marketplace/catalog-api/internal/domain/model"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeCacheWarmer periodically preloads popular first pages into the page cache.
	ServiceModeCacheWarmer ServiceMode = "cache-warmer"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeCacheWarmer}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for part := range strings.SplitSeq(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeCacheWarmer:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, cache-warmer)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// CacheWarmerConfig controls the cache warmer service.
type CacheWarmerConfig struct {
	// Interval between warm runs. It should stay below the page cache TTL.
	Interval time.Duration `env:"INTERVAL" envDefault:"4m"`

	// Sorts are the listing orders whose first page is preloaded.
	Sorts []string `env:"SORTS" envDefault:"created_at,price,rating"`

	// Categories additionally get a first page per sort.
	Categories []string `env:"CATEGORIES" envDefault:""`

	// PageSize should match the limit clients ask for, otherwise warmed entries are never hit.
	PageSize int `env:"PAGE_SIZE" envDefault:"20"`

	// Merchants is how many of the largest storefronts get a warmed newest-first page. 0 disables.
	Merchants int `env:"MERCHANTS" envDefault:"0"`
}

// Sanitize applies guardrails to cache warmer configuration values.
func (c *CacheWarmerConfig) Sanitize() {
	if c.Interval < time.Second {
		c.Interval = time.Second
	}
	sorts := make([]string, 0, len(c.Sorts))
	for _, s := range c.Sorts {
		if s = strings.TrimSpace(s); s != "" {
			sorts = append(sorts, model.ParseProductSort(s))
		}
	}
	if len(sorts) == 0 {
		sorts = []string{model.ProductSortCreatedAt}
	}
	c.Sorts = compactStrings(sorts)

	categories := make([]string, 0, len(c.Categories))
	for _, s := range c.Categories {
		if s = strings.TrimSpace(s); s != "" {
			categories = append(categories, s)
		}
	}
	c.Categories = compactStrings(categories)

	if c.PageSize < 1 {
		c.PageSize = 20
	}
	if c.Merchants < 0 {
		c.Merchants = 0
	}
}

// compactStrings removes duplicates while keeping first-seen order.
func compactStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
