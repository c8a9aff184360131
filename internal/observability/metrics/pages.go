// Package metrics emits the catalog's standard metrics through a statsd.Sink.
package metrics

import (
	"maps"
	"time"

	obserrors "github.com/marketplace/catalog-api/internal/observability/errors"
	"github.com/marketplace/catalog-api/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultEmpty   = "empty"
)

// PageMetric captures one served page for metric emission.
type PageMetric struct {
	// Endpoint is the feed the page belongs to (list, progressive, prefetch).
	Endpoint string
	Sort     string
	Priority string
	// Cache is hit, miss or bypass.
	Cache    string
	Items    int
	Duration time.Duration
	Err      error
}

// EmitPageFetch emits standardised page fetch metrics.
func EmitPageFetch(sink statsd.Sink, in PageMetric) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	switch {
	case in.Err != nil:
		result = ResultError
	case in.Items == 0:
		result = ResultEmpty
	}

	tags := map[string]string{
		"endpoint": in.Endpoint,
		"sort":     in.Sort,
		"result":   result,
	}
	if in.Priority != "" {
		tags["priority"] = in.Priority
	}
	if in.Cache != "" {
		tags["cache"] = in.Cache
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("page.fetch", 1, tags)
	if in.Duration > 0 {
		sink.Timing("page.duration", in.Duration, CloneTags(tags))
	}
	if in.Err == nil {
		sink.Gauge("page.items", float64(in.Items), CloneTags(tags))
	}
}

// EmitCacheInvalidation records a bump of the page cache generation.
func EmitCacheInvalidation(sink statsd.Sink, reason string) {
	if sink == nil {
		return
	}
	sink.Count("page_cache.invalidate", 1, map[string]string{"reason": reason})
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := maps.Clone(src)
	delete(out, "")
	return out
}
