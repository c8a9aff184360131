package statsd

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusSink exposes Sink metrics as Prometheus collectors.
//
// Each metric name becomes one vector whose labels are fixed by the first emission;
// later emissions fill missing labels with "" and drop unknown ones.
type PrometheusSink struct {
	namespace string
	registry  *prometheus.Registry
	logger    *slog.Logger

	mu       sync.Mutex
	families map[string]*family
}

type family struct {
	labels    []string
	counter   *prometheus.CounterVec
	gauge     *prometheus.GaugeVec
	histogram *prometheus.HistogramVec
}

var _ Sink = (*PrometheusSink)(nil)

// NewPrometheusSink creates a sink backed by a private registry that also carries
// the Go runtime and process collectors.
func NewPrometheusSink(namespace string, logger *slog.Logger) *PrometheusSink {
	if logger == nil {
		logger = slog.Default()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &PrometheusSink{
		namespace: promName(namespace),
		registry:  reg,
		logger:    logger,
		families:  make(map[string]*family),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (p *PrometheusSink) Registry() *prometheus.Registry {
	return p.registry
}

// Count adds value to a counter named <namespace>_<name>_total.
func (p *PrometheusSink) Count(name string, value int64, tags map[string]string) {
	if p == nil || value < 0 {
		return
	}
	f := p.family(name+"_total", tags, func(n string, labels []string) *family {
		return &family{counter: prometheus.NewCounterVec(prometheus.CounterOpts{Name: n, Help: "Count of " + name}, labels)}
	})
	if f == nil || f.counter == nil {
		return
	}
	f.counter.With(f.values(tags)).Add(float64(value))
}

// Gauge sets a gauge named <namespace>_<name>.
func (p *PrometheusSink) Gauge(name string, value float64, tags map[string]string) {
	if p == nil {
		return
	}
	f := p.family(name, tags, func(n string, labels []string) *family {
		return &family{gauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: n, Help: "Last value of " + name}, labels)}
	})
	if f == nil || f.gauge == nil {
		return
	}
	f.gauge.With(f.values(tags)).Set(value)
}

// Timing observes a histogram named <namespace>_<name>_seconds.
func (p *PrometheusSink) Timing(name string, value time.Duration, tags map[string]string) {
	if p == nil {
		return
	}
	f := p.family(name+"_seconds", tags, func(n string, labels []string) *family {
		return &family{histogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    n,
			Help:    "Duration of " + name,
			Buckets: prometheus.DefBuckets,
		}, labels)}
	})
	if f == nil || f.histogram == nil {
		return
	}
	f.histogram.With(f.values(tags)).Observe(value.Seconds())
}

func (p *PrometheusSink) family(name string, tags map[string]string, build func(string, []string) *family) *family {
	full := promName(name)
	if p.namespace != "" {
		full = p.namespace + "_" + full
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if f, ok := p.families[full]; ok {
		return f
	}

	labels := make([]string, 0, len(tags))
	for k := range tags {
		if key := promName(k); key != "" {
			labels = append(labels, key)
		}
	}
	slices.Sort(labels)
	labels = slices.Compact(labels)

	f := build(full, labels)
	f.labels = labels

	var c prometheus.Collector
	switch {
	case f.counter != nil:
		c = f.counter
	case f.gauge != nil:
		c = f.gauge
	default:
		c = f.histogram
	}
	if err := p.registry.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			p.logger.Debug("prometheus register failed", "metric", full, "error", err)
			return nil
		}
	}
	p.families[full] = f
	return f
}

func (f *family) values(tags map[string]string) prometheus.Labels {
	out := make(prometheus.Labels, len(f.labels))
	for _, l := range f.labels {
		out[l] = ""
	}
	for k, v := range tags {
		key := promName(k)
		if _, ok := out[key]; ok {
			out[key] = strings.TrimSpace(v)
		}
	}
	return out
}

// promName maps a dotted StatsD name to a valid Prometheus identifier.
func promName(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9' && i > 0:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Multi fans every metric out to several sinks. Nil sinks are skipped.
type Multi []Sink

var _ Sink = Multi(nil)

// Count implements Sink.
func (m Multi) Count(name string, value int64, tags map[string]string) {
	for _, s := range m {
		if s != nil {
			s.Count(name, value, tags)
		}
	}
}

// Gauge implements Sink.
func (m Multi) Gauge(name string, value float64, tags map[string]string) {
	for _, s := range m {
		if s != nil {
			s.Gauge(name, value, tags)
		}
	}
}

// Timing implements Sink.
func (m Multi) Timing(name string, value time.Duration, tags map[string]string) {
	for _, s := range m {
		if s != nil {
			s.Timing(name, value, tags)
		}
	}
}
