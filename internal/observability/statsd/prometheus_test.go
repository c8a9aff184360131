package statsd

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"page.fetch":   "page_fetch",
		" error-class": "error_class",
		"9lives":       "_lives",
		"ok_name2":     "ok_name2",
	}
	for in, want := range tests {
		assert.Equal(t, want, promName(in), "input %q", in)
	}
}

func TestPrometheusSink_Emits(t *testing.T) {
	t.Parallel()
	sink := NewPrometheusSink("catalog", nil)

	tags := map[string]string{"endpoint": "list", "result": "success"}
	sink.Count("page.fetch", 2, tags)
	sink.Count("page.fetch", 1, tags)
	sink.Count("page.fetch", 1, map[string]string{"endpoint": "list", "result": "error", "error_class": "timeout"})
	sink.Gauge("page.items", 20, tags)
	sink.Timing("page.duration", 25*time.Millisecond, tags)

	f := sink.families["catalog_page_fetch_total"]
	require.NotNil(t, f)
	assert.Equal(t, []string{"endpoint", "result"}, f.labels)
	assert.InDelta(t, 3.0, testutil.ToFloat64(f.counter.WithLabelValues("list", "success")), 0.0001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(f.counter.WithLabelValues("list", "error")), 0.0001)
	assert.InDelta(t, 20.0, testutil.ToFloat64(sink.families["catalog_page_items"].gauge.WithLabelValues("list", "success")), 0.0001)

	rec := httptest.NewRecorder()
	sink.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "catalog_page_duration_seconds_bucket"))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}

type countingSink struct{ counts, gauges, timings int }

func (c *countingSink) Count(string, int64, map[string]string) { c.counts++ }
func (c *countingSink) Gauge(string, float64, map[string]string) { c.gauges++ }
func (c *countingSink) Timing(string, time.Duration, map[string]string) { c.timings++ }

func TestMulti(t *testing.T) {
	t.Parallel()
	a, b := &countingSink{}, &countingSink{}
	m := Multi{a, nil, b}

	m.Count("x", 1, nil)
	m.Gauge("x", 1, nil)
	m.Timing("x", time.Second, nil)

	for _, s := range []*countingSink{a, b} {
		assert.Equal(t, 1, s.counts)
		assert.Equal(t, 1, s.gauges)
		assert.Equal(t, 1, s.timings)
	}
}
