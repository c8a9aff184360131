package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedMetric struct {
	kind  string
	name  string
	value float64
	tags  map[string]string
}

type recordingSink struct {
	mu      sync.Mutex
	metrics []recordedMetric
}

func (s *recordingSink) record(kind, name string, v float64, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, recordedMetric{kind: kind, name: name, value: v, tags: tags})
}

func (s *recordingSink) Count(name string, value int64, tags map[string]string) {
	s.record("count", name, float64(value), tags)
}

func (s *recordingSink) Gauge(name string, value float64, tags map[string]string) {
	s.record("gauge", name, value, tags)
}

func (s *recordingSink) Timing(name string, value time.Duration, tags map[string]string) {
	s.record("timing", name, float64(value.Milliseconds()), tags)
}

func TestEmitPageFetch_Success(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}

	EmitPageFetch(sink, PageMetric{
		Endpoint: "progressive",
		Sort:     "created_at",
		Priority: "low",
		Cache:    "hit",
		Items:    20,
		Duration: 15 * time.Millisecond,
	})

	require.Len(t, sink.metrics, 3)
	assert.Equal(t, "page.fetch", sink.metrics[0].name)
	assert.Equal(t, map[string]string{
		"endpoint": "progressive",
		"sort":     "created_at",
		"result":   ResultSuccess,
		"priority": "low",
		"cache":    "hit",
	}, sink.metrics[0].tags)
	assert.Equal(t, "page.duration", sink.metrics[1].name)
	assert.Equal(t, float64(15), sink.metrics[1].value)
	assert.Equal(t, "page.items", sink.metrics[2].name)
	assert.Equal(t, float64(20), sink.metrics[2].value)
}

func TestEmitPageFetch_ErrorAndEmpty(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	EmitPageFetch(sink, PageMetric{Endpoint: "list", Sort: "price", Err: errors.New("boom")})
	require.Len(t, sink.metrics, 1)
	assert.Equal(t, ResultError, sink.metrics[0].tags["result"])
	assert.Equal(t, "errors_errorstring", sink.metrics[0].tags["error_class"])

	sink = &recordingSink{}
	EmitPageFetch(sink, PageMetric{Endpoint: "list", Sort: "price"})
	require.Len(t, sink.metrics, 2)
	assert.Equal(t, ResultEmpty, sink.metrics[0].tags["result"])

	EmitPageFetch(nil, PageMetric{}) // nil sink is a no-op
}

func TestCloneTags(t *testing.T) {
	t.Parallel()
	assert.Nil(t, CloneTags(nil))

	src := map[string]string{"a": "1", "": "x"}
	out := CloneTags(src)
	assert.Equal(t, map[string]string{"a": "1"}, out)
	out["a"] = "2"
	assert.Equal(t, "1", src["a"])
}
