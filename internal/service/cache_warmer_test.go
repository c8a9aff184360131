package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketplace/catalog-api/config"
)

type countingSink struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (s *countingSink) Count(name string, value int64, _ map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[name] += value
}

func (s *countingSink) Gauge(string, float64, map[string]string)        {}
func (s *countingSink) Timing(string, time.Duration, map[string]string) {}

func newWarmer(t *testing.T, svc *ProductService, cfg config.CacheWarmerConfig) *CacheWarmerService {
	t.Helper()
	w, err := NewCacheWarmerService(CacheWarmerServiceOptions{Products: svc, Config: cfg})
	require.NoError(t, err)
	return w
}

func TestNewCacheWarmerService_RequiresProducts(t *testing.T) {
	_, err := NewCacheWarmerService(CacheWarmerServiceOptions{})
	require.Error(t, err)
}

func TestCacheWarmer_Targets(t *testing.T) {
	svc := newTestService(t, newMemoryRepo(catalog()), nil)
	w := newWarmer(t, svc, config.CacheWarmerConfig{
		Interval:   time.Minute,
		Sorts:      []string{"price", "newest"},
		Categories: []string{"home"},
		PageSize:   12,
	})

	targets := w.Targets()
	require.Len(t, targets, 4)
	assert.Equal(t, "price", targets[0].Sort)
	assert.Nil(t, targets[0].Filter.Category)
	require.NotNil(t, targets[1].Filter.Category)
	assert.Equal(t, "home", *targets[1].Filter.Category)
	assert.Equal(t, "created_at", targets[2].Sort)
	for _, tgt := range targets {
		assert.Equal(t, 12, tgt.Limit)
	}
}

func TestCacheWarmer_WarmOnce(t *testing.T) {
	repo := newMemoryRepo(catalog())
	svc := newTestService(t, repo, nil)
	sink := &countingSink{counts: map[string]int64{}}
	w, err := NewCacheWarmerService(CacheWarmerServiceOptions{
		Products: svc,
		Config:   config.CacheWarmerConfig{Interval: time.Minute, Sorts: []string{"created_at", "price"}, PageSize: 2},
		Metrics:  sink,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, w.WarmOnce(context.Background()))
	assert.Positive(t, repo.loadQueries())
	assert.Equal(t, int64(2), sink.counts["page_cache.warm"])
}

func TestCacheWarmer_WarmsTopMerchants(t *testing.T) {
	items := catalog()
	items[2].MerchantID = "m-2"
	items[3].MerchantID = "m-2"
	items[1].MerchantID = "m-3"
	repo := newMemoryRepo(items)
	w := newWarmer(t, newTestService(t, repo, nil), config.CacheWarmerConfig{
		Interval:  time.Minute,
		Sorts:     []string{"price"},
		Merchants: 2,
	})

	// one price page plus m-2 and then the m-1/m-3 tie broken by id
	assert.Equal(t, 3, w.WarmOnce(context.Background()))

	merchants, err := repo.TopMerchants(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"m-2", "m-1"}, merchants)
}

type noMerchantsRepo struct {
	*memoryRepo
}

func (noMerchantsRepo) TopMerchants(context.Context, int) ([]string, error) {
	return nil, errors.New("statement timeout")
}

func TestCacheWarmer_MerchantListFailureKeepsOtherTargets(t *testing.T) {
	repo := noMerchantsRepo{memoryRepo: newMemoryRepo(catalog())}
	w := newWarmer(t, newTestService(t, repo, nil), config.CacheWarmerConfig{
		Interval:  time.Minute,
		Sorts:     []string{"created_at", "price"},
		Merchants: 5,
	})

	assert.Equal(t, 2, w.WarmOnce(context.Background()))
}

func TestCacheWarmer_WarmOnceToleratesFailures(t *testing.T) {
	svc := newTestService(t, &failingRepo{err: errors.New("connection reset")}, nil)
	w := newWarmer(t, svc, config.CacheWarmerConfig{Interval: time.Minute, Sorts: []string{"price", "rating"}})

	assert.Equal(t, 0, w.WarmOnce(context.Background()))
}

func TestCacheWarmer_RunStopsOnCancel(t *testing.T) {
	repo := newMemoryRepo(catalog())
	w := newWarmer(t, newTestService(t, repo, nil), config.CacheWarmerConfig{Interval: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return repo.loadQueries() > 0 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("warmer did not stop")
	}
}
