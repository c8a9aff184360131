package pagination

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testItem struct {
	ID string
	T  int
}

type testFilter struct {
	Exclude map[string]bool
}

func testMarker(it testItem, sortKey string) (Marker, error) {
	if sortKey != "t" {
		return Marker{}, fmt.Errorf("unsupported sort key %q", sortKey)
	}
	return Marker{SortKey: float64(it.T), ID: it.ID}, nil
}

func testMatch(it testItem, f testFilter) bool {
	return !f.Exclude[it.ID]
}

func newTestFetcher(t *testing.T, items []testItem) *Fetcher[testItem, testFilter] {
	t.Helper()
	f, err := NewFetcher(FetcherOptions[testItem, testFilter]{
		Source: NewMemorySource(items, testMarker, testMatch),
		Marker: testMarker,
	})
	require.NoError(t, err)
	return f
}

func abcd() []testItem {
	return []testItem{{ID: "D", T: 4}, {ID: "B", T: 2}, {ID: "A", T: 1}, {ID: "C", T: 3}}
}

func ids(items []testItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

var byT = SortSpec{Key: "t", Direction: Ascending}

func TestFetch_TwoPageScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newTestFetcher(t, abcd())

	page1, err := f.Fetch(ctx, Request{Limit: 2}, testFilter{}, byT)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids(page1.Items))
	assert.True(t, page1.HasMore)
	assert.Nil(t, page1.PrevCursor)
	assert.Nil(t, page1.TotalCount)
	require.NotNil(t, page1.NextCursor)
	assert.Equal(t, &Marker{SortKey: 2.0, ID: "B"}, DecodeCursor(*page1.NextCursor))

	page2, err := f.Fetch(ctx, Request{Cursor: *page1.NextCursor, Limit: 2}, testFilter{}, byT)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "D"}, ids(page2.Items))
	assert.False(t, page2.HasMore)
	assert.Nil(t, page2.NextCursor)
	require.NotNil(t, page2.PrevCursor)

	back, err := f.Fetch(ctx, Request{Cursor: *page2.PrevCursor, Limit: 2}, testFilter{}, byT)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids(back.Items))
	assert.True(t, back.HasMore)
	assert.Nil(t, back.PrevCursor)
	require.NotNil(t, back.NextCursor)
	assert.Equal(t, *page1.NextCursor, *back.NextCursor)
}

func TestFetch_LimitIsClamped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	items := make([]testItem, 150)
	for i := range items {
		items[i] = testItem{ID: fmt.Sprintf("id-%03d", i), T: i}
	}
	f := newTestFetcher(t, items)

	tests := []struct {
		limit int
		want  int
	}{
		{limit: 0, want: 1},
		{limit: -5, want: 1},
		{limit: 500, want: 100},
		{limit: 100, want: 100},
		{limit: 37, want: 37},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("limit=%d", tt.limit), func(t *testing.T) {
			page, err := f.Fetch(ctx, Request{Limit: tt.limit}, testFilter{}, byT)
			require.NoError(t, err)
			assert.Len(t, page.Items, tt.want)
			assert.True(t, page.HasMore)
		})
	}
}

func TestFetch_ChainedPagesMatchSingleFetch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// Many duplicate sort keys: only the id tie-breaker keeps the order total.
	items := make([]testItem, 0, 57)
	for i := range 57 {
		items = append(items, testItem{ID: fmt.Sprintf("x%02d", (i*17)%57), T: i % 5})
	}
	f := newTestFetcher(t, items)

	for _, dir := range []Direction{Ascending, Descending} {
		sort := SortSpec{Key: "t", Direction: dir}
		all, err := f.Fetch(ctx, Request{Limit: MaxLimit}, testFilter{}, sort)
		require.NoError(t, err)
		require.Len(t, all.Items, 57)
		assert.False(t, all.HasMore)
		assert.Nil(t, all.NextCursor)

		for _, limit := range []int{1, 4, 10, 56, 57} {
			var chained []string
			seen := map[string]bool{}
			cursor := ""
			for pages := 0; ; pages++ {
				require.Less(t, pages, 100, "pagination did not terminate")
				page, fetchErr := f.Fetch(ctx, Request{Cursor: cursor, Limit: limit}, testFilter{}, sort)
				require.NoError(t, fetchErr)
				require.LessOrEqual(t, len(page.Items), limit)
				for _, it := range page.Items {
					require.False(t, seen[it.ID], "duplicate id %s", it.ID)
					seen[it.ID] = true
					chained = append(chained, it.ID)
				}
				if !page.HasMore {
					assert.Nil(t, page.NextCursor)
					break
				}
				require.NotNil(t, page.NextCursor)
				cursor = *page.NextCursor
			}
			assert.Equal(t, ids(all.Items), chained, "dir=%s limit=%d", dir, limit)
		}
	}
}

func TestFetch_ExcludeAppliesBeforeLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newTestFetcher(t, abcd())
	filter := testFilter{Exclude: map[string]bool{"B": true}}

	page1, err := f.Fetch(ctx, Request{Limit: 2}, filter, byT)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, ids(page1.Items))
	assert.True(t, page1.HasMore)
	require.NotNil(t, page1.NextCursor)
	assert.Equal(t, "C", DecodeCursor(*page1.NextCursor).ID)

	page2, err := f.Fetch(ctx, Request{Cursor: *page1.NextCursor, Limit: 2}, filter, byT)
	require.NoError(t, err)
	assert.Equal(t, []string{"D"}, ids(page2.Items))
	assert.False(t, page2.HasMore)
	assert.Nil(t, page2.NextCursor)
}

func TestFetch_InvalidCursorStartsFromBeginning(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, abcd())

	page, err := f.Fetch(context.Background(), Request{Cursor: "garbage-not-base64-json", Limit: 3}, testFilter{}, byT)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, ids(page.Items))
	assert.Nil(t, page.PrevCursor)
}

func TestFetch_CursorOfOtherSortStartsFromBeginning(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, abcd())

	// A text-keyed cursor, as minted under a title sort, replayed under the numeric sort.
	token, err := EncodeCursor(Marker{SortKey: "Blue mug", ID: "B"})
	require.NoError(t, err)

	page, err := f.Fetch(context.Background(), Request{Cursor: token, Limit: 2}, testFilter{}, byT)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids(page.Items))
	assert.True(t, page.HasMore)
	assert.Nil(t, page.PrevCursor)
}

type mismatchOnceSource struct {
	*MemorySource[testItem, testFilter]
	seen []*Marker
}

func (s *mismatchOnceSource) Query(ctx context.Context, q Query[testFilter]) ([]testItem, error) {
	s.seen = append(s.seen, q.After)
	if q.After != nil && q.After.ID == "stale" {
		return nil, fmt.Errorf("seek key: %w", ErrCursorMismatch)
	}
	return s.MemorySource.Query(ctx, q)
}

func TestFetch_SourceMismatchRetriesWithoutCursor(t *testing.T) {
	t.Parallel()
	src := &mismatchOnceSource{MemorySource: NewMemorySource(abcd(), testMarker, testMatch)}
	f, err := NewFetcher(FetcherOptions[testItem, testFilter]{Source: src, Marker: testMarker})
	require.NoError(t, err)

	token, err := EncodeCursor(Marker{SortKey: 2.0, ID: "stale"})
	require.NoError(t, err)

	page, err := f.Fetch(context.Background(), Request{Cursor: token, Limit: 3}, testFilter{}, byT)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, ids(page.Items))
	require.Len(t, src.seen, 2)
	assert.Nil(t, src.seen[1])
}

func TestFetch_WithCount(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, abcd())
	filter := testFilter{Exclude: map[string]bool{"A": true}}

	page, err := f.Fetch(context.Background(), Request{Limit: 1, WithCount: true}, filter, byT)
	require.NoError(t, err)
	require.NotNil(t, page.TotalCount)
	assert.Equal(t, 3, *page.TotalCount)
	assert.Equal(t, []string{"B"}, ids(page.Items))
}

func TestFetch_EmptySource(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, nil)

	page, err := f.Fetch(context.Background(), Request{Limit: 10, WithCount: true}, testFilter{}, byT)
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)
	assert.Nil(t, page.NextCursor)
	assert.Nil(t, page.PrevCursor)
	require.NotNil(t, page.TotalCount)
	assert.Zero(t, *page.TotalCount)
}

type failingSource struct{ err error }

func (s failingSource) Query(context.Context, Query[testFilter]) ([]testItem, error) { return nil, s.err }
func (s failingSource) Count(context.Context, testFilter) (int, error) { return 0, s.err }

func TestFetch_SourceErrorPropagates(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection reset")
	f, err := NewFetcher(FetcherOptions[testItem, testFilter]{Source: failingSource{err: boom}, Marker: testMarker})
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), Request{Limit: 5, WithCount: true}, testFilter{}, byT)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestFetch_RequiresSortKey(t *testing.T) {
	t.Parallel()
	f := newTestFetcher(t, abcd())

	_, err := f.Fetch(context.Background(), Request{Limit: 5}, testFilter{}, SortSpec{})
	assert.Error(t, err)
}

func TestNewFetcher_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewFetcher(FetcherOptions[testItem, testFilter]{Marker: testMarker})
	assert.Error(t, err)

	_, err = NewFetcher(FetcherOptions[testItem, testFilter]{Source: NewMemorySource[testItem, testFilter](nil, testMarker, nil)})
	assert.Error(t, err)
}

func TestParseDirection(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Ascending, ParseDirection("ASC", Descending))
	assert.Equal(t, Descending, ParseDirection(" desc ", Ascending))
	assert.Equal(t, Descending, ParseDirection("sideways", Descending))
	assert.Equal(t, Ascending, Descending.Reverse())
}
