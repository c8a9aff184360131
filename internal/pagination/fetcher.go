package pagination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Query is a single keyset read a Source must execute.
type Query[F any] struct {
	Filter F
	Sort   SortSpec
	// After restricts rows to those strictly after it in (Sort.Key, id) order,
	// or strictly before it when Backward is set. Nil means no bound.
	After *Marker
	// Backward walks the order in reverse; rows are returned nearest-first.
	Backward bool
	Limit    int
}

// ErrCursorMismatch is returned by a Source when a well-formed cursor cannot seek under the
// requested sort, for example a timestamp key replayed with a numeric sort. The fetcher
// restarts from the beginning instead of failing the request.
var ErrCursorMismatch = errors.New("cursor does not fit the sort")

// Source executes keyset reads against a backing store.
//
// Implementations must order by (Sort.Key, id) in Sort.Direction (reversed when Backward is set)
// and must apply every part of the filter, including exclusions, before the limit. A cursor they
// cannot seek with is reported as ErrCursorMismatch.
type Source[T, F any] interface {
	Query(ctx context.Context, q Query[F]) ([]T, error)
	Count(ctx context.Context, filter F) (int, error)
}

// MarkerFunc extracts the position of item under the given sort key.
type MarkerFunc[T any] func(item T, sortKey string) (Marker, error)

// FetcherOptions bundles dependencies for NewFetcher.
type FetcherOptions[T, F any] struct {
	Source Source[T, F]  // Required
	Marker MarkerFunc[T] // Required
	Logger *slog.Logger  // Optional
}

// Fetcher serves bounded pages with next/previous cursors from a Source.
type Fetcher[T, F any] struct {
	source Source[T, F]
	marker MarkerFunc[T]
	logger *slog.Logger
}

// NewFetcher constructs a Fetcher.
func NewFetcher[T, F any](opts FetcherOptions[T, F]) (*Fetcher[T, F], error) {
	if opts.Source == nil {
		return nil, errors.New("source is required")
	}
	if opts.Marker == nil {
		return nil, errors.New("marker func is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher[T, F]{
		source: opts.Source,
		marker: opts.Marker,
		logger: logger.With("component", "page_fetcher"),
	}, nil
}

type window[T any] struct {
	items   []T
	hasMore bool
	next    *string
	prev    *string
}

// Fetch returns the page selected by req under filter and sort.
//
// Undecodable cursors restart from the beginning and out-of-range limits are clamped; neither
// is reported as an error. Only backing-store failures are returned.
func (f *Fetcher[T, F]) Fetch(ctx context.Context, req Request, filter F, sort SortSpec) (*Page[T], error) {
	sort = sort.normalized()
	if sort.Key == "" {
		return nil, errors.New("sort key is required")
	}
	limit := NormalizeLimit(req.Limit)

	marker := DecodeCursor(req.Cursor)
	if marker == nil && req.Cursor != "" {
		f.logger.DebugContext(ctx, "ignoring undecodable cursor", "cursor_len", len(req.Cursor))
	}

	var (
		win   window[T]
		total *int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		win, err = f.window(gctx, filter, sort, marker, limit)
		return err
	})
	if req.WithCount {
		g.Go(func() error {
			n, err := f.source.Count(gctx, filter)
			if err != nil {
				return fmt.Errorf("count: %w", err)
			}
			total = &n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}

	items := win.items
	if items == nil {
		items = make([]T, 0)
	}
	return &Page[T]{
		Items:      items,
		NextCursor: win.next,
		PrevCursor: win.prev,
		HasMore:    win.hasMore,
		TotalCount: total,
	}, nil
}

func (f *Fetcher[T, F]) window(
	ctx context.Context,
	filter F,
	sort SortSpec,
	marker *Marker,
	limit int,
) (window[T], error) {
	backward := marker != nil && marker.Before

	rows, err := f.source.Query(ctx, Query[F]{
		Filter:   filter,
		Sort:     sort,
		After:    marker,
		Backward: backward,
		Limit:    limit + 1, // one extra row tells us whether another page exists
	})
	if errors.Is(err, ErrCursorMismatch) && marker != nil {
		f.logger.DebugContext(ctx, "cursor does not fit sort, starting from the beginning",
			"sort", sort.Key, "error", err)
		return f.window(ctx, filter, sort, nil, limit)
	}
	if err != nil {
		return window[T]{}, fmt.Errorf("query: %w", err)
	}

	extra := len(rows) > limit
	if extra {
		rows = rows[:limit]
	}
	if backward {
		slices.Reverse(rows)
	}
	if len(rows) == 0 {
		return window[T]{items: rows}, nil
	}

	first, err := f.marker(rows[0], sort.Key)
	if err != nil {
		return window[T]{}, fmt.Errorf("first row marker: %w", err)
	}
	last, err := f.marker(rows[len(rows)-1], sort.Key)
	if err != nil {
		return window[T]{}, fmt.Errorf("last row marker: %w", err)
	}

	var hasMore, hasPrev bool
	if backward {
		hasPrev = extra
		// The anchor normally follows this page, but it may have been deleted since.
		hasMore, err = f.exists(ctx, filter, sort, last, false)
	} else {
		hasMore = extra
		if marker != nil {
			hasPrev, err = f.exists(ctx, filter, sort, first, true)
		}
	}
	if err != nil {
		return window[T]{}, err
	}

	win := window[T]{items: rows, hasMore: hasMore}
	if hasMore {
		token, encErr := EncodeCursor(last)
		if encErr != nil {
			return window[T]{}, fmt.Errorf("encode next cursor: %w", encErr)
		}
		win.next = &token
	}
	if hasPrev {
		first.Before = true
		token, encErr := EncodeCursor(first)
		if encErr != nil {
			return window[T]{}, fmt.Errorf("encode prev cursor: %w", encErr)
		}
		win.prev = &token
	}
	return win, nil
}

// exists reports whether at least one row lies beyond m in the given direction.
func (f *Fetcher[T, F]) exists(ctx context.Context, filter F, sort SortSpec, m Marker, backward bool) (bool, error) {
	rows, err := f.source.Query(ctx, Query[F]{
		Filter:   filter,
		Sort:     sort,
		After:    &m,
		Backward: backward,
		Limit:    1,
	})
	if err != nil {
		return false, fmt.Errorf("probe: %w", err)
	}
	return len(rows) > 0, nil
}
