package pagination

import (
	"cmp"
	"context"
	"fmt"
	"slices"
)

// MemorySource is a Source over an in-memory slice. It is the reference behaviour a
// store-backed Source must match.
type MemorySource[T, F any] struct {
	items  []T
	marker MarkerFunc[T]
	match  func(item T, filter F) bool
}

// NewMemorySource returns a MemorySource over a copy of items. match may be nil to accept every row.
func NewMemorySource[T, F any](items []T, marker MarkerFunc[T], match func(T, F) bool) *MemorySource[T, F] {
	return &MemorySource[T, F]{
		items:  slices.Clone(items),
		marker: marker,
		match:  match,
	}
}

type keyedRow[T any] struct {
	item T
	pos  Marker
}

// Query implements Source.
func (s *MemorySource[T, F]) Query(ctx context.Context, q Query[F]) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.filtered(q.Filter, q.Sort.Key)
	if err != nil {
		return nil, err
	}
	if q.After != nil && len(rows) > 0 && !sameKeyKind(rows[0].pos.SortKey, q.After.SortKey) {
		return nil, fmt.Errorf("%w: %T key for %q", ErrCursorMismatch, q.After.SortKey, q.Sort.Key)
	}

	dir := q.Sort.Direction
	if q.Backward {
		dir = dir.Reverse()
	}
	slices.SortStableFunc(rows, func(a, b keyedRow[T]) int {
		c := CompareMarkers(a.pos, b.pos)
		if dir == Descending {
			return -c
		}
		return c
	})

	out := make([]T, 0, min(max(q.Limit, 0), len(rows)))
	for _, r := range rows {
		if q.After != nil {
			c := CompareMarkers(r.pos, *q.After)
			if dir == Descending {
				c = -c
			}
			if c <= 0 {
				continue
			}
		}
		if len(out) == q.Limit {
			break
		}
		out = append(out, r.item)
	}
	return out, nil
}

// Count implements Source.
func (s *MemorySource[T, F]) Count(ctx context.Context, filter F) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := 0
	for _, item := range s.items {
		if s.match == nil || s.match(item, filter) {
			n++
		}
	}
	return n, nil
}

func (s *MemorySource[T, F]) filtered(filter F, sortKey string) ([]keyedRow[T], error) {
	rows := make([]keyedRow[T], 0, len(s.items))
	for _, item := range s.items {
		if s.match != nil && !s.match(item, filter) {
			continue
		}
		pos, err := s.marker(item, sortKey)
		if err != nil {
			return nil, fmt.Errorf("row marker: %w", err)
		}
		rows = append(rows, keyedRow[T]{item: item, pos: pos})
	}
	return rows, nil
}

// CompareMarkers orders markers by sort key, then id.
// Numbers compare numerically, strings lexically; numbers sort before strings.
func CompareMarkers(a, b Marker) int {
	if c := compareKeys(a.SortKey, b.SortKey); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// sameKeyKind reports whether both keys are numbers or both are strings.
func sameKeyKind(a, b any) bool {
	_, aNum := a.(float64)
	_, bNum := b.(float64)
	return aNum == bNum
}

func compareKeys(a, b any) int {
	af, aNum := a.(float64)
	bf, bNum := b.(float64)
	switch {
	case aNum && bNum:
		return cmp.Compare(af, bf)
	case aNum:
		return -1
	case bNum:
		return 1
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
