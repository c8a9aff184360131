package pagination

import "strings"

const (
	// MinLimit is the smallest page size ever served.
	MinLimit = 1
	// MaxLimit is the largest page size ever served.
	MaxLimit = 100
	// DefaultLimit applies when a client does not ask for a page size.
	DefaultLimit = 20
)

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ParseDirection maps user input to a Direction, falling back to def for anything unrecognised.
func ParseDirection(s string, def Direction) Direction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending":
		return Ascending
	case "desc", "descending":
		return Descending
	default:
		return def
	}
}

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	if d == Descending {
		return Ascending
	}
	return Descending
}

// SortSpec names the primary sort key. Sources always append the row id as a tie-breaker,
// so (Key, id) is a total order and cursors never skip or repeat rows.
type SortSpec struct {
	Key       string
	Direction Direction
}

func (s SortSpec) normalized() SortSpec {
	if s.Direction != Descending {
		s.Direction = Ascending
	}
	s.Key = strings.TrimSpace(s.Key)
	return s
}

// Request carries the client-controlled paging parameters.
type Request struct {
	Cursor    string
	Limit     int
	WithCount bool
}

// NormalizeLimit clamps limit into [MinLimit, MaxLimit]. Out-of-range values are never rejected.
func NormalizeLimit(limit int) int {
	switch {
	case limit < MinLimit:
		return MinLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Page is one bounded window of an ordered sequence.
type Page[T any] struct {
	Items      []T     `json:"items"`
	NextCursor *string `json:"nextCursor"`
	PrevCursor *string `json:"prevCursor"`
	HasMore    bool    `json:"hasMore"`
	// TotalCount is only populated when the request asked for it.
	TotalCount *int `json:"totalCount"`
}
