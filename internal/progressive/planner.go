// Package progressive decides how much of each listed item to send, keyed to how soon the client
// is expected to render it.
package progressive

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
)

// Priority is the load tier a client requests for a batch of items.
type Priority string

const (
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
	PriorityPrefetch Priority = "prefetch"
)

// ParsePriority maps s to a Priority. Empty or unknown values are treated as high.
func ParsePriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityMedium:
		return PriorityMedium
	case PriorityLow:
		return PriorityLow
	case PriorityPrefetch:
		return PriorityPrefetch
	default:
		return PriorityHigh
	}
}

// Detail is the field set an item is projected to.
type Detail int

const (
	DetailID Detail = iota
	DetailMinimal
	DetailCore
	DetailFull
)

func (d Detail) String() string {
	switch d {
	case DetailID:
		return "id"
	case DetailMinimal:
		return "minimal"
	case DetailCore:
		return "core"
	case DetailFull:
		return "full"
	default:
		return fmt.Sprintf("detail(%d)", int(d))
	}
}

// Options are the client-controlled inputs to Plan.
type Options struct {
	Priority     Priority
	FullDetails  bool
	WithMetadata bool
}

// Policy is the effective projection for a page.
type Policy struct {
	Priority Priority
	Detail   Detail
	// Metadata attaches image metadata (dimensions, alt text, format) to each item.
	Metadata bool
}

// Projections are JMESPath expressions evaluated against each item's JSON document.
// Full detail is the identity and has no expression.
type Projections struct {
	Core     string
	Minimal  string
	ID       string
	Metadata string
}

// DefaultProjections returns the projections for catalog products.
func DefaultProjections() Projections {
	return Projections{
		Core: `{id: id, merchantId: merchantId, title: title, slug: slug, brandName: brandName, ` +
			`price: price, compareAtPrice: compareAtPrice, currency: currency, rating: rating, ` +
			`reviewCount: reviewCount, inStock: inStock, thumbnail: images[0].url}`,
		Minimal:  `{id: id, title: title, price: price, currency: currency, thumbnail: images[0].url}`,
		ID:       `{id: id}`,
		Metadata: `images[].{url: url, width: width, height: height, altText: altText, position: position, format: format}`,
	}
}

type searchFunc func(data any) (any, error)

// Planner resolves a Policy per request and projects pages accordingly.
type Planner struct {
	byDetail map[Detail]searchFunc
	metadata searchFunc
}

// NewPlanner compiles p. Every expression must be present and valid.
func NewPlanner(p Projections) (*Planner, error) {
	exprs := map[Detail]string{
		DetailCore:    p.Core,
		DetailMinimal: p.Minimal,
		DetailID:      p.ID,
	}
	pl := &Planner{byDetail: make(map[Detail]searchFunc, len(exprs))}
	for detail, expr := range exprs {
		fn, err := compile(expr)
		if err != nil {
			return nil, fmt.Errorf("%s projection: %w", detail, err)
		}
		pl.byDetail[detail] = fn
	}
	fn, err := compile(p.Metadata)
	if err != nil {
		return nil, fmt.Errorf("metadata projection: %w", err)
	}
	pl.metadata = fn
	return pl, nil
}

func compile(expr string) (searchFunc, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, errors.New("expression is empty")
	}
	compiled, err := jmespath.Compile(expr)
	if err != nil {
		return nil, err
	}
	return compiled.Search, nil
}

// Plan returns the policy for opts. Explicit overrides win over the tier default.
func (p *Planner) Plan(opts Options) Policy {
	pol := Policy{Priority: ParsePriority(string(opts.Priority))}
	switch pol.Priority {
	case PriorityMedium:
		pol.Detail = DetailCore
	case PriorityLow:
		pol.Detail = DetailMinimal
	case PriorityPrefetch:
		pol.Detail = DetailID
	default:
		pol.Detail = DetailFull
		pol.Metadata = true
	}
	if opts.FullDetails {
		pol.Detail = DetailFull
		pol.Metadata = true
	}
	if opts.WithMetadata {
		pol.Metadata = true
	}
	return pol
}

// Project returns docs projected to pol, in the same order and with the same length.
func (p *Planner) Project(docs []map[string]any, pol Policy) ([]map[string]any, error) {
	out := make([]map[string]any, len(docs))
	for i, doc := range docs {
		projected, err := p.projectOne(doc, pol)
		if err != nil {
			return nil, fmt.Errorf("project item %d: %w", i, err)
		}
		out[i] = projected
	}
	return out, nil
}

func (p *Planner) projectOne(doc map[string]any, pol Policy) (map[string]any, error) {
	if pol.Detail == DetailFull {
		// Full documents already carry image metadata.
		return maps.Clone(doc), nil
	}
	search, ok := p.byDetail[pol.Detail]
	if !ok {
		return nil, fmt.Errorf("no projection for %s detail", pol.Detail)
	}
	res, err := search(doc)
	if err != nil {
		return nil, err
	}
	projected, ok := res.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("projection produced %T, want object", res)
	}
	if pol.Metadata {
		meta, metaErr := p.metadata(doc)
		if metaErr != nil {
			return nil, fmt.Errorf("metadata: %w", metaErr)
		}
		if meta != nil {
			projected["images"] = meta
		}
	}
	return projected, nil
}

// Documents converts items to their JSON object form so they can be projected.
func Documents[T any](items []T) ([]map[string]any, error) {
	docs := make([]map[string]any, len(items))
	for i, it := range items {
		raw, err := json.Marshal(it)
		if err != nil {
			return nil, fmt.Errorf("marshal item %d: %w", i, err)
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("item %d is not a JSON object: %w", i, err)
		}
		docs[i] = doc
	}
	return docs, nil
}
