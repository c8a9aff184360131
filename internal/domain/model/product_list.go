//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

// ListProductsRequest selects one page of the product listing.
type ListProductsRequest struct {
	Cursor    string        `json:"cursor,omitempty"`
	Limit     int           `json:"limit,omitempty"`
	WithCount bool          `json:"withCount,omitempty"`
	Sort      string        `json:"sort,omitempty"`
	Direction string        `json:"dir,omitempty"`
	Filter    ProductFilter `json:"filter"`
}

// ProgressiveLoadRequest selects one page of a progressively loaded feed.
// Priority picks the default detail tier; FullDetails and WithMetadata override it.
type ProgressiveLoadRequest struct {
	ListProductsRequest

	Priority     string `json:"priority,omitempty"`
	FullDetails  bool   `json:"fullDetails,omitempty"`
	WithMetadata bool   `json:"withMetadata,omitempty"`
}
