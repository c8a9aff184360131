package httpx

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/marketplace/catalog-api/internal/domain/model"
	"github.com/marketplace/catalog-api/internal/pagination"
	"github.com/marketplace/catalog-api/internal/service"
)

// DefaultPageLimit is used when a request carries no usable limit.
const DefaultPageLimit = 20

// ProductHandlers serves the product listing and progressive feed endpoints.
type ProductHandlers struct {
	Svc          *service.ProductService
	DefaultLimit int
	Logger       *slog.Logger
}

func (h *ProductHandlers) defaultLimit() int {
	if h.DefaultLimit > 0 {
		return h.DefaultLimit
	}
	return DefaultPageLimit
}

func (h *ProductHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	WriteAppError(w, h.Logger.With("path", r.URL.Path), err)
}

// List handles GET /api/products.
func (h *ProductHandlers) List(w http.ResponseWriter, r *http.Request) {
	req, err := parseListRequest(r.URL.Query(), h.defaultLimit())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.Svc.List(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, page)
}

// Get handles GET /api/products/{id}.
func (h *ProductHandlers) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// Create handles POST /api/products.
func (h *ProductHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateProductRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	p, err := h.Svc.Create(r.Context(), &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/products/"+p.ID)
	WriteJSON(w, http.StatusCreated, p)
}

// Update handles PATCH /api/products/{id}. Absent fields keep their stored values.
func (h *ProductHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateProductRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	p, err := h.Svc.Update(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /api/products/{id}.
func (h *ProductHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// progressiveResponse is a projected page plus the tier that was applied.
type progressiveResponse struct {
	*pagination.Page[map[string]any]

	Priority string `json:"priority"`
	Detail   string `json:"detail"`
}

// Progressive handles GET /api/products/progressive.
func (h *ProductHandlers) Progressive(w http.ResponseWriter, r *http.Request) {
	req, err := parseProgressiveRequest(r.URL.Query(), h.defaultLimit())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.serveProgressive(w, r, req)
}

// loadMoreBody is the JSON form of a progressive request. Exclude is merged into the filter.
type loadMoreBody struct {
	Cursor       string              `json:"cursor"`
	Limit        *int                `json:"limit"`
	WithCount    bool                `json:"withCount"`
	Sort         string              `json:"sort"`
	Dir          string              `json:"dir"`
	Priority     string              `json:"priority"`
	FullDetails  bool                `json:"fullDetails"`
	WithMetadata bool                `json:"withMetadata"`
	Exclude      []string            `json:"exclude"`
	Filter       model.ProductFilter `json:"filter"`
}

func (b loadMoreBody) request(defLimit int) model.ProgressiveLoadRequest {
	limit := defLimit
	if b.Limit != nil {
		limit = *b.Limit
	}
	sort, dir := ParseSortParam(url.Values{"sort": {b.Sort}, "dir": {b.Dir}}, "sort", "dir")

	filter := b.Filter
	filter.ExcludeIDs = slices.Concat(filter.ExcludeIDs, b.Exclude)

	return model.ProgressiveLoadRequest{
		ListProductsRequest: model.ListProductsRequest{
			Cursor:    b.Cursor,
			Limit:     limit,
			WithCount: b.WithCount,
			Sort:      sort,
			Direction: dir,
			Filter:    filter,
		},
		Priority:     b.Priority,
		FullDetails:  b.FullDetails,
		WithMetadata: b.WithMetadata,
	}
}

// LoadMore handles POST /api/products/progressive/load-more.
func (h *ProductHandlers) LoadMore(w http.ResponseWriter, r *http.Request) {
	var body loadMoreBody
	if !DecodeJSON(w, r, &body) {
		return
	}
	h.serveProgressive(w, r, body.request(h.defaultLimit()))
}

func (h *ProductHandlers) serveProgressive(w http.ResponseWriter, r *http.Request, req model.ProgressiveLoadRequest) {
	page, policy, err := h.Svc.Progressive(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, progressiveResponse{
		Page:     page,
		Priority: string(policy.Priority),
		Detail:   policy.Detail.String(),
	})
}

// Prefetch handles GET /api/products/progressive/prefetch and returns a JSON array of ids.
func (h *ProductHandlers) Prefetch(w http.ResponseWriter, r *http.Request) {
	req, err := parseProgressiveRequest(r.URL.Query(), h.defaultLimit())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ids, err := h.Svc.Prefetch(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, ids)
}
