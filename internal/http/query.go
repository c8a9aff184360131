package httpx

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/marketplace/catalog-api/internal/domain/model"
	apperrors "github.com/marketplace/catalog-api/internal/errors"
)

const (
	// SortDirAsc represents ascending sort direction.
	SortDirAsc = "asc"
	// SortDirDesc represents descending sort direction.
	SortDirDesc = "desc"
)

// ParseSortParam extracts the sort field and direction from URL query parameters.
// It accepts ?sort=field:dir as well as ?sort=field&dir=direction; the combined form wins.
// Unknown directions come back as "" so callers apply their own default.
func ParseSortParam(q url.Values, sortKey, dirKey string) (string, string) {
	sortParam := strings.TrimSpace(q.Get(sortKey))

	if field, dir, ok := strings.Cut(sortParam, ":"); ok {
		return strings.TrimSpace(field), normalizeDir(dir)
	}
	return sortParam, normalizeDir(q.Get(dirKey))
}

func normalizeDir(s string) string {
	switch d := strings.ToLower(strings.TrimSpace(s)); d {
	case SortDirAsc, SortDirDesc:
		return d
	default:
		return ""
	}
}

// firstParam returns the first non-empty value among keys. Used to accept both the
// camelCase and snake_case spelling of a parameter.
func firstParam(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

// boolParam is tolerant: anything strconv.ParseBool rejects reads as false.
func boolParam(q url.Values, keys ...string) bool {
	b, err := strconv.ParseBool(firstParam(q, keys...))
	return err == nil && b
}

// limitParam returns the requested page size, or def when absent or not a number.
// Range clamping is left to the pagination layer.
func limitParam(q url.Values, def int) int {
	if v := firstParam(q, "limit"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// csvParam collects comma separated values across repeated keys, dropping blanks.
func csvParam(q url.Values, keys ...string) []string {
	var out []string
	for _, k := range keys {
		for _, raw := range q[k] {
			for part := range strings.SplitSeq(raw, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
		}
	}
	return out
}

func optionalString(q url.Values, keys ...string) *string {
	if v := firstParam(q, keys...); v != "" {
		return &v
	}
	return nil
}

// parseProductFilter reads listing filters. Unlike cursors and limits, a malformed filter
// value is a client error.
func parseProductFilter(q url.Values) (model.ProductFilter, error) {
	f := model.ProductFilter{
		MerchantID: optionalString(q, "merchantId", "merchant_id"),
		Category:   optionalString(q, "category"),
		Brand:      optionalString(q, "brand"),
		ExcludeIDs: csvParam(q, "exclude", "excludeIds", "exclude_ids"),
	}

	if v := firstParam(q, "inStock", "in_stock"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, apperrors.ValidationField("inStock", "must be true or false")
		}
		f.InStock = &b
	}

	var err error
	if f.MinPrice, err = priceParam(q, "minPrice", "min_price"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = priceParam(q, "maxPrice", "max_price"); err != nil {
		return f, err
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return f, apperrors.ValidationField("minPrice", "must not exceed maxPrice")
	}
	return f, nil
}

func priceParam(q url.Values, keys ...string) (*float64, error) {
	v := firstParam(q, keys...)
	if v == "" {
		return nil, nil
	}
	p, err := strconv.ParseFloat(v, 64)
	if err != nil || p < 0 {
		return nil, apperrors.ValidationField(keys[0], fmt.Sprintf("invalid price %q", v))
	}
	return &p, nil
}

// parseListRequest builds a listing request from the query string.
func parseListRequest(q url.Values, defLimit int) (model.ListProductsRequest, error) {
	filter, err := parseProductFilter(q)
	if err != nil {
		return model.ListProductsRequest{}, err
	}
	sort, dir := ParseSortParam(q, "sort", "dir")
	return model.ListProductsRequest{
		Cursor:    firstParam(q, "cursor"),
		Limit:     limitParam(q, defLimit),
		WithCount: boolParam(q, "withCount", "with_count"),
		Sort:      sort,
		Direction: dir,
		Filter:    filter,
	}, nil
}

// parseProgressiveRequest adds the progressive loading flags to a listing request.
func parseProgressiveRequest(q url.Values, defLimit int) (model.ProgressiveLoadRequest, error) {
	list, err := parseListRequest(q, defLimit)
	if err != nil {
		return model.ProgressiveLoadRequest{}, err
	}
	return model.ProgressiveLoadRequest{
		ListProductsRequest: list,
		Priority:            firstParam(q, "priority"),
		FullDetails:         boolParam(q, "fullDetails", "full_details"),
		WithMetadata:        boolParam(q, "withMetadata", "with_metadata"),
	}, nil
}
