package httpx

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/marketplace/catalog-api/internal/errors"
)

func TestParseSortParam(t *testing.T) {
	tests := []struct {
		name      string
		sort, dir string
		wantField string
		wantDir   string
	}{
		{"combined asc", "price:asc", "", "price", "asc"},
		{"combined uppercase", "created_at:DESC", "", "created_at", "desc"},
		{"combined invalid direction", "rating:sideways", "", "rating", ""},
		{"combined empty direction", "title:", "", "title", ""},
		{"combined whitespace", " created_at : desc ", "", "created_at", "desc"},
		{"combined wins over dir", "title:desc", "asc", "title", "desc"},
		{"only first colon splits", "table:column:desc", "", "table", ""},
		{"separate", "price", "desc", "price", "desc"},
		{"separate mixed case", "price", " AsC ", "price", "asc"},
		{"separate invalid", "price", "up", "price", ""},
		{"empty", "", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := url.Values{}
			q.Set("sort", tt.sort)
			q.Set("dir", tt.dir)

			field, dir := ParseSortParam(q, "sort", "dir")
			assert.Equal(t, tt.wantField, field)
			assert.Equal(t, tt.wantDir, dir)
		})
	}
}

func TestParseListRequest(t *testing.T) {
	q, err := url.ParseQuery("cursor=abc&limit=7&with_count=1&sort=price:desc&merchant_id=m-1" +
		"&category=home&brand=Acme&in_stock=true&minPrice=5&max_price=50&exclude=a,b&exclude=c,,")
	require.NoError(t, err)

	req, err := parseListRequest(q, 20)
	require.NoError(t, err)

	assert.Equal(t, "abc", req.Cursor)
	assert.Equal(t, 7, req.Limit)
	assert.True(t, req.WithCount)
	assert.Equal(t, "price", req.Sort)
	assert.Equal(t, "desc", req.Direction)
	require.NotNil(t, req.Filter.MerchantID)
	assert.Equal(t, "m-1", *req.Filter.MerchantID)
	assert.Equal(t, "home", *req.Filter.Category)
	assert.Equal(t, "Acme", *req.Filter.Brand)
	assert.True(t, *req.Filter.InStock)
	assert.InDelta(t, 5.0, *req.Filter.MinPrice, 0)
	assert.InDelta(t, 50.0, *req.Filter.MaxPrice, 0)
	assert.Equal(t, []string{"a", "b", "c"}, req.Filter.ExcludeIDs)
}

func TestParseListRequest_LimitIsTolerant(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", 20},
		{"limit=abc", 20},
		{"limit=0", 0},
		{"limit=-4", -4},
		{"limit=5000", 5000},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			q, err := url.ParseQuery(tt.raw)
			require.NoError(t, err)
			req, err := parseListRequest(q, 20)
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Limit)
		})
	}
}

func TestParseProductFilter_Invalid(t *testing.T) {
	tests := []struct {
		raw       string
		wantField string
	}{
		{"inStock=maybe", "inStock"},
		{"minPrice=cheap", "minPrice"},
		{"max_price=-1", "maxPrice"},
		{"minPrice=10&maxPrice=5", "minPrice"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			q, err := url.ParseQuery(tt.raw)
			require.NoError(t, err)

			_, err = parseProductFilter(q)
			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperrors.ErrCodeValidation, appErr.Code)
			assert.Equal(t, tt.wantField, appErr.Field)
		})
	}
}

func TestParseProgressiveRequest_Flags(t *testing.T) {
	tests := []struct {
		raw          string
		fullDetails  bool
		withMetadata bool
	}{
		{"fullDetails=true&withMetadata=true", true, true},
		{"full_details=1&with_metadata=t", true, true},
		{"fullDetails=nope", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			q, err := url.ParseQuery(tt.raw + "&priority=low")
			require.NoError(t, err)

			req, err := parseProgressiveRequest(q, 20)
			require.NoError(t, err)
			assert.Equal(t, "low", req.Priority)
			assert.Equal(t, tt.fullDetails, req.FullDetails)
			assert.Equal(t, tt.withMetadata, req.WithMetadata)
		})
	}
}
