//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/marketplace/catalog-api/internal/pagination"
)

// Sortable product keys. Every key is paired with the product id as a tie-breaker.
const (
	ProductSortCreatedAt = "created_at"
	ProductSortPrice     = "price"
	ProductSortTitle     = "title"
	ProductSortRating    = "rating"
)

// ProductImage describes one product image; dimensions let clients reserve card space.
type ProductImage struct {
	URL      string `json:"url"                validate:"required,url,max=2048"`
	Width    *int   `json:"width,omitempty"    validate:"omitempty,gt=0"`
	Height   *int   `json:"height,omitempty"   validate:"omitempty,gt=0"`
	AltText  string `json:"altText,omitempty"  validate:"max=512"`
	Position int    `json:"position"           validate:"gte=0"`
	Format   string `json:"format,omitempty"   validate:"omitempty,oneof=jpg jpeg png webp gif avif"`
}

// Product is a catalog listing owned by a merchant.
type Product struct {
	ID             string         `json:"id"                       db:"id"`
	MerchantID     string         `json:"merchantId"               db:"merchant_id"`
	Title          string         `json:"title"                    db:"title"`
	Slug           string         `json:"slug"                     db:"slug"`
	Description    string         `json:"description"              db:"description"`
	BrandName      string         `json:"brandName"                db:"brand_name"`
	Price          float64        `json:"price"                    db:"price"`
	CompareAtPrice *float64       `json:"compareAtPrice,omitempty" db:"compare_at_price"`
	Currency       string         `json:"currency"                 db:"currency"`
	Categories     []string       `json:"categories"               db:"categories"`
	Values         []string       `json:"values"                   db:"value_tags"`
	Images         []ProductImage `json:"images"                   db:"images"`
	Rating         float64        `json:"rating"                   db:"rating"`
	ReviewCount    int            `json:"reviewCount"              db:"review_count"`
	InStock        bool           `json:"inStock"                  db:"in_stock"`
	ExternalID     *string        `json:"externalId,omitempty"     db:"external_id"`
	ExternalSource *string        `json:"externalSource,omitempty" db:"external_source"`
	CreatedAt      time.Time      `json:"createdAt"                db:"created_at"`
	UpdatedAt      time.Time      `json:"updatedAt"                db:"updated_at"`
}

// ParseProductSort maps a client sort name to a sortable key. Unknown names fall back to created_at.
func ParseProductSort(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ProductSortPrice:
		return ProductSortPrice
	case ProductSortTitle, "name":
		return ProductSortTitle
	case ProductSortRating:
		return ProductSortRating
	default:
		return ProductSortCreatedAt
	}
}

// ProductMarker returns the cursor position of p under sortKey.
func ProductMarker(p Product, sortKey string) (pagination.Marker, error) {
	var key any
	switch sortKey {
	case ProductSortCreatedAt:
		key = pagination.FormatTimeKey(p.CreatedAt)
	case ProductSortPrice:
		key = p.Price
	case ProductSortTitle:
		key = p.Title
	case ProductSortRating:
		key = p.Rating
	default:
		return pagination.Marker{}, fmt.Errorf("unsupported product sort key %q", sortKey)
	}
	return pagination.Marker{SortKey: key, ID: p.ID}, nil
}

// ProductFilter narrows a product listing. Nil/empty fields apply no filter.
type ProductFilter struct {
	MerchantID *string  `json:"merchantId,omitempty"`
	Category   *string  `json:"category,omitempty"`
	Brand      *string  `json:"brand,omitempty"`
	InStock    *bool    `json:"inStock,omitempty"`
	MinPrice   *float64 `json:"minPrice,omitempty"`
	MaxPrice   *float64 `json:"maxPrice,omitempty"`
	// ExcludeIDs are removed before the page size is counted.
	ExcludeIDs []string `json:"exclude,omitempty"`
}

// Matches reports whether p passes every filter. It mirrors the SQL built by the product repository.
func (f ProductFilter) Matches(p Product) bool {
	switch {
	case f.MerchantID != nil && p.MerchantID != *f.MerchantID:
		return false
	case f.Category != nil && !slices.Contains(p.Categories, *f.Category):
		return false
	case f.Brand != nil && !strings.EqualFold(p.BrandName, *f.Brand):
		return false
	case f.InStock != nil && p.InStock != *f.InStock:
		return false
	case f.MinPrice != nil && p.Price < *f.MinPrice:
		return false
	case f.MaxPrice != nil && p.Price > *f.MaxPrice:
		return false
	case slices.Contains(f.ExcludeIDs, p.ID):
		return false
	default:
		return true
	}
}

// CreateProductRequest is the payload for adding a product to the catalog.
type CreateProductRequest struct {
	MerchantID     string         `json:"merchantId"               validate:"required,max=64"`
	Title          string         `json:"title"                    validate:"required,max=255"`
	Slug           string         `json:"slug,omitempty"           validate:"omitempty,max=255"`
	Description    string         `json:"description"              validate:"max=10000"`
	BrandName      string         `json:"brandName"                validate:"max=255"`
	Price          float64        `json:"price"                    validate:"gte=0"`
	CompareAtPrice *float64       `json:"compareAtPrice,omitempty" validate:"omitempty,gtefield=Price"`
	Currency       string         `json:"currency,omitempty"       validate:"omitempty,iso4217"`
	Categories     []string       `json:"categories,omitempty"     validate:"max=32,dive,required,max=64"`
	Values         []string       `json:"values,omitempty"         validate:"max=32,dive,required,max=64"`
	Images         []ProductImage `json:"images,omitempty"         validate:"max=20,dive"`
	InStock        *bool          `json:"inStock,omitempty"`
	ExternalID     *string        `json:"externalId,omitempty"     validate:"omitempty,max=255"`
	ExternalSource *string        `json:"externalSource,omitempty" validate:"omitempty,max=64"`
}

// UpdateProductRequest is a partial update. Nil fields are left unchanged; merchant, slug and
// external ids cannot be changed.
type UpdateProductRequest struct {
	Title          *string  `json:"title,omitempty"          validate:"omitempty,min=1,max=255"`
	Description    *string  `json:"description,omitempty"    validate:"omitempty,max=10000"`
	BrandName      *string  `json:"brandName,omitempty"      validate:"omitempty,max=255"`
	Price          *float64 `json:"price,omitempty"          validate:"omitempty,gte=0"`
	CompareAtPrice *float64 `json:"compareAtPrice,omitempty" validate:"omitempty,gte=0"`
	Currency       *string  `json:"currency,omitempty"       validate:"omitempty,iso4217"`
	Categories     []string `json:"categories,omitempty"     validate:"omitempty,max=32,dive,required,max=64"`
	InStock        *bool    `json:"inStock,omitempty"`
}
