// Package testutil provides testing utilities and helpers for the catalog service.
package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/catalog-api/internal/domain/model"
)

// ProductBuilder provides a fluent interface for building Product values for testing.
type ProductBuilder struct {
	p model.Product
}

// NewProduct creates a new ProductBuilder with sensible defaults.
func NewProduct() *ProductBuilder {
	id := uuid.NewString()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return &ProductBuilder{p: model.Product{
		ID:          id,
		MerchantID:  "merchant-1",
		Title:       "Product " + id[:8],
		Slug:        "product-" + id[:8],
		Description: "A product used in tests.",
		BrandName:   "Acme",
		Price:       10,
		Currency:    "USD",
		Categories:  []string{"general"},
		Values:      []string{},
		Images: []model.ProductImage{
			{URL: "https://cdn.example.com/" + id + ".jpg", Position: 0, Format: "jpg"},
		},
		Rating:    4,
		InStock:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}}
}

// WithID sets the product ID.
func (b *ProductBuilder) WithID(id string) *ProductBuilder {
	b.p.ID = id
	return b
}

// WithTitle sets the title and derives a slug from it.
func (b *ProductBuilder) WithTitle(title string) *ProductBuilder {
	b.p.Title = title
	b.p.Slug = fmt.Sprintf("%s-%s", model.Slugify(title), b.p.ID[:8])
	return b
}

// WithMerchant sets the owning merchant.
func (b *ProductBuilder) WithMerchant(id string) *ProductBuilder {
	b.p.MerchantID = id
	return b
}

// WithPrice sets the price.
func (b *ProductBuilder) WithPrice(price float64) *ProductBuilder {
	b.p.Price = price
	return b
}

// WithRating sets the rating.
func (b *ProductBuilder) WithRating(rating float64) *ProductBuilder {
	b.p.Rating = rating
	return b
}

// WithCategories replaces the categories.
func (b *ProductBuilder) WithCategories(categories ...string) *ProductBuilder {
	b.p.Categories = categories
	return b
}

// WithBrand sets the brand name.
func (b *ProductBuilder) WithBrand(brand string) *ProductBuilder {
	b.p.BrandName = brand
	return b
}

// OutOfStock marks the product unavailable.
func (b *ProductBuilder) OutOfStock() *ProductBuilder {
	b.p.InStock = false
	return b
}

// CreatedAt sets both timestamps.
func (b *ProductBuilder) CreatedAt(t time.Time) *ProductBuilder {
	b.p.CreatedAt = t.UTC()
	b.p.UpdatedAt = t.UTC()
	return b
}

// Build returns the built product.
func (b *ProductBuilder) Build() model.Product {
	return b.p
}
