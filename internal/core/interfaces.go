package core

import (
	"context"

	"github.com/marketplace/catalog-api/internal/domain/model"
	"github.com/marketplace/catalog-api/internal/pagination"
)

// ProductRepository is the product store. Services take it instead of *data.ProductRepo so tests
// can substitute a mock.
type ProductRepository interface {
	pagination.Source[model.Product, model.ProductFilter]

	GetByID(ctx context.Context, id string) (*model.Product, error)
	Create(ctx context.Context, p *model.Product) (*model.Product, error)
	Update(ctx context.Context, p *model.Product) (*model.Product, error)
	Delete(ctx context.Context, id string) error
	// TopMerchants returns the ids of the n merchants with the most products.
	TopMerchants(ctx context.Context, n int) ([]string, error)
	BulkInsert(ctx context.Context, products []model.Product) (int64, error)
}
