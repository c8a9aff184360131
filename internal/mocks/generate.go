// Package mocks holds gomock doubles for the repository ports in internal/core.
//
// Regenerate after changing an interface:
//
//	go generate ./internal/mocks
package mocks

//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=product_repository_mock.go github.com/marketplace/catalog-api/internal/core ProductRepository
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=cache_repository_mock.go github.com/marketplace/catalog-api/internal/core CacheRepository
