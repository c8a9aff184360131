// Package data provides the database access layer and repository implementations for the catalog.
package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/marketplace/catalog-api/internal/data/database"
	"github.com/marketplace/catalog-api/internal/data/pgxutil"
	"github.com/marketplace/catalog-api/internal/domain/model"
	apperrors "github.com/marketplace/catalog-api/internal/errors"
	"github.com/marketplace/catalog-api/internal/pagination"
)

const productTable = "products"

var productColumns = []string{
	"id", "merchant_id", "title", "slug", "description", "brand_name", "price", "compare_at_price",
	"currency", "categories", "value_tags", "images", "rating", "review_count", "in_stock",
	"external_id", "external_source", "created_at", "updated_at",
}

// productSortColumns maps sortable keys to their column. Every key has a (column, id) index.
var productSortColumns = map[string]string{
	model.ProductSortCreatedAt: "created_at",
	model.ProductSortPrice:     "price",
	model.ProductSortTitle:     "title",
	model.ProductSortRating:    "rating",
}

// ErrUnsupportedSort is returned when a query names a sort key without a keyset index.
var ErrUnsupportedSort = errors.New("unsupported sort key")

var _ pagination.Source[model.Product, model.ProductFilter] = (*ProductRepo)(nil)

// ProductRepo provides database operations for products.
type ProductRepo struct {
	DB *sql.DB
	// QueryTimeout bounds each read. Zero leaves the caller's deadline alone.
	QueryTimeout time.Duration
	// Now stamps created_at on writes that leave it unset. Defaults to the wall clock.
	Now func() time.Time
}

// NewProductRepo creates a new ProductRepo.
func NewProductRepo(db *sql.DB) *ProductRepo {
	return &ProductRepo{DB: db}
}

// now truncates to microseconds, the precision Postgres stores, so written and re-read
// timestamps compare equal and cursors built from either agree.
func (r *ProductRepo) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC().Truncate(time.Microsecond)
	}
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Query executes one keyset read ordered by (sort column, id).
func (r *ProductRepo) Query(ctx context.Context, q pagination.Query[model.ProductFilter]) ([]model.Product, error) {
	query, args, err := buildProductKeysetQuery(q)
	if err != nil {
		return nil, err
	}
	ctx, cancel := r.readContext(ctx)
	defer cancel()
	return r.collect(ctx, query, args)
}

func (r *ProductRepo) readContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.QueryTimeout)
}

func buildProductKeysetQuery(q pagination.Query[model.ProductFilter]) (string, []any, error) {
	col, ok := productSortColumns[q.Sort.Key]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedSort, q.Sort.Key)
	}

	desc := q.Sort.Direction == pagination.Descending
	if q.Backward {
		desc = !desc
	}

	b := database.Select(productTable, productColumns...).
		Where(productFilterConditions(q.Filter)...)
	if q.After != nil {
		key, err := productSeekKey(q.Sort.Key, q.After.SortKey)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %w", pagination.ErrCursorMismatch, err)
		}
		id, err := uuid.Parse(q.After.ID)
		if err != nil {
			return "", nil, fmt.Errorf("%w: cursor id: %w", pagination.ErrCursorMismatch, err)
		}
		op := ">"
		if desc {
			op = "<"
		}
		b.Where(database.RowCompare([]string{col, "id"}, op, []any{key, id.String()}))
	}

	query, args := b.OrderBy(desc, col, "id").Limit(max(q.Limit, 0)).Build()
	return query, args, nil
}

// productSeekKey converts a cursor sort key back to the column's Go type.
func productSeekKey(sortKey string, v any) (any, error) {
	switch sortKey {
	case model.ProductSortCreatedAt:
		return pagination.ParseTimeKey(v)
	case model.ProductSortPrice, model.ProductSortRating:
		return pagination.FloatKey(v)
	default:
		return pagination.StringKey(v)
	}
}

func productFilterConditions(f model.ProductFilter) []database.Cond {
	var conds []database.Cond
	if f.MerchantID != nil && *f.MerchantID != "" {
		conds = append(conds, database.Eq("merchant_id", *f.MerchantID))
	}
	if f.Category != nil && *f.Category != "" {
		conds = append(conds, database.ArrayContains("categories", *f.Category))
	}
	if f.Brand != nil && *f.Brand != "" {
		conds = append(conds, database.Raw("lower(brand_name) = lower($1)", *f.Brand))
	}
	if f.InStock != nil {
		conds = append(conds, database.Eq("in_stock", *f.InStock))
	}
	if f.MinPrice != nil {
		conds = append(conds, database.Gte("price", *f.MinPrice))
	}
	if f.MaxPrice != nil {
		conds = append(conds, database.Lte("price", *f.MaxPrice))
	}
	if excluded := validProductIDs(f.ExcludeIDs); len(excluded) > 0 {
		conds = append(conds, database.NotIn("id", excluded))
	}
	return conds
}

// validProductIDs drops ids that are not UUIDs; they cannot match a row and would fail the cast.
func validProductIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		parsed, err := uuid.Parse(strings.TrimSpace(id))
		if err != nil {
			continue
		}
		s := parsed.String()
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Count returns the number of products matching filter, ignoring sort and limit.
func (r *ProductRepo) Count(ctx context.Context, filter model.ProductFilter) (int, error) {
	query, args := database.Select(productTable).Where(productFilterConditions(filter)...).BuildCount()

	ctx, cancel := r.readContext(ctx)
	defer cancel()

	var n int
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, apperrors.MapDBError(fmt.Errorf("count products: %w", err))
	}
	return n, nil
}

func (r *ProductRepo) collect(ctx context.Context, query string, args []any) ([]model.Product, error) {
	var out []model.Product
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qErr := conn.Query(ctx, query, args...)
		if qErr != nil {
			return fmt.Errorf("query products: %w", qErr)
		}
		defer rows.Close()

		var collectErr error
		out, collectErr = pgx.CollectRows(rows, pgx.RowToStructByName[model.Product])
		if collectErr != nil {
			return fmt.Errorf("collect products: %w", collectErr)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

// GetByID retrieves a product by ID.
func (r *ProductRepo) GetByID(ctx context.Context, id string) (*model.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.ValidationField("id", "product id must be a UUID")
	}
	query, args := database.Select(productTable, productColumns...).Where(database.Eq("id", id)).Build()

	var out model.Product
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qErr := conn.Query(ctx, query, args...)
		if qErr != nil {
			return qErr
		}
		defer rows.Close()
		var collectErr error
		out, collectErr = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Product])
		return collectErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("product %s not found", id)
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get product: %w", err))
	}
	return &out, nil
}

const productInsertSQL = `
	INSERT INTO products (
		id, merchant_id, title, slug, description, brand_name, price, compare_at_price, currency,
		categories, value_tags, images, rating, review_count, in_stock, external_id, external_source,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $18
	) RETURNING `

// Create inserts p. ID and timestamps are assigned when empty.
func (r *ProductRepo) Create(ctx context.Context, p *model.Product) (*model.Product, error) {
	if p == nil {
		return nil, errors.New("product is required")
	}
	r.stamp(p)

	var out model.Product
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qErr := conn.Query(ctx, productInsertSQL+strings.Join(productColumns, ", "),
			p.ID, p.MerchantID, p.Title, p.Slug, p.Description, p.BrandName, p.Price, p.CompareAtPrice,
			p.Currency, p.Categories, p.Values, p.Images, p.Rating, p.ReviewCount, p.InStock,
			p.ExternalID, p.ExternalSource, p.CreatedAt,
		)
		if qErr != nil {
			return qErr
		}
		defer rows.Close()
		var collectErr error
		out, collectErr = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Product])
		return collectErr
	})
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("insert product: %w", err))
	}
	return &out, nil
}

const productUpdateSQL = `
	UPDATE products SET
		title = $2, description = $3, brand_name = $4, price = $5, compare_at_price = $6,
		currency = $7, categories = $8, in_stock = $9, updated_at = $10
	WHERE id = $1
	RETURNING `

// Update writes the mutable fields of p and bumps updated_at.
func (r *ProductRepo) Update(ctx context.Context, p *model.Product) (*model.Product, error) {
	if p == nil {
		return nil, errors.New("product is required")
	}
	if _, err := uuid.Parse(p.ID); err != nil {
		return nil, apperrors.ValidationField("id", "product id must be a UUID")
	}
	if p.Categories == nil {
		p.Categories = []string{}
	}
	p.UpdatedAt = r.now()

	var out model.Product
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qErr := conn.Query(ctx, productUpdateSQL+strings.Join(productColumns, ", "),
			p.ID, p.Title, p.Description, p.BrandName, p.Price, p.CompareAtPrice,
			p.Currency, p.Categories, p.InStock, p.UpdatedAt,
		)
		if qErr != nil {
			return qErr
		}
		defer rows.Close()
		var collectErr error
		out, collectErr = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Product])
		return collectErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("product %s not found", p.ID)
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("update product: %w", err))
	}
	return &out, nil
}

// Delete removes a product.
func (r *ProductRepo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.ValidationField("id", "product id must be a UUID")
	}
	res, err := r.DB.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("delete product: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if n == 0 {
		return apperrors.NotFoundf("product %s not found", id)
	}
	return nil
}

// TopMerchants returns the ids of the n merchants with the most products, largest first.
func (r *ProductRepo) TopMerchants(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return []string{}, nil
	}
	ctx, cancel := r.readContext(ctx)
	defer cancel()

	var out []string
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qErr := conn.Query(ctx, `
			SELECT merchant_id FROM products
			GROUP BY merchant_id
			ORDER BY COUNT(*) DESC, merchant_id
			LIMIT $1`, n)
		if qErr != nil {
			return qErr
		}
		var collectErr error
		out, collectErr = pgx.CollectRows(rows, pgx.RowTo[string])
		return collectErr
	})
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("top merchants: %w", err))
	}
	return out, nil
}

// BulkInsert loads products with COPY. It is used by the seed command.
func (r *ProductRepo) BulkInsert(ctx context.Context, products []model.Product) (int64, error) {
	if len(products) == 0 {
		return 0, nil
	}
	for i := range products {
		r.stamp(&products[i])
	}

	var copied int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		n, copyErr := conn.CopyFrom(ctx, pgx.Identifier{productTable}, productColumns,
			pgx.CopyFromSlice(len(products), func(i int) ([]any, error) {
				p := products[i]
				return []any{
					p.ID, p.MerchantID, p.Title, p.Slug, p.Description, p.BrandName, p.Price,
					p.CompareAtPrice, p.Currency, p.Categories, p.Values, p.Images, p.Rating,
					p.ReviewCount, p.InStock, p.ExternalID, p.ExternalSource, p.CreatedAt, p.UpdatedAt,
				}, nil
			}),
		)
		copied = n
		return copyErr
	})
	if err != nil {
		return 0, apperrors.MapDBError(fmt.Errorf("copy products: %w", err))
	}
	return copied, nil
}

func (r *ProductRepo) stamp(p *model.Product) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	if p.Categories == nil {
		p.Categories = []string{}
	}
	if p.Values == nil {
		p.Values = []string{}
	}
	if p.Images == nil {
		p.Images = []model.ProductImage{}
	}
}
