// Package devseed generates a deterministic demo catalog for local development.
package devseed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/marketplace/catalog-api/internal/domain/model"
)

// Importer stores a batch of products. *service.ProductService satisfies it.
type Importer interface {
	Import(ctx context.Context, products []model.Product) (int64, error)
}

// Options controls the generated catalog.
type Options struct {
	Count     int
	Merchants int
	BatchSize int
	// Seed makes runs reproducible; the same seed yields the same products.
	Seed uint64
	// Epoch is the creation time of the newest product. Each following product is one minute older.
	Epoch time.Time
}

const (
	defaultCount     = 200
	defaultMerchants = 3
	defaultBatchSize = 500
)

func (o Options) withDefaults() Options {
	if o.Count <= 0 {
		o.Count = defaultCount
	}
	if o.Merchants <= 0 {
		o.Merchants = defaultMerchants
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.Epoch.IsZero() {
		o.Epoch = time.Now().UTC().Truncate(time.Minute)
	}
	return o
}

var (
	adjectives = []string{"Recycled", "Organic", "Handmade", "Bamboo", "Linen", "Ceramic", "Upcycled", "Solar"}
	nouns      = []string{"Tote", "Desk Lamp", "Water Bottle", "Notebook", "Throw Blanket", "Planter", "Mug", "Backpack"}
	brands     = []string{"Northwind", "Evergreen Co", "Tidewater", "Fieldhouse"}
	categories = []string{"home", "garden", "office", "outdoor", "kitchen"}
	valueTags  = []string{"sustainable", "fair-trade", "local", "vegan", "plastic-free"}
)

// seedNamespace roots the generated product ids so a seed maps to stable UUIDs.
var seedNamespace = uuid.MustParse("6c1f4b8e-2a8d-4c1e-9a57-1f0c3e4d5b6a")

// Generate builds opts.Count products. Identical options produce identical output.
func Generate(opts Options) []model.Product {
	opts = opts.withDefaults()
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)) // #nosec G404 - demo data

	out := make([]model.Product, 0, opts.Count)
	for i := range opts.Count {
		title := fmt.Sprintf("%s %s %d",
			adjectives[rng.IntN(len(adjectives))], nouns[rng.IntN(len(nouns))], i+1)
		id := uuid.NewSHA1(seedNamespace, fmt.Appendf(nil, "%d/%d", opts.Seed, i)).String()
		created := opts.Epoch.Add(-time.Duration(i) * time.Minute)

		price := float64(500+rng.IntN(19500)) / 100
		p := model.Product{
			ID:          id,
			MerchantID:  fmt.Sprintf("merchant-%d", i%opts.Merchants+1),
			Title:       title,
			Slug:        slug.Make(title),
			Description: "Demo product generated for local development.",
			BrandName:   brands[rng.IntN(len(brands))],
			Price:       price,
			Currency:    "USD",
			Categories:  []string{categories[rng.IntN(len(categories))]},
			Values:      []string{valueTags[rng.IntN(len(valueTags))]},
			Images: []model.ProductImage{
				{URL: "https://cdn.example.com/demo/" + id + ".jpg", Position: 0, Format: "jpg"},
			},
			Rating:      float64(rng.IntN(41)+10) / 10,
			ReviewCount: rng.IntN(500),
			InStock:     rng.IntN(10) > 0,
			CreatedAt:   created,
			UpdatedAt:   created,
		}
		if rng.IntN(4) == 0 {
			compare := price * 1.25
			p.CompareAtPrice = &compare
		}
		out = append(out, p)
	}
	return out
}

// Run generates the catalog and imports it in batches. It returns the number of rows stored.
func Run(ctx context.Context, importer Importer, opts Options, logger *slog.Logger) (int64, error) {
	if importer == nil {
		return 0, errors.New("importer is required")
	}
	opts = opts.withDefaults()
	products := Generate(opts)

	var total int64
	for start := 0; start < len(products); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(products))
		n, err := importer.Import(ctx, products[start:end])
		if err != nil {
			return total, fmt.Errorf("import products %d-%d: %w", start, end, err)
		}
		total += n
		if logger != nil {
			logger.InfoContext(ctx, "seeded product batch", "from", start, "to", end, "stored", n)
		}
	}
	return total, nil
}
