package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/storefrontlab/catalog-crawler/internal/catalog"
)

// CatalogStore owns the shops/collections/products/links tables plus the
// derived-field scans the batch jobs run. All writes are idempotent upserts
// keyed by external id, so replays are no-ops.
type CatalogStore struct {
	db     DB
	logger *zap.Logger
}

// NewCatalogStore builds a store on the given pool.
func NewCatalogStore(db DB, logger *zap.Logger) *CatalogStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogStore{db: db, logger: logger}
}

// UpsertShops writes shop records in one transaction.
func (s *CatalogStore) UpsertShops(ctx context.Context, shops []catalog.Shop) error {
	return s.inTx(ctx, "upsert shops", func(tx txExecer) error {
		for _, shop := range shops {
			_, err := tx.Exec(ctx, `
				INSERT INTO shops (id, url, name, category, valid, scraped_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (id) DO UPDATE SET
					url = EXCLUDED.url,
					name = EXCLUDED.name,
					category = EXCLUDED.category,
					valid = EXCLUDED.valid,
					scraped_at = EXCLUDED.scraped_at`,
				shop.ID, shop.URL, shop.Name, shop.Category, shop.Valid, shop.ScrapedAt)
			if err != nil {
				return fmt.Errorf("upsert shop %d: %w", shop.ID, err)
			}
		}
		return nil
	})
}

// UpsertCollections writes collection records in one transaction.
func (s *CatalogStore) UpsertCollections(ctx context.Context, collections []catalog.Collection) error {
	return s.inTx(ctx, "upsert collections", func(tx txExecer) error {
		for _, col := range collections {
			_, err := tx.Exec(ctx, `
				INSERT INTO collections (id, shop_id, handle, title, description, products_count, published_at, source_html)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO UPDATE SET
					handle = EXCLUDED.handle,
					title = EXCLUDED.title,
					description = EXCLUDED.description,
					products_count = EXCLUDED.products_count,
					published_at = EXCLUDED.published_at,
					source_html = EXCLUDED.source_html`,
				col.ID, col.ShopID, col.Handle, col.Title, col.Description,
				col.ProductsCount, col.PublishedAt, col.SourceHTML)
			if err != nil {
				return fmt.Errorf("upsert collection %d: %w", col.ID, err)
			}
		}
		return nil
	})
}

// UpsertProducts writes products with their variants and images in one
// transaction.
func (s *CatalogStore) UpsertProducts(ctx context.Context, products []catalog.Product) error {
	return s.inTx(ctx, "upsert products", func(tx txExecer) error {
		for _, p := range products {
			_, err := tx.Exec(ctx, `
				INSERT INTO products (id, shop_id, handle, title, body_html, vendor, product_type, tags, created_at, updated_at, published_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				ON CONFLICT (id) DO UPDATE SET
					handle = EXCLUDED.handle,
					title = EXCLUDED.title,
					body_html = EXCLUDED.body_html,
					vendor = EXCLUDED.vendor,
					product_type = EXCLUDED.product_type,
					tags = EXCLUDED.tags,
					created_at = EXCLUDED.created_at,
					updated_at = EXCLUDED.updated_at,
					published_at = EXCLUDED.published_at`,
				p.ID, p.ShopID, p.Handle, p.Title, p.BodyHTML, p.Vendor,
				p.ProductType, p.Tags, p.CreatedAt, p.UpdatedAt, p.PublishedAt)
			if err != nil {
				return fmt.Errorf("upsert product %d: %w", p.ID, err)
			}
			for _, v := range p.Variants {
				_, err := tx.Exec(ctx, `
					INSERT INTO variants (id, product_id, title, sku, price, available, grams)
					VALUES ($1, $2, $3, $4, $5, $6, $7)
					ON CONFLICT (id) DO UPDATE SET
						title = EXCLUDED.title,
						sku = EXCLUDED.sku,
						price = EXCLUDED.price,
						available = EXCLUDED.available,
						grams = EXCLUDED.grams`,
					v.ID, p.ID, v.Title, v.SKU, v.Price, v.Available, v.Grams)
				if err != nil {
					return fmt.Errorf("upsert variant %d of product %d: %w", v.ID, p.ID, err)
				}
			}
			for _, img := range p.Images {
				_, err := tx.Exec(ctx, `
					INSERT INTO images (id, product_id, position, src)
					VALUES ($1, $2, $3, $4)
					ON CONFLICT (id) DO UPDATE SET
						position = EXCLUDED.position,
						src = EXCLUDED.src`,
					img.ID, p.ID, img.Position, img.Src)
				if err != nil {
					return fmt.Errorf("upsert image %d of product %d: %w", img.ID, p.ID, err)
				}
			}
		}
		return nil
	})
}

// UpsertCollectionProducts writes membership links; duplicates are ignored.
func (s *CatalogStore) UpsertCollectionProducts(ctx context.Context, links []catalog.CollectionProduct) error {
	return s.inTx(ctx, "upsert collection products", func(tx txExecer) error {
		for _, link := range links {
			_, err := tx.Exec(ctx, `
				INSERT INTO collection_products (shop_id, collection_id, product_id)
				VALUES ($1, $2, $3)
				ON CONFLICT (collection_id, product_id) DO NOTHING`,
				link.ShopID, link.CollectionID, link.ProductID)
			if err != nil {
				return fmt.Errorf("upsert link %d->%d: %w", link.CollectionID, link.ProductID, err)
			}
		}
		return nil
	})
}

// ProductRow is the slice of a product the taxonomy job needs.
type ProductRow struct {
	ID          int64
	Title       string
	ProductType string
	BodyHTML    string
	Tags        []string
}

// FetchProductsMissingTaxonomy scans products without a taxonomy path in id
// order, strictly after afterID.
func (s *CatalogStore) FetchProductsMissingTaxonomy(ctx context.Context, afterID int64, limit int) ([]ProductRow, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, title, COALESCE(product_type, ''), COALESCE(body_html, ''), COALESCE(tags, '{}')
		FROM products
		WHERE taxonomy_path IS NULL AND id > $1
		ORDER BY id ASC
		LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("scan products missing taxonomy: %w", err)
	}
	defer rows.Close()

	var out []ProductRow
	for rows.Next() {
		var r ProductRow
		if err := rows.Scan(&r.ID, &r.Title, &r.ProductType, &r.BodyHTML, &r.Tags); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return out, nil
}

// TaxonomyUpdate is one derived-field write of the taxonomy job.
type TaxonomyUpdate struct {
	ProductID int64
	Path      string
	Score     float64
	Depth     int
	Matched   bool
}

// UpdateTaxonomy writes taxonomy matches back in one transaction.
func (s *CatalogStore) UpdateTaxonomy(ctx context.Context, updates []TaxonomyUpdate) error {
	return s.inTx(ctx, "update taxonomy", func(tx txExecer) error {
		for _, u := range updates {
			_, err := tx.Exec(ctx, `
				UPDATE products
				SET taxonomy_path = $1, taxonomy_score = $2, taxonomy_depth = $3, taxonomy_matched = $4
				WHERE id = $5`,
				u.Path, u.Score, u.Depth, u.Matched, u.ProductID)
			if err != nil {
				return fmt.Errorf("update taxonomy of product %d: %w", u.ProductID, err)
			}
		}
		return nil
	})
}

// VariantRow is the slice of a variant the size-group job needs.
type VariantRow struct {
	ID    int64
	Title string
}

// FetchVariantsMissingSizeGroup scans variants without a size group in id
// order, strictly after afterID.
func (s *CatalogStore) FetchVariantsMissingSizeGroup(ctx context.Context, afterID int64, limit int) ([]VariantRow, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, COALESCE(title, '')
		FROM variants
		WHERE size_group_id IS NULL AND id > $1
		ORDER BY id ASC
		LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("scan variants missing size group: %w", err)
	}
	defer rows.Close()

	var out []VariantRow
	for rows.Next() {
		var r VariantRow
		if err := rows.Scan(&r.ID, &r.Title); err != nil {
			return nil, fmt.Errorf("scan variant row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variant rows: %w", err)
	}
	return out, nil
}

// SizeGroupUpdate is one derived-field write of the size-group job.
type SizeGroupUpdate struct {
	VariantID   int64
	SizeGroupID int64
}

// UpdateSizeGroups writes size-group assignments back in one transaction.
func (s *CatalogStore) UpdateSizeGroups(ctx context.Context, updates []SizeGroupUpdate) error {
	return s.inTx(ctx, "update size groups", func(tx txExecer) error {
		for _, u := range updates {
			_, err := tx.Exec(ctx, `
				UPDATE variants SET size_group_id = $1 WHERE id = $2`,
				u.SizeGroupID, u.VariantID)
			if err != nil {
				return fmt.Errorf("update size group of variant %d: %w", u.VariantID, err)
			}
		}
		return nil
	})
}

// LoadSizeGroups reads the size-group vocabulary.
func (s *CatalogStore) LoadSizeGroups(ctx context.Context) ([]catalog.SizeGroup, error) {
	rows, err := s.db.Query(ctx, `SELECT id, label FROM size_groups ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("load size groups: %w", err)
	}
	defer rows.Close()

	var out []catalog.SizeGroup
	for rows.Next() {
		var g catalog.SizeGroup
		if err := rows.Scan(&g.ID, &g.Label); err != nil {
			return nil, fmt.Errorf("scan size group: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate size groups: %w", err)
	}
	return out, nil
}

// txExecer is the transaction surface the write paths use; pgx.Tx satisfies it.
type txExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// inTx runs fn inside a transaction with rollback on failure.
func (s *CatalogStore) inTx(ctx context.Context, op string, fn func(tx txExecer) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Warn("rollback failed", zap.String("op", op), zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}
