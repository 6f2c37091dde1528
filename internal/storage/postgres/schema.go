package postgres

import (
	"context"
	"fmt"
)

// schemaStatements creates every table the crawler reads or writes. All
// statements are idempotent, so re-running the bootstrap is safe.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS shops (
		id BIGINT PRIMARY KEY,
		url TEXT NOT NULL,
		name TEXT,
		category TEXT,
		valid BOOLEAN NOT NULL DEFAULT FALSE,
		scraped_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS collections (
		id BIGINT PRIMARY KEY,
		shop_id BIGINT NOT NULL,
		handle TEXT NOT NULL,
		title TEXT,
		description TEXT,
		products_count INTEGER,
		published_at TIMESTAMPTZ,
		source_html BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id BIGINT PRIMARY KEY,
		shop_id BIGINT NOT NULL,
		handle TEXT NOT NULL,
		title TEXT,
		body_html TEXT,
		vendor TEXT,
		product_type TEXT,
		tags TEXT[],
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ,
		published_at TIMESTAMPTZ,
		taxonomy_path TEXT,
		taxonomy_score DOUBLE PRECISION,
		taxonomy_depth INTEGER,
		taxonomy_matched BOOLEAN
	)`,
	`CREATE INDEX IF NOT EXISTS products_missing_taxonomy_idx
		ON products (id) WHERE taxonomy_path IS NULL`,
	`CREATE TABLE IF NOT EXISTS size_groups (
		id BIGSERIAL PRIMARY KEY,
		label TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS variants (
		id BIGINT PRIMARY KEY,
		product_id BIGINT NOT NULL,
		title TEXT,
		sku TEXT,
		price TEXT,
		available BOOLEAN NOT NULL DEFAULT FALSE,
		grams INTEGER,
		size_group_id BIGINT REFERENCES size_groups (id)
	)`,
	`CREATE INDEX IF NOT EXISTS variants_missing_size_group_idx
		ON variants (id) WHERE size_group_id IS NULL`,
	`CREATE TABLE IF NOT EXISTS images (
		id BIGINT PRIMARY KEY,
		product_id BIGINT NOT NULL,
		position INTEGER,
		src TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS collection_products (
		shop_id BIGINT NOT NULL,
		collection_id BIGINT NOT NULL,
		product_id BIGINT NOT NULL,
		PRIMARY KEY (collection_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS batch_checkpoints (
		job_key TEXT PRIMARY KEY,
		last_processed_id BIGINT NOT NULL DEFAULT 0,
		processed BIGINT NOT NULL DEFAULT 0,
		matched BIGINT NOT NULL DEFAULT 0,
		per_depth JSONB,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// DefaultSizeGroupLabels is the garment-size vocabulary a fresh database is
// seeded with. The Unknown fallback group is required by the size-group job.
var DefaultSizeGroupLabels = []string{
	"XX-Small",
	"X-Small",
	"Small",
	"Medium",
	"Large",
	"X-Large",
	"XX-Large",
	"One Size",
	"Unknown",
}

// EnsureSchema creates every table and index the crawler needs.
func EnsureSchema(ctx context.Context, db DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}

// SeedSizeGroups inserts the given labels, keeping any that already exist.
func SeedSizeGroups(ctx context.Context, db DB, labels []string) error {
	for _, label := range labels {
		_, err := db.Exec(ctx, `
			INSERT INTO size_groups (label) VALUES ($1)
			ON CONFLICT (label) DO NOTHING`, label)
		if err != nil {
			return fmt.Errorf("seed size group %q: %w", label, err)
		}
	}
	return nil
}
