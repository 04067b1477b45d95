package postgres

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS cars (
		id BIGSERIAL PRIMARY KEY,
		source TEXT NOT NULL DEFAULT 'mobile.de',
		listing_id TEXT,
		url TEXT NOT NULL UNIQUE,
		title TEXT,
		additional_info TEXT,
		price TEXT,
		mileage TEXT,
		power TEXT,
		fuel_type TEXT,
		transmission TEXT,
		first_registration TEXT,
		dealer TEXT,
		dealer_rating TEXT,
		seller_type TEXT,
		location TEXT,
		phone TEXT,
		rating TEXT,
		negotiable TEXT,
		monthly_rate TEXT,
		monthly_rate_link TEXT,
		financing_link TEXT,
		vehicle_condition TEXT,
		category TEXT,
		model_range TEXT,
		trim_line TEXT,
		vehicle_number TEXT,
		origin TEXT,
		cubic_capacity TEXT,
		drive_type TEXT,
		energy_consumption TEXT,
		co2_emissions TEXT,
		co2_class TEXT,
		fuel_consumption TEXT,
		attributes JSONB NOT NULL DEFAULT '{}'::jsonb,
		image_urls JSONB NOT NULL DEFAULT '[]'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS cars_listing_id_idx ON cars (listing_id);`,
	`CREATE INDEX IF NOT EXISTS cars_updated_at_idx ON cars (updated_at DESC);`,
	`CREATE TABLE IF NOT EXISTS feature_sections (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS features (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS car_features (
		car_id BIGINT NOT NULL REFERENCES cars (id) ON DELETE CASCADE,
		feature_id BIGINT NOT NULL REFERENCES features (id),
		section_id BIGINT NOT NULL REFERENCES feature_sections (id),
		PRIMARY KEY (car_id, feature_id, section_id)
	);`,
	`CREATE TABLE IF NOT EXISTS crawl_runs (
		id UUID PRIMARY KEY,
		start_url TEXT NOT NULL,
		status TEXT NOT NULL,
		pages_scraped INT NOT NULL DEFAULT 0,
		total_cars BIGINT NOT NULL DEFAULT 0,
		error_message TEXT,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ
	);`,
	`CREATE INDEX IF NOT EXISTS crawl_runs_started_at_idx ON crawl_runs (started_at DESC);`,
}

// EnsureSchema creates the tables and indexes if they do not exist yet.
func EnsureSchema(ctx context.Context, pool db) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
