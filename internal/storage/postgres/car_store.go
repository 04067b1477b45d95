package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/carmarket/crawler/internal/scraper"
	"github.com/carmarket/crawler/internal/store"
)

// CarStore implements store.CarRepository on Postgres.
type CarStore struct {
	pool db
}

// NewCarStore connects a CarStore using the given pool config.
func NewCarStore(ctx context.Context, cfg Config) (*CarStore, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &CarStore{pool: pool}, nil
}

// NewCarStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewCarStoreWithPool(pool db) (*CarStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CarStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *CarStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const upsertCarQuery = `
INSERT INTO cars (
	source, listing_id, url, title, additional_info, price, mileage, power,
	fuel_type, transmission, first_registration, dealer, dealer_rating,
	seller_type, location, phone, rating, negotiable, monthly_rate,
	monthly_rate_link, financing_link, vehicle_condition, category,
	model_range, trim_line, vehicle_number, origin, cubic_capacity,
	drive_type, energy_consumption, co2_emissions, co2_class,
	fuel_consumption, attributes, image_urls, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
	$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,$35,now(),now()
)
ON CONFLICT (url) DO UPDATE SET
	source = EXCLUDED.source,
	listing_id = EXCLUDED.listing_id,
	title = EXCLUDED.title,
	additional_info = EXCLUDED.additional_info,
	price = EXCLUDED.price,
	mileage = EXCLUDED.mileage,
	power = EXCLUDED.power,
	fuel_type = EXCLUDED.fuel_type,
	transmission = EXCLUDED.transmission,
	first_registration = EXCLUDED.first_registration,
	dealer = EXCLUDED.dealer,
	dealer_rating = EXCLUDED.dealer_rating,
	seller_type = EXCLUDED.seller_type,
	location = EXCLUDED.location,
	phone = EXCLUDED.phone,
	rating = EXCLUDED.rating,
	negotiable = EXCLUDED.negotiable,
	monthly_rate = EXCLUDED.monthly_rate,
	monthly_rate_link = EXCLUDED.monthly_rate_link,
	financing_link = EXCLUDED.financing_link,
	vehicle_condition = EXCLUDED.vehicle_condition,
	category = EXCLUDED.category,
	model_range = EXCLUDED.model_range,
	trim_line = EXCLUDED.trim_line,
	vehicle_number = EXCLUDED.vehicle_number,
	origin = EXCLUDED.origin,
	cubic_capacity = EXCLUDED.cubic_capacity,
	drive_type = EXCLUDED.drive_type,
	energy_consumption = EXCLUDED.energy_consumption,
	co2_emissions = EXCLUDED.co2_emissions,
	co2_class = EXCLUDED.co2_class,
	fuel_consumption = EXCLUDED.fuel_consumption,
	attributes = EXCLUDED.attributes,
	image_urls = EXCLUDED.image_urls,
	updated_at = now()
RETURNING id;`

// Upsert writes a listing keyed by URL and replaces its feature links. The
// row's created_at is preserved on update.
func (s *CarStore) Upsert(ctx context.Context, rec scraper.Record) error {
	if rec.URL == "" {
		return fmt.Errorf("record url is required")
	}
	attrsJSON, err := json.Marshal(orEmptyMap(rec.Attributes))
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	imagesJSON, err := json.Marshal(orEmptySlice(rec.ImageURLs))
	if err != nil {
		return fmt.Errorf("marshal image urls: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var carID int64
	err = tx.QueryRow(ctx, upsertCarQuery,
		scraper.Source, rec.ListingID, rec.URL, rec.Title, rec.AdditionalInfo,
		rec.Price, rec.Mileage, rec.Power, rec.FuelType, rec.Transmission,
		rec.FirstRegistration, rec.Dealer, rec.DealerRating, rec.SellerType,
		rec.Location, rec.Phone, rec.Rating, rec.Negotiable, rec.MonthlyRate,
		rec.MonthlyRateLink, rec.FinancingLink, rec.VehicleCondition,
		rec.Category, rec.ModelRange, rec.TrimLine, rec.VehicleNumber,
		rec.Origin, rec.CubicCapacity, rec.DriveType, rec.EnergyConsumption,
		rec.CO2Emissions, rec.CO2Class, rec.FuelConsumption,
		attrsJSON, imagesJSON,
	).Scan(&carID)
	if err != nil {
		return fmt.Errorf("upsert car: %w", err)
	}

	if err := s.replaceFeatures(ctx, tx, carID, rec.Features); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// replaceFeatures rewrites the car's feature links wholesale. Sections and
// features themselves are upserted by name and shared across cars.
func (s *CarStore) replaceFeatures(ctx context.Context, tx pgx.Tx, carID int64, features map[string][]string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM car_features WHERE car_id = $1;`, carID); err != nil {
		return fmt.Errorf("clear car features: %w", err)
	}

	sections := make([]string, 0, len(features))
	for section := range features {
		sections = append(sections, section)
	}
	sort.Strings(sections)

	for _, section := range sections {
		var sectionID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO feature_sections (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id;`, section).Scan(&sectionID)
		if err != nil {
			return fmt.Errorf("upsert feature section %q: %w", section, err)
		}
		for _, feature := range features[section] {
			var featureID int64
			err := tx.QueryRow(ctx, `
				INSERT INTO features (name) VALUES ($1)
				ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
				RETURNING id;`, feature).Scan(&featureID)
			if err != nil {
				return fmt.Errorf("upsert feature %q: %w", feature, err)
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO car_features (car_id, feature_id, section_id)
				VALUES ($1, $2, $3)
				ON CONFLICT DO NOTHING;`, carID, featureID, sectionID)
			if err != nil {
				return fmt.Errorf("link feature %q: %w", feature, err)
			}
		}
	}
	return nil
}

const selectCarColumns = `
	id, listing_id, url, title, additional_info, price, mileage, power,
	fuel_type, transmission, first_registration, dealer, dealer_rating,
	seller_type, location, phone, rating, negotiable, monthly_rate,
	monthly_rate_link, financing_link, vehicle_condition, category,
	model_range, trim_line, vehicle_number, origin, cubic_capacity,
	drive_type, energy_consumption, co2_emissions, co2_class,
	fuel_consumption, attributes, image_urls, created_at, updated_at`

// GetByID fetches one listing with its features.
func (s *CarStore) GetByID(ctx context.Context, id int64) (store.Car, error) {
	query := `SELECT` + selectCarColumns + ` FROM cars WHERE id = $1;`

	var (
		car        store.Car
		attrsJSON  []byte
		imagesJSON []byte
	)
	rec := &car.Record
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&car.ID, &rec.ListingID, &rec.URL, &rec.Title, &rec.AdditionalInfo,
		&rec.Price, &rec.Mileage, &rec.Power, &rec.FuelType, &rec.Transmission,
		&rec.FirstRegistration, &rec.Dealer, &rec.DealerRating, &rec.SellerType,
		&rec.Location, &rec.Phone, &rec.Rating, &rec.Negotiable, &rec.MonthlyRate,
		&rec.MonthlyRateLink, &rec.FinancingLink, &rec.VehicleCondition,
		&rec.Category, &rec.ModelRange, &rec.TrimLine, &rec.VehicleNumber,
		&rec.Origin, &rec.CubicCapacity, &rec.DriveType, &rec.EnergyConsumption,
		&rec.CO2Emissions, &rec.CO2Class, &rec.FuelConsumption,
		&attrsJSON, &imagesJSON, &car.CreatedAt, &car.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Car{}, store.ErrNotFound
		}
		return store.Car{}, fmt.Errorf("get car: %w", err)
	}
	if err := json.Unmarshal(attrsJSON, &rec.Attributes); err != nil {
		return store.Car{}, fmt.Errorf("decode attributes: %w", err)
	}
	if err := json.Unmarshal(imagesJSON, &rec.ImageURLs); err != nil {
		return store.Car{}, fmt.Errorf("decode image urls: %w", err)
	}

	features, err := s.carFeatures(ctx, id)
	if err != nil {
		return store.Car{}, err
	}
	rec.Features = features
	return car, nil
}

func (s *CarStore) carFeatures(ctx context.Context, carID int64) (map[string][]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT fs.name, f.name
		FROM car_features cf
		JOIN features f ON f.id = cf.feature_id
		JOIN feature_sections fs ON fs.id = cf.section_id
		WHERE cf.car_id = $1
		ORDER BY fs.name, f.name;`, carID)
	if err != nil {
		return nil, fmt.Errorf("list car features: %w", err)
	}
	defer rows.Close()

	var features map[string][]string
	for rows.Next() {
		var section, feature string
		if err := rows.Scan(&section, &feature); err != nil {
			return nil, fmt.Errorf("scan car feature: %w", err)
		}
		if features == nil {
			features = make(map[string][]string)
		}
		features[section] = append(features[section], feature)
	}
	return features, rows.Err()
}

const summaryColumns = `id, listing_id, url, title, price, mileage, location, updated_at`

// List returns listings ordered by most recently updated.
func (s *CarStore) List(ctx context.Context, limit, offset int) ([]store.CarSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+summaryColumns+`
		FROM cars
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2;`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list cars: %w", err)
	}
	return scanSummaries(rows)
}

// Search matches the query against title, additional info, and location.
func (s *CarStore) Search(ctx context.Context, query string, limit int) ([]store.CarSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+summaryColumns+`
		FROM cars
		WHERE title ILIKE '%' || $1 || '%'
		   OR additional_info ILIKE '%' || $1 || '%'
		   OR location ILIKE '%' || $1 || '%'
		ORDER BY updated_at DESC
		LIMIT $2;`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search cars: %w", err)
	}
	return scanSummaries(rows)
}

func scanSummaries(rows pgx.Rows) ([]store.CarSummary, error) {
	defer rows.Close()
	var out []store.CarSummary
	for rows.Next() {
		var c store.CarSummary
		err := rows.Scan(&c.ID, &c.ListingID, &c.URL, &c.Title, &c.Price,
			&c.Mileage, &c.Location, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan car summary: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the total number of stored listings.
func (s *CarStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM cars;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cars: %w", err)
	}
	return n, nil
}

// Stats aggregates catalog totals in one round trip.
func (s *CarStore) Stats(ctx context.Context) (store.Stats, error) {
	var st store.Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM cars),
			(SELECT count(*) FROM features),
			(SELECT count(*) FROM feature_sections),
			(SELECT max(updated_at) FROM cars);`).
		Scan(&st.TotalCars, &st.TotalFeatures, &st.TotalSections, &st.LastUpdatedAt)
	if err != nil {
		return store.Stats{}, fmt.Errorf("car stats: %w", err)
	}
	return st, nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
