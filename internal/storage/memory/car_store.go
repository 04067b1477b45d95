// Package memory provides in-memory persistence used in development and
// tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/carmarket/crawler/internal/scraper"
	"github.com/carmarket/crawler/internal/store"
)

// CarStore is an in-memory store.CarRepository keyed by listing URL.
type CarStore struct {
	mu     sync.RWMutex
	nextID int64
	byURL  map[string]*store.Car
	now    func() time.Time
}

// NewCarStore returns an empty CarStore.
func NewCarStore() *CarStore {
	return &CarStore{
		byURL: make(map[string]*store.Car),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Upsert inserts or replaces a listing, preserving the original CreatedAt.
func (s *CarStore) Upsert(_ context.Context, rec scraper.Record) error {
	if rec.URL == "" {
		return errors.New("record url is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if existing, ok := s.byURL[rec.URL]; ok {
		existing.Record = rec
		existing.UpdatedAt = now
		return nil
	}
	s.nextID++
	s.byURL[rec.URL] = &store.Car{
		ID:        s.nextID,
		Record:    rec,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

// GetByID fetches one listing.
func (s *CarStore) GetByID(_ context.Context, id int64) (store.Car, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, car := range s.byURL {
		if car.ID == id {
			return *car, nil
		}
	}
	return store.Car{}, store.ErrNotFound
}

// List returns listings ordered by most recently updated.
func (s *CarStore) List(_ context.Context, limit, offset int) ([]store.CarSummary, error) {
	s.mu.RLock()
	cars := s.sortedLocked()
	s.mu.RUnlock()

	if offset >= len(cars) {
		return nil, nil
	}
	cars = cars[offset:]
	if limit > 0 && limit < len(cars) {
		cars = cars[:limit]
	}
	return summarize(cars), nil
}

// Search matches the query case-insensitively against title, additional
// info, and location.
func (s *CarStore) Search(_ context.Context, query string, limit int) ([]store.CarSummary, error) {
	q := strings.ToLower(query)
	s.mu.RLock()
	var matched []store.Car
	for _, car := range s.sortedLocked() {
		rec := car.Record
		if strings.Contains(strings.ToLower(rec.Title), q) ||
			strings.Contains(strings.ToLower(rec.AdditionalInfo), q) ||
			strings.Contains(strings.ToLower(rec.Location), q) {
			matched = append(matched, car)
		}
	}
	s.mu.RUnlock()

	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return summarize(matched), nil
}

// Count returns the number of stored listings.
func (s *CarStore) Count(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byURL)), nil
}

// Stats aggregates the stored listings.
func (s *CarStore) Stats(context.Context) (store.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	features := make(map[string]struct{})
	sections := make(map[string]struct{})
	var last *time.Time
	for _, car := range s.byURL {
		for section, names := range car.Record.Features {
			sections[section] = struct{}{}
			for _, name := range names {
				features[name] = struct{}{}
			}
		}
		if last == nil || car.UpdatedAt.After(*last) {
			updated := car.UpdatedAt
			last = &updated
		}
	}
	return store.Stats{
		TotalCars:     int64(len(s.byURL)),
		TotalFeatures: int64(len(features)),
		TotalSections: int64(len(sections)),
		LastUpdatedAt: last,
	}, nil
}

func (s *CarStore) sortedLocked() []store.Car {
	cars := make([]store.Car, 0, len(s.byURL))
	for _, car := range s.byURL {
		cars = append(cars, *car)
	}
	sort.Slice(cars, func(i, j int) bool {
		if cars[i].UpdatedAt.Equal(cars[j].UpdatedAt) {
			return cars[i].ID > cars[j].ID
		}
		return cars[i].UpdatedAt.After(cars[j].UpdatedAt)
	})
	return cars
}

func summarize(cars []store.Car) []store.CarSummary {
	if len(cars) == 0 {
		return nil
	}
	out := make([]store.CarSummary, 0, len(cars))
	for _, car := range cars {
		out = append(out, store.CarSummary{
			ID:        car.ID,
			ListingID: car.Record.ListingID,
			URL:       car.Record.URL,
			Title:     car.Record.Title,
			Price:     car.Record.Price,
			Mileage:   car.Record.Mileage,
			Location:  car.Record.Location,
			UpdatedAt: car.UpdatedAt,
		})
	}
	return out
}
