// Package store defines the persistence interfaces and row types shared by
// the storage backends.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/carmarket/crawler/internal/scraper"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Car is a persisted listing with its row metadata. CreatedAt survives
// upserts; UpdatedAt moves on every write.
type Car struct {
	ID        int64          `json:"id"`
	Record    scraper.Record `json:"record"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CarSummary is the compact listing shape returned by list and search.
type CarSummary struct {
	ID        int64     `json:"id"`
	ListingID string    `json:"listing_id,omitempty"`
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	Price     string    `json:"price,omitempty"`
	Mileage   string    `json:"mileage,omitempty"`
	Location  string    `json:"location,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats aggregates the car catalog.
type Stats struct {
	TotalCars     int64      `json:"total_cars"`
	TotalFeatures int64      `json:"total_features"`
	TotalSections int64      `json:"total_sections"`
	LastUpdatedAt *time.Time `json:"last_updated_at,omitempty"`
}

// CarRepository persists and queries vehicle listings. Upsert is keyed by
// the listing URL and must preserve the original created_at.
type CarRepository interface {
	Upsert(ctx context.Context, rec scraper.Record) error
	GetByID(ctx context.Context, id int64) (Car, error)
	List(ctx context.Context, limit, offset int) ([]CarSummary, error)
	Search(ctx context.Context, query string, limit int) ([]CarSummary, error)
	Count(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (Stats, error)
}

// RunStatus is the lifecycle state of a crawl run row.
type RunStatus string

// Supported run statuses.
const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// CrawlRun is one recorded crawl, written at start and finalized at the end.
type CrawlRun struct {
	ID           uuid.UUID  `json:"id"`
	StartURL     string     `json:"start_url"`
	Status       RunStatus  `json:"status"`
	Pages        int        `json:"pages_scraped"`
	Cars         int64      `json:"total_cars"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// RunRepository records crawl-run lifecycles.
type RunRepository interface {
	StartRun(ctx context.Context, id uuid.UUID, startURL string, startedAt time.Time) error
	CompleteRun(ctx context.Context, id uuid.UUID, finishedAt time.Time, status RunStatus, pages int, cars int64, errMsg *string) error
	GetRun(ctx context.Context, id uuid.UUID) (CrawlRun, error)
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]CrawlRun, error)
}
