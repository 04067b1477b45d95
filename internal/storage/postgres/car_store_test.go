package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carmarket/crawler/internal/scraper"
	"github.com/carmarket/crawler/internal/store"
)

func TestCarStoreUpsertReplacesFeatures(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	carStore, err := NewCarStoreWithPool(mock)
	require.NoError(t, err)

	rec := scraper.Record{
		URL:       "https://suchen.mobile.de/fahrzeuge/details.html?id=42",
		ListingID: "42",
		Title:     "BMW 320d",
		Features:  map[string][]string{"Comfort": {"Klimaanlage"}},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO cars").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec("DELETE FROM car_features").
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectQuery("INSERT INTO feature_sections").
		WithArgs("Comfort").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectQuery("INSERT INTO features").
		WithArgs("Klimaanlage").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(9)))
	mock.ExpectExec("INSERT INTO car_features").
		WithArgs(int64(7), int64(9), int64(3)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, carStore.Upsert(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCarStoreUpsertRequiresURL(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	carStore, err := NewCarStoreWithPool(mock)
	require.NoError(t, err)

	err = carStore.Upsert(context.Background(), scraper.Record{})
	require.Error(t, err)
}

func TestCarStoreGetByIDNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	carStore, err := NewCarStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT").
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	_, err = carStore.GetByID(context.Background(), 99)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCarStoreList(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	carStore, err := NewCarStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT (.+) FROM cars").
		WithArgs(10, 0).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "listing_id", "url", "title", "price", "mileage", "location", "updated_at",
		}).AddRow(int64(1), "42", "https://suchen.mobile.de/x?id=42", "BMW 320d",
			"24.990 €", "98.000 km", "München", now))

	cars, err := carStore.List(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, cars, 1)
	assert.Equal(t, "BMW 320d", cars[0].Title)
	assert.Equal(t, now, cars[0].UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCarStoreStats(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	carStore, err := NewCarStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT").
		WillReturnRows(pgxmock.NewRows([]string{"c", "f", "s", "u"}).
			AddRow(int64(120), int64(340), int64(6), &now))

	stats, err := carStore.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(120), stats.TotalCars)
	assert.Equal(t, int64(340), stats.TotalFeatures)
	assert.Equal(t, int64(6), stats.TotalSections)
	require.NotNil(t, stats.LastUpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
