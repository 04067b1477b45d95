package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carmarket/crawler/internal/scraper"
	"github.com/carmarket/crawler/internal/store"
)

func TestCarStoreUpsertPreservesCreatedAt(t *testing.T) {
	t.Parallel()

	s := NewCarStore()
	times := []time.Time{
		time.Unix(1700000000, 0).UTC(),
		time.Unix(1700003600, 0).UTC(),
	}
	idx := 0
	s.now = func() time.Time { t := times[idx]; idx++; return t }

	ctx := context.Background()
	rec := scraper.Record{URL: "https://x/details?id=1", Title: "old"}
	require.NoError(t, s.Upsert(ctx, rec))

	rec.Title = "new"
	require.NoError(t, s.Upsert(ctx, rec))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	car, err := s.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "new", car.Record.Title)
	assert.Equal(t, times[0], car.CreatedAt)
	assert.Equal(t, times[1], car.UpdatedAt)
}

func TestCarStoreListAndSearch(t *testing.T) {
	t.Parallel()

	s := NewCarStore()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, scraper.Record{URL: "https://x/1", Title: "BMW 320d", Location: "München"}))
	require.NoError(t, s.Upsert(ctx, scraper.Record{URL: "https://x/2", Title: "Audi A4", Location: "Berlin"}))

	all, err := s.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	page, err := s.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)

	hits, err := s.Search(ctx, "bmw", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "BMW 320d", hits[0].Title)

	byCity, err := s.Search(ctx, "berlin", 10)
	require.NoError(t, err)
	require.Len(t, byCity, 1)
	assert.Equal(t, "Audi A4", byCity[0].Title)
}

func TestCarStoreStats(t *testing.T) {
	t.Parallel()

	s := NewCarStore()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, scraper.Record{
		URL:      "https://x/1",
		Features: map[string][]string{"General": {"ABS", "Navi"}, "Comfort": {"Klimaanlage"}},
	}))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalCars)
	assert.Equal(t, int64(3), stats.TotalFeatures)
	assert.Equal(t, int64(2), stats.TotalSections)
	require.NotNil(t, stats.LastUpdatedAt)
}

func TestCarStoreGetByIDNotFound(t *testing.T) {
	t.Parallel()

	_, err := NewCarStore().GetByID(context.Background(), 42)
	require.ErrorIs(t, err, store.ErrNotFound)
}
