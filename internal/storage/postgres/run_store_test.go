package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carmarket/crawler/internal/store"
)

func TestRunStoreStartAndComplete(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runStore, err := NewRunStoreWithPool(mock)
	require.NoError(t, err)

	id := uuid.New()
	startedAt := time.Unix(1700000000, 0).UTC()
	finishedAt := startedAt.Add(2 * time.Minute)

	mock.ExpectExec("INSERT INTO crawl_runs").
		WithArgs(id, "https://suchen.mobile.de/fahrzeuge/search.html", store.RunRunning, startedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE crawl_runs").
		WithArgs(finishedAt, store.RunCompleted, 3, int64(57), (*string)(nil), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ctx := context.Background()
	require.NoError(t, runStore.StartRun(ctx, id, "https://suchen.mobile.de/fahrzeuge/search.html", startedAt))
	require.NoError(t, runStore.CompleteRun(ctx, id, finishedAt, store.RunCompleted, 3, 57, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreGetRunNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runStore, err := NewRunStoreWithPool(mock)
	require.NoError(t, err)

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM crawl_runs").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err = runStore.GetRun(context.Background(), id)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreListRuns(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runStore, err := NewRunStoreWithPool(mock)
	require.NoError(t, err)

	id := uuid.New()
	startedAt := time.Unix(1700000000, 0).UTC()
	status := store.RunCompleted

	mock.ExpectQuery("SELECT (.+) FROM crawl_runs").
		WithArgs(&status, 20, 0).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "start_url", "status", "pages_scraped", "total_cars",
			"error_message", "started_at", "finished_at",
		}).AddRow(id, "https://suchen.mobile.de/fahrzeuge/search.html",
			store.RunCompleted, 3, int64(57), (*string)(nil), startedAt, (*time.Time)(nil)))

	runs, err := runStore.ListRuns(context.Background(), &status, 20, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, store.RunCompleted, runs[0].Status)
	assert.Equal(t, int64(57), runs[0].Cars)
	require.NoError(t, mock.ExpectationsWereMet())
}
