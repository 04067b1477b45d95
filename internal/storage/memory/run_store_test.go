package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carmarket/crawler/internal/store"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	s := NewRunStore()
	ctx := context.Background()
	id := uuid.New()
	started := time.Unix(1700000000, 0).UTC()

	require.NoError(t, s.StartRun(ctx, id, "https://x/search", started))

	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.RunRunning, run.Status)

	finished := started.Add(time.Minute)
	require.NoError(t, s.CompleteRun(ctx, id, finished, store.RunCompleted, 3, 57, nil))

	run, err = s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, run.Status)
	assert.Equal(t, 3, run.Pages)
	assert.Equal(t, int64(57), run.Cars)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, finished, *run.FinishedAt)
}

func TestRunStoreListFiltersByStatus(t *testing.T) {
	t.Parallel()

	s := NewRunStore()
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()

	a, b := uuid.New(), uuid.New()
	require.NoError(t, s.StartRun(ctx, a, "https://x/1", base))
	require.NoError(t, s.StartRun(ctx, b, "https://x/2", base.Add(time.Hour)))
	msg := "boom"
	require.NoError(t, s.CompleteRun(ctx, a, base.Add(time.Minute), store.RunFailed, 1, 0, &msg))

	failed := store.RunFailed
	runs, err := s.ListRuns(ctx, &failed, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, a, runs[0].ID)

	all, err := s.ListRuns(ctx, nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Newest first.
	assert.Equal(t, b, all[0].ID)
}

func TestRunStoreCompleteUnknownRun(t *testing.T) {
	t.Parallel()

	err := NewRunStore().CompleteRun(context.Background(), uuid.New(),
		time.Now(), store.RunCompleted, 0, 0, nil)
	require.ErrorIs(t, err, store.ErrNotFound)
}
