package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carmarket/crawler/internal/store"
)

// RunStore is an in-memory store.RunRepository.
type RunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*store.CrawlRun
}

// NewRunStore returns an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]*store.CrawlRun)}
}

// StartRun records a run in the running state.
func (s *RunStore) StartRun(_ context.Context, id uuid.UUID, startURL string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.runs[id]; ok {
		existing.Status = store.RunRunning
		return nil
	}
	s.runs[id] = &store.CrawlRun{
		ID:        id,
		StartURL:  startURL,
		Status:    store.RunRunning,
		StartedAt: startedAt,
	}
	return nil
}

// CompleteRun finalizes a run.
func (s *RunStore) CompleteRun(_ context.Context, id uuid.UUID, finishedAt time.Time, status store.RunStatus, pages int, cars int64, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	run.Status = status
	run.Pages = pages
	run.Cars = cars
	run.ErrorMessage = errMsg
	run.FinishedAt = &finishedAt
	return nil
}

// GetRun retrieves one run.
func (s *RunStore) GetRun(_ context.Context, id uuid.UUID) (store.CrawlRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return store.CrawlRun{}, store.ErrNotFound
	}
	return *run, nil
}

// ListRuns retrieves runs newest first, optionally filtered by status.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.CrawlRun, error) {
	s.mu.RLock()
	var runs []store.CrawlRun
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, *run)
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if offset >= len(runs) {
		return nil, nil
	}
	runs = runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, nil
}
