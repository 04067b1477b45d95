package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/carmarket/crawler/internal/progress"
	"github.com/carmarket/crawler/internal/store"
)

// StoreSink persists run lifecycles via a store.RunRepository. Page and
// listing milestones are not persisted individually; the terminal event
// carries the final counters.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards run lifecycle events to the repository, returning the
// first repository error verbatim.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStarted:
			if err := s.repo.StartRun(ctx, evt.RunID, evt.StartURL, evt.TS); err != nil {
				return fmt.Errorf("record run start: %w", err)
			}
		case progress.StageRunCompleted:
			if err := s.repo.CompleteRun(ctx, evt.RunID, evt.TS, store.RunCompleted, evt.Pages, evt.Cars, nil); err != nil {
				return fmt.Errorf("record run completion: %w", err)
			}
		case progress.StageRunFailed:
			var note *string
			if evt.Note != "" {
				note = &evt.Note
			}
			if err := s.repo.CompleteRun(ctx, evt.RunID, evt.TS, store.RunFailed, evt.Pages, evt.Cars, note); err != nil {
				return fmt.Errorf("record run failure: %w", err)
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
