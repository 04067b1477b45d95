package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/carmarket/crawler/internal/progress"
)

// LogSink writes progress events to the structured log at debug level, with
// terminal events promoted to info. Useful in development.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("progress")}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID.String()),
			zap.String("stage", string(evt.Stage)),
			zap.Int("page", evt.Page),
			zap.Int64("cars", evt.Cars),
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Terminal() {
			s.logger.Info("crawl run finished", fields...)
			continue
		}
		s.logger.Debug("crawl progress", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
