package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *captureSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func validEvent() Event {
	return Event{RunID: uuid.New(), TS: time.Now().UTC(), Stage: StageRunStarted}
}

func TestHubDeliversToSinks(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: 10 * time.Millisecond}, sink)

	for range 5 {
		hub.Emit(validEvent())
	}
	require.Eventually(t, func() bool {
		return sink.count() == 5
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Close(context.Background()))
	assert.True(t, sink.closed)
}

func TestHubCloseFlushesBufferedEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	// A long batch wait forces the flush to happen during Close.
	hub := NewHub(Config{MaxBatchWait: time.Hour}, sink)

	for range 3 {
		hub.Emit(validEvent())
	}
	require.NoError(t, hub.Close(context.Background()))
	assert.Equal(t, 3, sink.count())
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: 10 * time.Millisecond}, sink)

	hub.Emit(Event{})
	hub.Emit(Event{RunID: uuid.New(), TS: time.Now(), Stage: "BOGUS"})
	require.NoError(t, hub.Close(context.Background()))
	assert.Zero(t, sink.count())
}

func TestHubEmitAfterCloseIsIgnored(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{}, sink)
	require.NoError(t, hub.Close(context.Background()))

	hub.Emit(validEvent())
	assert.Zero(t, sink.count())
}

func TestNilHubIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(validEvent())
	require.NoError(t, hub.Close(context.Background()))
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	id := uuid.New()

	require.NoError(t, Event{RunID: id, TS: now, Stage: StageRunStarted}.Validate())
	require.NoError(t, Event{RunID: id, TS: now, Stage: StagePageScraped, Page: 1}.Validate())

	assert.Error(t, Event{TS: now, Stage: StageRunStarted}.Validate())
	assert.Error(t, Event{RunID: id, Stage: StageRunStarted}.Validate())
	assert.Error(t, Event{RunID: id, TS: now, Stage: StagePageScraped}.Validate())
	assert.Error(t, Event{RunID: id, TS: now, Stage: StageRunFailed}.Validate())
	assert.Error(t, Event{RunID: id, TS: now, Stage: "WHAT"}.Validate())
}
