package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carmarket/crawler/internal/scraper"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRunner) Batch(_ context.Context, _ scraper.Request) (scraper.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return scraper.Result{}, f.err
	}
	return scraper.Result{Status: scraper.StatusCompleted, PagesScraped: 1}, nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSchedulerRunOnStart(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	s := NewScheduler(runner, Config{
		Interval:   time.Hour,
		RunOnStart: true,
		Request:    scraper.Request{StartURL: "https://x", MaxPages: 1},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return runner.callCount() == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerFiresOnTicks(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	s := NewScheduler(runner, Config{
		Interval: 20 * time.Millisecond,
		Request:  scraper.Request{StartURL: "https://x", MaxPages: 1},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool {
		return runner.callCount() >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestSchedulerSkipsWhileRunning(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: scraper.ErrAlreadyRunning}
	s := NewScheduler(runner, Config{
		Interval:   10 * time.Millisecond,
		RunOnStart: true,
		Request:    scraper.Request{StartURL: "https://x", MaxPages: 1},
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	// The busy error is swallowed; the loop keeps ticking.
	assert.GreaterOrEqual(t, runner.callCount(), 2)
}

func TestNewSchedulerDefaultInterval(t *testing.T) {
	t.Parallel()

	s := NewScheduler(&fakeRunner{}, Config{}, nil)
	assert.Equal(t, time.Hour, s.cfg.Interval)
}
