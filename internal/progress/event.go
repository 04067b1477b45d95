// Package progress defines the milestone events emitted by crawl runs and
// the hub that fans them out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStarted    Stage = "RUN_STARTED"
	StagePageScraped   Stage = "PAGE_SCRAPED"
	StageListingStored Stage = "LISTING_STORED"
	StageStoreFailed   Stage = "STORE_FAILED"
	StageRunCompleted  Stage = "RUN_COMPLETED"
	StageRunFailed     Stage = "RUN_FAILED"
)

// Event captures a single crawl-run milestone.
type Event struct {
	// RunID identifies the crawl run the event belongs to.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// StartURL scopes run-start events to their entry page.
	StartURL string
	// Page is the 1-based results page for page-level events.
	Page int
	// Cars carries the new-listing count for a page, or the run total on
	// terminal events.
	Cars int64
	// Pages carries the visited-page count on terminal events.
	Pages int
	// Dur captures the run duration on terminal events.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStarted, StageListingStored, StageStoreFailed, StageRunCompleted:
	case StagePageScraped:
		if e.Page < 1 {
			return errors.New("page scraped requires a page number")
		}
	case StageRunFailed:
		if e.Note == "" {
			return errors.New("run failed requires a note")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Terminal reports whether the stage ends a run.
func (e Event) Terminal() bool {
	return e.Stage == StageRunCompleted || e.Stage == StageRunFailed
}
