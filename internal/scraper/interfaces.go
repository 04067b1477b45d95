package scraper

import (
	"context"
	"time"
)

// Session is one live browser tab holding the crawl's navigation state
// (consent acceptance, current results page). Implementations are not safe
// for concurrent use; the engine drives a session from a single goroutine.
type Session interface {
	// Navigate loads a URL and waits for the document to become ready.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// Title returns the current document title.
	Title(ctx context.Context) (string, error)
	// Location returns the current page URL.
	Location(ctx context.Context) (string, error)
	// HTML returns a snapshot of the rendered DOM.
	HTML(ctx context.Context) (string, error)
	// DismissConsent clicks the cookie-consent banner if present and
	// reports whether it did. Absence of the banner is not an error.
	DismissConsent(ctx context.Context, timeout time.Duration) bool
	// ClickNext advances to the next results page. It returns false with a
	// nil error when the control is absent or disabled (the normal halt).
	ClickNext(ctx context.Context, timeout time.Duration) (bool, error)
	// Close releases the tab. Idempotent.
	Close()
}

// SessionFactory opens browser sessions. The engine opens exactly one per
// run and closes it when the run ends.
type SessionFactory interface {
	Open(ctx context.Context) (Session, error)
}

// RecordSink persists extracted listings. Upsert must be idempotent on the
// listing URL.
type RecordSink interface {
	Upsert(ctx context.Context, rec Record) error
}

// Archiver stores raw page snapshots and returns a stable URI for each.
type Archiver interface {
	PutObject(ctx context.Context, path, contentType string, data []byte) (string, error)
}

// Publisher emits run-completion notifications.
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}
