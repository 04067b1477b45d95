package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/carmarket/crawler/internal/progress"
)

// ErrAlreadyRunning is returned when a run is requested while another run
// holds the engine. Duplicate requests are rejected, never queued.
var ErrAlreadyRunning = errors.New("crawl already running")

// Config holds engine-level settings shared by all runs.
type Config struct {
	// Domain filters harvested image URLs (default Source).
	Domain string
	// NavTimeout bounds each page navigation (default 30s).
	NavTimeout time.Duration
	// ConsentTimeout bounds the consent-banner wait (default 5s).
	ConsentTimeout time.Duration
	// PaginationTimeout bounds each next-page click (default 10s).
	PaginationTimeout time.Duration
	// ArchivePrefix namespaces archived page snapshots.
	ArchivePrefix string
}

func (c *Config) applyDefaults() {
	if c.Domain == "" {
		c.Domain = Source
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.ConsentTimeout <= 0 {
		c.ConsentTimeout = 5 * time.Second
	}
	if c.PaginationTimeout <= 0 {
		c.PaginationTimeout = 10 * time.Second
	}
	if c.ArchivePrefix == "" {
		c.ArchivePrefix = "listings"
	}
}

// Completion is the payload published when a run ends.
type Completion struct {
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	StartURL   string    `json:"start_url"`
	Pages      int       `json:"pages_scraped"`
	Cars       int       `json:"total_cars"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Engine orchestrates crawl runs: one browser session per run, page-by-page
// extraction, duplicate suppression, persistence, and progress fan-out. At
// most one run is active at a time.
type Engine struct {
	sessions  SessionFactory
	sink      RecordSink
	archive   Archiver
	publisher Publisher
	emitter   progress.Emitter
	clock     Clock
	cfg       Config
	logger    *zap.Logger

	running atomic.Bool
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithArchiver stores raw detail-page HTML for deep runs.
func WithArchiver(a Archiver) Option { return func(e *Engine) { e.archive = a } }

// WithPublisher emits a Completion when each run ends.
func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publisher = p } }

// WithEmitter fans run milestones out to progress sinks.
func WithEmitter(em progress.Emitter) Option { return func(e *Engine) { e.emitter = em } }

// WithClock overrides the time source.
func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

// NewEngine wires an engine over a session factory and a record sink.
func NewEngine(sessions SessionFactory, sink RecordSink, cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()
	e := &Engine{
		sessions: sessions,
		sink:     sink,
		clock:    systemClock{},
		cfg:      cfg,
		logger:   logger.Named("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Running reports whether a run currently holds the engine.
func (e *Engine) Running() bool { return e.running.Load() }

// Run couples a run's identifier with its event stream.
type Run struct {
	ID uuid.UUID
	// Events yields zero or more progress events followed by exactly one
	// terminal event, then closes.
	Events <-chan Event
}

// Stream admits a run and returns its event stream. The caller must drain
// Events; the run goroutine blocks on undelivered events until ctx ends.
// Returns ErrAlreadyRunning while another run is active.
func (e *Engine) Stream(ctx context.Context, req Request) (Run, error) {
	if err := req.Validate(); err != nil {
		return Run{}, fmt.Errorf("invalid crawl request: %w", err)
	}
	if !e.running.CompareAndSwap(false, true) {
		return Run{}, ErrAlreadyRunning
	}
	id, err := uuid.NewV7()
	if err != nil {
		e.running.Store(false)
		return Run{}, fmt.Errorf("generate run id: %w", err)
	}
	events := make(chan Event, 1)
	go func() {
		defer e.running.Store(false)
		defer close(events)
		e.run(ctx, id, req, events)
	}()
	return Run{ID: id, Events: events}, nil
}

// Batch runs a crawl to completion and aggregates its event stream. The
// aggregate carries exactly the listings a Stream caller would have seen.
func (e *Engine) Batch(ctx context.Context, req Request) (Result, error) {
	run, err := e.Stream(ctx, req)
	if err != nil {
		return Result{}, err
	}
	res := Result{Status: StatusError, Timestamp: e.clock.Now()}
	for evt := range run.Events {
		switch evt.Type {
		case EventProgress:
			res.PagesScraped = evt.Page
			res.TotalCars = evt.TotalCars
			res.Cars = append(res.Cars, evt.Records...)
		case EventComplete:
			res.Status = StatusCompleted
			res.PagesScraped = evt.TotalPages
			res.TotalCars = evt.TotalCars
			res.Timestamp = evt.Timestamp
		case EventError:
			res.Status = StatusError
			res.Error = evt.Error
			res.Timestamp = evt.Timestamp
		}
	}
	// A stream that closes without its terminal event means the consumer's
	// context ended mid-run.
	if res.Status == StatusError && res.Error == "" {
		res.Error = "run canceled before completion"
	}
	return res, nil
}

// run drives one crawl. Page and listing failures are logged and skipped;
// only session setup, initial navigation, and access denial are fatal.
func (e *Engine) run(ctx context.Context, id uuid.UUID, req Request, events chan<- Event) {
	started := e.clock.Now()
	logger := e.logger.With(zap.String("run_id", id.String()))
	logger.Info("crawl run starting",
		zap.String("start_url", req.StartURL),
		zap.Int("max_pages", req.MaxPages),
		zap.Bool("deep", req.Deep))
	e.emit(progress.Event{RunID: id, TS: started, Stage: progress.StageRunStarted, StartURL: req.StartURL})

	fail := func(msg string) {
		logger.Error("crawl run failed", zap.String("reason", msg))
		e.finish(ctx, id, req, started, Result{Status: StatusError, Error: msg}, events)
	}

	sess, err := e.sessions.Open(ctx)
	if err != nil {
		fail(fmt.Sprintf("open browser session: %v", err))
		return
	}
	defer sess.Close()

	if err := sess.Navigate(ctx, req.StartURL, e.cfg.NavTimeout); err != nil {
		fail(fmt.Sprintf("navigate to start page: %v", err))
		return
	}
	if title, err := sess.Title(ctx); err == nil && AccessDenied(title) {
		fail("access denied by target site")
		return
	}
	if sess.DismissConsent(ctx, e.cfg.ConsentTimeout) {
		logger.Debug("consent banner dismissed")
	}

	doc, err := e.snapshot(ctx, sess)
	if err != nil {
		fail(fmt.Sprintf("read start page: %v", err))
		return
	}

	base, _ := url.Parse(req.StartURL)
	totalPages := ParseTotalPages(doc, req.MaxPages, logger)
	limiter := rate.NewLimiter(rate.Every(req.Delay), 1)
	limiter.Allow() // burn the initial token so the first wait takes a full delay

	seen := make(map[string]struct{})
	totalCars := 0
	pagesScraped := 0

	for page := 1; page <= totalPages; page++ {
		if ctx.Err() != nil {
			fail(fmt.Sprintf("run canceled: %v", ctx.Err()))
			return
		}
		if page > 1 {
			var err error
			doc, err = e.snapshot(ctx, sess)
			if err != nil {
				logger.Warn("page snapshot failed, skipping page",
					zap.Int("page", page), zap.Error(err))
				doc = nil
			}
		}

		var records []Record
		if doc != nil {
			records = e.scrapePage(ctx, id, sess, doc, base, req, seen, logger.With(zap.Int("page", page)))
		}
		pagesScraped = page
		totalCars += len(records)
		logger.Info("page scraped", zap.Int("page", page),
			zap.Int("cars_found", len(records)), zap.Int("total_cars", totalCars))
		e.emit(progress.Event{RunID: id, TS: e.clock.Now(), Stage: progress.StagePageScraped,
			Page: page, Cars: int64(len(records))})

		if !e.deliver(ctx, events, Event{
			Type:      EventProgress,
			Page:      page,
			CarsFound: len(records),
			TotalCars: totalCars,
			Records:   records,
			Timestamp: e.clock.Now(),
		}) {
			fail(fmt.Sprintf("run canceled: %v", ctx.Err()))
			return
		}

		if page == totalPages {
			break
		}
		advanced, err := sess.ClickNext(ctx, e.cfg.PaginationTimeout)
		if err != nil {
			logger.Warn("pagination click failed, ending run early",
				zap.Int("page", page), zap.Error(err))
			break
		}
		if !advanced {
			logger.Info("pagination control exhausted", zap.Int("page", page))
			break
		}
		if err := limiter.Wait(ctx); err != nil {
			fail(fmt.Sprintf("run canceled: %v", err))
			return
		}
	}

	e.finish(ctx, id, req, started, Result{
		Status:       StatusCompleted,
		PagesScraped: pagesScraped,
		TotalCars:    totalCars,
	}, events)
}

// scrapePage extracts one results page: summary stubs, duplicate
// suppression, optional detail enrichment, and persistence.
func (e *Engine) scrapePage(ctx context.Context, id uuid.UUID, sess Session, doc *goquery.Document, base *url.URL, req Request, seen map[string]struct{}, logger *zap.Logger) []Record {
	var fresh []Record
	for _, stub := range SummaryCards(doc, base) {
		key := DedupKey(stub.URL)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		rec := stub
		if req.Deep {
			enriched, err := e.scrapeDetail(ctx, sess, stub)
			if err != nil {
				logger.Warn("detail extraction failed, keeping summary",
					zap.String("url", stub.URL), zap.Error(err))
			} else {
				rec = enriched
			}
		}
		if e.sink != nil {
			if err := e.sink.Upsert(ctx, rec); err != nil {
				logger.Warn("listing upsert failed",
					zap.String("url", rec.URL), zap.Error(err))
				e.emit(progress.Event{RunID: id, TS: e.clock.Now(),
					Stage: progress.StageStoreFailed, Note: err.Error()})
			} else {
				e.emit(progress.Event{RunID: id, TS: e.clock.Now(),
					Stage: progress.StageListingStored, Cars: 1})
			}
		}
		fresh = append(fresh, rec)
	}
	return fresh
}

// scrapeDetail visits a listing page, runs the detail passes, archives the
// raw HTML when an archiver is wired, and returns to the results page.
func (e *Engine) scrapeDetail(ctx context.Context, sess Session, stub Record) (Record, error) {
	resultsURL, err := sess.Location(ctx)
	if err != nil {
		return stub, fmt.Errorf("read results location: %w", err)
	}
	if err := sess.Navigate(ctx, stub.URL, e.cfg.NavTimeout); err != nil {
		return stub, fmt.Errorf("navigate to listing: %w", err)
	}
	html, err := sess.HTML(ctx)

	// Return to the results page before reporting any error so pagination
	// state survives a failed detail visit.
	if navErr := sess.Navigate(ctx, resultsURL, e.cfg.NavTimeout); navErr != nil {
		return stub, fmt.Errorf("return to results page: %w", navErr)
	}
	if err != nil {
		return stub, fmt.Errorf("read listing page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return stub, fmt.Errorf("parse listing page: %w", err)
	}
	rec := DetailRecord(doc, stub, e.cfg.Domain)

	if e.archive != nil {
		name := rec.ListingID
		if name == "" {
			name = uuid.NewString()
		}
		path := fmt.Sprintf("%s/%s.html", e.cfg.ArchivePrefix, name)
		if _, err := e.archive.PutObject(ctx, path, "text/html; charset=utf-8", []byte(html)); err != nil {
			e.logger.Warn("archive listing html failed",
				zap.String("url", rec.URL), zap.Error(err))
		}
	}
	return rec, nil
}

func (e *Engine) snapshot(ctx context.Context, sess Session) (*goquery.Document, error) {
	html, err := sess.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("dom snapshot: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse dom snapshot: %w", err)
	}
	return doc, nil
}

// finish emits the terminal event, the run milestone, and the completion
// notification.
func (e *Engine) finish(ctx context.Context, id uuid.UUID, req Request, started time.Time, res Result, events chan<- Event) {
	now := e.clock.Now()
	evt := Event{Timestamp: now}
	stage := progress.StageRunCompleted
	if res.Status == StatusError {
		evt.Type = EventError
		evt.Error = res.Error
		stage = progress.StageRunFailed
	} else {
		evt.Type = EventComplete
		evt.TotalPages = res.PagesScraped
		evt.TotalCars = res.TotalCars
	}
	e.deliver(ctx, events, evt)

	e.emit(progress.Event{RunID: id, TS: now, Stage: stage,
		Pages: res.PagesScraped, Cars: int64(res.TotalCars),
		Dur: now.Sub(started), Note: res.Error})

	if e.publisher != nil {
		// Publish with a fresh context so a canceled run still notifies.
		pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := e.publisher.Publish(pubCtx, Completion{
			RunID:      id.String(),
			Status:     res.Status,
			StartURL:   req.StartURL,
			Pages:      res.PagesScraped,
			Cars:       res.TotalCars,
			Error:      res.Error,
			StartedAt:  started,
			FinishedAt: now,
		}); err != nil {
			e.logger.Warn("publish run completion failed", zap.Error(err))
		}
	}
}

// deliver blocks until the event is accepted or ctx ends. It reports false
// only when the consumer went away.
func (e *Engine) deliver(ctx context.Context, events chan<- Event, evt Event) bool {
	select {
	case events <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) emit(evt progress.Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}
