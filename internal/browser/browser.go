// Package browser manages headless Chrome sessions via chromedp. A session
// is one tab carrying the crawl's navigation state: consent acceptance and
// the current results page.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/carmarket/crawler/internal/scraper"
)

// ErrSessionInit indicates Chrome could not be started or attached to.
var ErrSessionInit = errors.New("browser session init")

// DefaultUserAgent is a desktop Chrome on Linux; marketplaces serve the
// hardened bot page to the default headless agent.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config controls the Chrome process and its tabs.
type Config struct {
	// Headless runs Chrome without a display (default in production).
	Headless bool
	// BinaryPath optionally pins the Chrome executable.
	BinaryPath string
	// UserAgent overrides DefaultUserAgent when set.
	UserAgent string
	// WindowWidth and WindowHeight size the viewport (default 1920x1080).
	WindowWidth  int
	WindowHeight int
}

// Manager owns the Chrome exec allocator and opens sessions against it.
type Manager struct {
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// NewManager builds the allocator with the anti-fingerprint flag set. Chrome
// itself starts lazily on the first session.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.WindowWidth <= 0 {
		cfg.WindowWidth = 1920
	}
	if cfg.WindowHeight <= 0 {
		cfg.WindowHeight = 1080
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.BinaryPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.BinaryPath))
	}
	allocator, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Manager{
		allocator:   allocator,
		allocCancel: cancel,
		logger:      logger.Named("browser"),
	}
}

// Open starts a tab and verifies Chrome is reachable. The caller must Close
// the returned session.
func (m *Manager) Open(ctx context.Context) (scraper.Session, error) {
	tabCtx, cancel := chromedp.NewContext(m.allocator)
	stop := forwardCancel(ctx, cancel)

	// The warmup run forces the browser to launch so startup failures
	// surface here rather than on the first navigation.
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		stop()
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrSessionInit, err)
	}
	stop()

	m.logger.Debug("browser session opened")
	return &Session{ctx: tabCtx, cancel: cancel, logger: m.logger}, nil
}

// Close terminates the Chrome process and every open session.
func (m *Manager) Close() {
	m.allocCancel()
}

// Session is a single Chrome tab implementing scraper.Session.
type Session struct {
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *zap.Logger
	closeOnce sync.Once
}

const (
	consentSelector = "button.mde-consent-accept-btn"
	nextSelector    = `button[data-testid="pagination:next"]`
)

// nextStateJS inspects the next-page control without touching it.
const nextStateJS = `(() => {
	const btn = document.querySelector('button[data-testid="pagination:next"]');
	if (!btn) { return "absent"; }
	const aria = (btn.getAttribute("aria-disabled") || "").toLowerCase();
	if (btn.disabled || aria === "true") { return "disabled"; }
	return "enabled";
})()`

const clickNextJS = `document.querySelector('button[data-testid="pagination:next"]').click()`

// Navigate loads a URL and waits for the body to become ready.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	err := s.run(ctx, timeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Title returns the current document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, 5*time.Second, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	return title, nil
}

// Location returns the current page URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, 5*time.Second, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

// HTML snapshots the rendered DOM.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, 15*time.Second, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("outer html: %w", err)
	}
	return html, nil
}

// DismissConsent clicks the cookie banner if it shows up within the timeout
// and reports whether it did. A missing banner is the common case on every
// page after the first.
func (s *Session) DismissConsent(ctx context.Context, timeout time.Duration) bool {
	err := s.run(ctx, timeout,
		chromedp.WaitVisible(consentSelector, chromedp.ByQuery),
		chromedp.Click(consentSelector, chromedp.ByQuery),
		chromedp.Sleep(time.Second),
	)
	if err != nil {
		s.logger.Debug("consent banner not dismissed", zap.Error(err))
		return false
	}
	return true
}

// ClickNext advances to the next results page. It returns (false, nil) when
// the control is absent or disabled, which ends pagination normally. A
// direct click that fails falls back to a JavaScript click; some overlay
// variants swallow the synthesized mouse event.
func (s *Session) ClickNext(ctx context.Context, timeout time.Duration) (bool, error) {
	var state string
	if err := s.run(ctx, timeout, chromedp.Evaluate(nextStateJS, &state)); err != nil {
		return false, fmt.Errorf("inspect next control: %w", err)
	}
	if state != "enabled" {
		return false, nil
	}

	err := s.run(ctx, timeout,
		chromedp.ScrollIntoView(nextSelector, chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Click(nextSelector, chromedp.ByQuery),
	)
	if err != nil {
		s.logger.Debug("direct next click failed, trying script click", zap.Error(err))
		if jsErr := s.run(ctx, timeout, chromedp.Evaluate(clickNextJS, nil)); jsErr != nil {
			return false, fmt.Errorf("click next control: %w", jsErr)
		}
	}

	if err := s.run(ctx, timeout,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(time.Second),
	); err != nil {
		return false, fmt.Errorf("wait for next page: %w", err)
	}
	return true, nil
}

// Close releases the tab. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(s.cancel)
}

// run executes chromedp actions on the tab with a timeout, honoring cancels
// from the caller's context.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	taskCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()
	return chromedp.Run(taskCtx, actions...)
}

// forwardCancel propagates cancellation from an external context into a
// chromedp task context, since the two trees are not related.
func forwardCancel(ctx context.Context, cancel context.CancelFunc) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
