// Package app initializes and holds the long-lived application services,
// acting as the dependency injection container for the cobra commands.
package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/carmarket/crawler/internal/api"
	"github.com/carmarket/crawler/internal/archive"
	"github.com/carmarket/crawler/internal/browser"
	"github.com/carmarket/crawler/internal/clock/system"
	"github.com/carmarket/crawler/internal/config"
	"github.com/carmarket/crawler/internal/logging"
	"github.com/carmarket/crawler/internal/metrics"
	"github.com/carmarket/crawler/internal/progress"
	"github.com/carmarket/crawler/internal/progress/sinks"
	pubsubpub "github.com/carmarket/crawler/internal/publisher/pubsub"
	"github.com/carmarket/crawler/internal/scraper"
	"github.com/carmarket/crawler/internal/storage/memory"
	"github.com/carmarket/crawler/internal/storage/postgres"
	"github.com/carmarket/crawler/internal/store"
	"github.com/carmarket/crawler/internal/worker"
)

// App holds the shared services built from configuration. It is initialized
// once at startup and torn down by Close.
type App struct {
	Cfg       config.Config
	Logger    *zap.Logger
	Cars      store.CarRepository
	Runs      store.RunRepository
	Engine    *scraper.Engine
	Hub       *progress.Hub
	Server    *api.Server
	Scheduler *worker.Scheduler

	browser *browser.Manager
	closers []func(context.Context)
}

// New builds the full service graph. It fails fast when any critical
// dependency cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	metrics.Init()

	a := &App{Cfg: cfg, Logger: logger}
	a.closers = append(a.closers, func(context.Context) { _ = logger.Sync() })

	if err := a.buildStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	archiver, err := a.buildArchiver(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	publisher, err := a.buildPublisher(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("register progress collectors: %w", err)
	}
	a.Hub = progress.NewHub(progress.Config{},
		sinks.NewLogSink(logger),
		promSink,
		sinks.NewStoreSink(a.Runs, logger),
	)
	a.closers = append(a.closers, func(ctx context.Context) {
		if err := a.Hub.Close(ctx); err != nil {
			logger.Warn("progress hub close", zap.Error(err))
		}
	})

	a.browser = browser.NewManager(browser.Config{
		Headless:     cfg.Browser.Headless,
		BinaryPath:   cfg.Browser.ChromePath,
		UserAgent:    cfg.Browser.UserAgent,
		WindowWidth:  cfg.Browser.WindowWidth,
		WindowHeight: cfg.Browser.WindowHeight,
	}, logger)
	a.closers = append(a.closers, func(context.Context) { a.browser.Close() })

	engineOpts := []scraper.Option{
		scraper.WithEmitter(a.Hub),
		scraper.WithClock(system.New()),
	}
	if archiver != nil {
		engineOpts = append(engineOpts, scraper.WithArchiver(archiver))
	}
	if publisher != nil {
		engineOpts = append(engineOpts, scraper.WithPublisher(publisher))
	}
	a.Engine = scraper.NewEngine(a.browser, a.Cars, scraper.Config{
		NavTimeout:        time.Duration(cfg.Browser.NavTimeoutSeconds) * time.Second,
		ConsentTimeout:    time.Duration(cfg.Browser.ConsentTimeoutSec) * time.Second,
		PaginationTimeout: time.Duration(cfg.Browser.PaginationTimeoutSec) * time.Second,
		ArchivePrefix:     cfg.Archive.Prefix,
	}, logger, engineOpts...)

	defaults := scraper.Request{
		StartURL: cfg.Crawler.StartURL,
		MaxPages: cfg.Crawler.MaxPages,
		Delay:    cfg.Crawler.Delay(),
		Deep:     cfg.Crawler.Deep,
	}
	apiOpts := api.Options{
		Defaults:       defaults,
		RequestTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}
	if cfg.Auth.Enabled {
		apiOpts.APIKey = cfg.Auth.APIKey
	}
	a.Server = api.NewServer(a.Engine, a.Cars, a.Runs, apiOpts, logger)

	if cfg.Worker.Enabled {
		a.Scheduler = worker.NewScheduler(a.Engine, worker.Config{
			Interval:   cfg.Worker.Interval(),
			RunOnStart: cfg.Worker.RunOnStart,
			Request:    defaults,
		}, logger)
	}

	return a, nil
}

func (a *App) buildStores(ctx context.Context) error {
	switch a.Cfg.DB.Provider {
	case "postgres":
		a.Logger.Info("connecting to postgres")
		pool, err := postgres.NewPool(ctx, postgres.Config{DSN: a.Cfg.DB.DSN})
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) { pool.Close() })
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		cars, err := postgres.NewCarStoreWithPool(pool)
		if err != nil {
			return err
		}
		runs, err := postgres.NewRunStoreWithPool(pool)
		if err != nil {
			return err
		}
		a.Cars, a.Runs = cars, runs
		return nil
	case "memory":
		a.Logger.Info("using in-memory stores, data is lost on restart")
		a.Cars = memory.NewCarStore()
		a.Runs = memory.NewRunStore()
		return nil
	default:
		return fmt.Errorf("unknown db provider %q", a.Cfg.DB.Provider)
	}
}

func (a *App) buildArchiver(ctx context.Context) (scraper.Archiver, error) {
	switch a.Cfg.Archive.Provider {
	case "none":
		return nil, nil
	case "local":
		a.Logger.Info("archiving raw pages locally", zap.String("dir", a.Cfg.Archive.LocalDir))
		return archive.NewLocalStore(a.Cfg.Archive.LocalDir)
	case "gcs":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) { _ = client.Close() })
		a.Logger.Info("archiving raw pages to gcs", zap.String("bucket", a.Cfg.Archive.GCSBucket))
		return archive.NewGCSStore(client, a.Cfg.Archive.GCSBucket)
	default:
		return nil, fmt.Errorf("unknown archive provider %q", a.Cfg.Archive.Provider)
	}
}

func (a *App) buildPublisher(ctx context.Context) (scraper.Publisher, error) {
	switch a.Cfg.Publisher.Provider {
	case "none":
		return nil, nil
	case "pubsub":
		client, err := pubsub.NewClient(ctx, a.Cfg.Publisher.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) { _ = client.Close() })
		pub, err := pubsubpub.New(client, a.Cfg.Publisher.TopicName)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) { pub.Stop() })
		a.Logger.Info("publishing run completions", zap.String("topic", a.Cfg.Publisher.TopicName))
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown publisher provider %q", a.Cfg.Publisher.Provider)
	}
}

// Close tears the services down in reverse construction order.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
	a.closers = nil
}
