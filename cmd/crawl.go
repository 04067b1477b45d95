package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/carmarket/crawler/internal/export"
	"github.com/carmarket/crawler/internal/scraper"
)

// newCrawlCmd creates the 'crawl' subcommand: one batch run, then exit.
func newCrawlCmd() *cobra.Command {
	var (
		startURL string
		maxPages int
		delaySec int
		deep     bool
		csvPath  string
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs a single crawl and exits",
		Long: `Performs one batch crawl of the configured search URL. Records are
persisted through the configured store; pass --csv to additionally write
them to a CSV file.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			req := scraper.Request{
				StartURL: a.Cfg.Crawler.StartURL,
				MaxPages: a.Cfg.Crawler.MaxPages,
				Delay:    a.Cfg.Crawler.Delay(),
				Deep:     a.Cfg.Crawler.Deep,
			}
			if startURL != "" {
				req.StartURL = startURL
			}
			if cmd.Flags().Changed("max-pages") {
				req.MaxPages = maxPages
			}
			if cmd.Flags().Changed("delay") {
				req.Delay = time.Duration(delaySec) * time.Second
			}
			if cmd.Flags().Changed("deep") {
				req.Deep = deep
			}

			result, err := a.Engine.Batch(cmd.Context(), req)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("run crawl: %w", err)
			}

			a.Logger.Info("crawl finished",
				zap.String("status", result.Status),
				zap.Int("pages", result.PagesScraped),
				zap.Int("cars", result.TotalCars),
			)
			if result.Status == scraper.StatusError {
				return fmt.Errorf("crawl failed: %s", result.Error)
			}

			if csvPath != "" {
				if err := export.WriteCSVFile(csvPath, result.Cars); err != nil {
					return fmt.Errorf("write csv: %w", err)
				}
				a.Logger.Info("csv written",
					zap.String("path", csvPath),
					zap.Int("rows", len(result.Cars)),
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&startURL, "start-url", "", "search results URL to crawl (overrides config)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum pages to visit (overrides config)")
	cmd.Flags().IntVar(&delaySec, "delay", 0, "seconds to wait between pages (overrides config)")
	cmd.Flags().BoolVar(&deep, "deep", false, "visit each listing's detail page (overrides config)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "write crawled records to this CSV file")

	return cmd
}
