// Package cmd defines the CLI commands for the crawler executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/carmarket/crawler/internal/app"
	"github.com/carmarket/crawler/internal/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It is a variable so tests can swap in
// a prebuilt container.
var newApp = func(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawler",
		Short: "A headless-browser crawler for the mobile.de vehicle marketplace.",
		Long: `crawler drives a headless Chrome session through mobile.de search
results, extracts structured listing records, and persists them. It can run
as a long-lived service with an HTTP API and periodic scheduler, or perform
a single crawl from the command line.`,

		// Build the service container after flags/config are resolved and
		// hand it to the subcommand via the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app.App); ok && a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is environment only)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return a, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		logger, lerr := zap.NewProduction()
		if lerr == nil {
			logger.Error("command execution failed", zap.Error(err))
			_ = logger.Sync()
		}
		os.Exit(1)
	}
}
