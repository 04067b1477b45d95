package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newServeCmd creates the 'serve' subcommand: the long-lived service with
// the HTTP API and, when enabled, the periodic crawl scheduler.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the crawler service",
		Long: `Starts the HTTP API and, when worker.enabled is set, the periodic
crawl scheduler. The process runs until it receives SIGINT or SIGTERM.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", a.Cfg.Server.Port),
				Handler:           a.Server.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.Logger.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			if a.Scheduler != nil {
				go a.Scheduler.Run(ctx)
			}

			select {
			case err := <-errCh:
				return fmt.Errorf("http server: %w", err)
			case <-ctx.Done():
			}

			a.Logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown http server: %w", err)
			}
			return nil
		},
	}
}
