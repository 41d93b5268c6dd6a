package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/urban-pulse-etl/internal/adapter/http"
	"github.com/couchcryptid/urban-pulse-etl/internal/dashboard"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var schedule bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard, table API, health and metrics endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ready := readiness{a.store}
			if schedule {
				if err := a.requireWeatherKey(); err != nil {
					return err
				}
				ready = append(ready, a.pipeline)
			}

			srv := httpadapter.NewServer(a.cfg.HTTP.Addr, a.store, ready, dashboard.Options{City: a.cfg.Transform.City}, a.logger)

			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			stopScheduler := func() {}
			if schedule {
				stopScheduler = background(ctx, func(ctx context.Context) {
					if err := a.runner.Schedule(ctx, a.cfg.Schedule.Interval, a.cycle); err != nil {
						a.logger.Error("scheduler error", "error", err)
					}
				})
			}

			var serveErr error
			select {
			case <-ctx.Done():
			case serveErr = <-errCh:
				a.logger.Error("http server error", "error", serveErr)
			}
			a.logger.Info("shutting down")

			// The store stays open until an in-flight cycle returns.
			stopScheduler()

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("http server shutdown error", "error", err)
			}

			a.logger.Info("shutdown complete")
			return serveErr
		},
	}

	cmd.Flags().BoolVar(&schedule, "schedule", false, "also run the pipeline on schedule.interval")
	return cmd
}
