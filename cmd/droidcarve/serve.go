package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/apk-analysis/droidcarve-go/internal/api"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *options) *cobra.Command {
	var analyze bool
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the analysis of one APK over an HTTP JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := bootstrap(ctx, opts, true)
			if err != nil {
				return err
			}
			defer a.close()

			s, err := a.newSession(opts.apkPath)
			if err != nil {
				return err
			}

			switch {
			case analyze:
				if err := s.Prepare(true); err != nil {
					return err
				}
				if err := s.Analyze(ctx); err != nil {
					return fmt.Errorf("analysis failed: %w", err)
				}
			case s.HasCache():
				if err := s.Rescan(); err != nil {
					a.logger.WithError(err).Warn("Failed to load cached analysis")
				}
			default:
				a.logger.Warn("No cached analysis, queries will fail until analyzed")
			}

			if port > 0 {
				a.cfg.Server.Port = port
			}
			router := api.SetupRouter(a.cfg, a.logger, s, a.reports, a.metrics)
			server := &http.Server{
				Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
				Handler:      router,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 5 * time.Minute,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.WithField("addr", server.Addr).Info("HTTP server started")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			a.logger.Info("Shutting down gracefully...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().BoolVar(&analyze, "analyze", false, "run a fresh analysis before serving")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	return cmd
}
