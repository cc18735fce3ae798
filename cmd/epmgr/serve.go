package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"epmgr/internal/httpapi"
	"epmgr/internal/manager"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		corsOrigins string
		preload     string
		preloadKind string
	)
	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve the manager over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("cors-origins") {
				a.cfg.CORS.Origins = splitList(corsOrigins)
			}
			a.metrics = manager.NewMetrics(prometheus.DefaultRegisterer)
			m, err := a.newManager()
			if err != nil {
				return err
			}
			defer m.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if cmd.Flags().Changed("device") || preload != "" {
				if _, err := m.SelectDevice(ctx, a.device); err != nil {
					return err
				}
			}
			if preload != "" {
				kind, err := manager.ParseKind(preloadKind)
				if err != nil {
					return err
				}
				if _, err := m.Load(ctx, kind, a.folder(preload)); err != nil {
					return err
				}
			}

			mux := httpapi.NewMux(m, httpapi.Options{
				BaseContext:     ctx,
				GenerateTimeout: a.cfg.GenerateTimeout.Std(),
				ModelsDir:       a.cfg.ModelsDir,
				CORS: httpapi.CORSOptions{
					Enabled:        a.cfg.CORS.Enabled,
					AllowedOrigins: a.cfg.CORS.Origins,
					AllowedMethods: a.cfg.CORS.Methods,
					AllowedHeaders: a.cfg.CORS.Headers,
				},
				Logger: &a.log,
			})
			srv := &http.Server{Addr: a.cfg.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

			errCh := make(chan error, 1)
			go func() {
				a.log.Info().Str("addr", a.cfg.Addr).Str("models_dir", a.cfg.ModelsDir).Msg("epmgr listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			// Graceful shutdown (Ctrl+C / SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.log.Warn().Err(err).Msg("graceful shutdown error")
			}
			return nil
		},
	}
	f := c.Flags()
	f.StringVar(&a.cfg.Addr, "addr", a.cfg.Addr, "HTTP listen address, e.g. :8080")
	f.IntVar(&a.cfg.MaxQueueDepth, "max-queue-depth", a.cfg.MaxQueueDepth, "Queued requests per context before 429")
	f.BoolVar(&a.cfg.CORS.Enabled, "cors-enabled", a.cfg.CORS.Enabled, "Enable CORS")
	f.StringVar(&corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins")
	f.StringVar(&preload, "load", "", "Model folder to load at startup on --device")
	f.StringVar(&preloadKind, "load-kind", string(manager.KindClassifier), "Kind of the --load model: classifier|generator")
	return c
}
