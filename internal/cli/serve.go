package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/abtest/internal/config"
	"example.com/abtest/internal/identity"
	"example.com/abtest/internal/metrics"
	"example.com/abtest/internal/recording"
	transport "example.com/abtest/internal/transport/http"
)

func newServeCmd(cfg func() config.Config) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API. Postgres migrations are applied before listening.

Examples:
  abtest-api serve              # listen on PORT (default 4000)
  abtest-api serve --port 8080`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := cfg()
			if port != "" {
				c.Port = port
			}
			return runServe(cmd.Context(), c)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides PORT)")
	return cmd
}

func runServe(parent context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	if a.pg != nil {
		if err := a.pg.RunMigrations(ctx); err != nil {
			return err
		}
		log.Info().Msg("db: migrations applied")
	}

	// The dispatcher outlives the request context so facts enqueued during
	// server shutdown are still flushed.
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()
	a.dispatcher.Start(dispatchCtx)
	log.Info().
		Int("queue", cfg.QueueMaxSize).
		Int("batch", cfg.BatchMaxSize).
		Dur("wait", cfg.BatchMaxWait).
		Msg("dispatch: started")

	now := func() time.Time { return time.Now().UTC() }
	deps := &transport.ServerDeps{
		Cfg: cfg,
		Identity: identity.NewResolver(identity.Options{
			CookieName: cfg.CookieName,
			MaxAge:     cfg.CookieMaxAge,
			Secure:     cfg.CookieSecure,
		}),
		Assigner:    a.assignmentService(),
		Events:      recording.NewEventRecorder(a.store, now, a.dispatcher),
		Enrollments: recording.NewEnrollmentRecorder(a.store, now, a.dispatcher),
		Reports:     metrics.NewService(a.store, a.catalog),
		Store:       a.store,
		Now:         now,
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           deps.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	stopDispatch()
	a.dispatcher.Wait()
	log.Info().Int64("dropped_facts", a.dispatcher.Dropped()).Msg("stopped")
	return nil
}
