package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rpattn/obsquery/internal/config"
	"github.com/rpattn/obsquery/internal/db"
	"github.com/rpattn/obsquery/internal/logger"
)

var (
	configPath string
	logLevel   string
	noMigrate  bool
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "obsquery",
		Short:         "Query specification service for observation records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", ".", "directory containing config.yaml")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the cache sweeper",
		RunE:  runServe,
	}
	serve.Flags().BoolVar(&noMigrate, "no-migrate", false, "skip migrations on startup")

	root.AddCommand(
		serve,
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations",
			RunE:  runMigrate,
		},
		&cobra.Command{
			Use:   "gc",
			Short: "Delete stale cache records once and exit",
			RunE:  runGC,
		},
	)
	return root
}

// setup loads configuration and initializes logging. Configuration errors
// are fatal.
func setup(cmd *cobra.Command) (*app, context.Context, context.CancelFunc) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger.Init(cfg.Log)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	a, err := newApp(ctx, cfg)
	if err != nil {
		cancel()
		log.Fatal().Err(err).Msg("failed to start")
	}
	return a, ctx, cancel
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	a, ctx, cancel := setup(cmd)
	defer cancel()
	defer a.close()

	if err := db.Migrate(ctx, a.conn, a.config.Database); err != nil {
		return err
	}
	log.Info().Msg("migrations applied")
	return nil
}

func runGC(cmd *cobra.Command, _ []string) error {
	a, ctx, cancel := setup(cmd)
	defer cancel()
	defer a.close()

	deleted, err := a.sweeper().Sweep(ctx)
	if err != nil {
		return err
	}
	log.Info().Int64("deleted", deleted).Msg("cache sweep complete")
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, ctx, cancel := setup(cmd)
	defer cancel()
	defer a.close()

	if !noMigrate {
		if err := db.Migrate(ctx, a.conn, a.config.Database); err != nil {
			return err
		}
	}

	sweeper := a.sweeper()
	if err := sweeper.Start(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:         a.config.Server.Addr,
		Handler:      a.server().Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	sweeper.Stop(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("server exited")
	return nil
}
