package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"place-explorer/server/internal/api"
	"place-explorer/server/internal/auth"
	"place-explorer/server/internal/config"
	"place-explorer/server/internal/logger"
	"place-explorer/server/internal/session"
	"place-explorer/server/internal/timeline"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := logger.With("serve")

	gw, closeGateway, err := buildGateway(cfg, logger.With("places"))
	if err != nil {
		return err
	}
	defer closeGateway()

	var authSvc *auth.Service
	if cfg.Auth.Enabled {
		authSvc = auth.NewService(auth.Config{
			SigningKey: cfg.Auth.SigningKey,
			TokenTTL:   cfg.Auth.TokenTTL,
			Users:      cfg.Auth.Users,
		})
	}

	screens := session.NewManager(session.NewInMemoryStore(), gw, timeline.NewInMemoryStore(),
		session.OptionsFromConfig(cfg), logger.With("session"))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewServer(cfg, screens, authSvc, logger.With("http")).Routes(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	eg, gctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return screens.RunSweeper(gctx, cfg.Session.SweepInterval, cfg.Session.MaxInactiveTime)
	})

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-gctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		screens.CloseAll(shutdownCtx)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		log.Info().Msg("server shutdown complete")
		return context.Canceled
	})

	eg.Go(func() error {
		log.Info().Str("addr", cfg.Server.Addr).Bool("auth", authSvc != nil).Bool("cache", cfg.Cache.Enabled).Msg("starting placeexplorer server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
