package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/efeideo/drug-form/internal/auth"
	"github.com/efeideo/drug-form/internal/database"
	"github.com/efeideo/drug-form/internal/handler"
	"github.com/efeideo/drug-form/internal/middleware"
	"github.com/efeideo/drug-form/internal/repository"
	"github.com/efeideo/drug-form/internal/router"
	"github.com/efeideo/drug-form/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the form HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, gateway, err := bootstrap(os.Stdout)
	if err != nil {
		return err
	}
	log.Info().Str("version", handler.Version).Msg("starting MAP form server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		rdb  *database.Redis
		repo repository.SessionRepository
	)

	switch cfg.Session.Store {
	case "redis":
		rdb, err = database.NewRedis(cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer rdb.Close()
		log.Info().Str("addr", cfg.Redis.Addr()).Msg("connected to Redis")
		repo = repository.NewRedisSessionRepository(rdb, cfg.Session.TTL, cfg.Session.LockTTL)
	case "memory", "":
		repo = repository.NewMemorySessionRepository(cfg.Session.TTL)
	default:
		return fmt.Errorf("unknown session store %q", cfg.Session.Store)
	}
	log.Info().Str("store", cfg.Session.Store).Dur("ttl", cfg.Session.TTL).Msg("session repository initialized")

	if cfg.Session.Secret == "" {
		log.Warn().Msg("session.secret is not set, session tokens will not survive a restart")
	}
	tokenSvc, err := auth.NewTokenService(cfg.Session)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	formSvc := service.NewFormService(repo, newController(cfg, gateway), log)
	go formSvc.RunJanitor(ctx, time.Minute)

	h := handler.New(rdb, log, cfg, formSvc, tokenSvc)
	mw := middleware.New(rdb, log, cfg)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.New(h, mw, cfg, tokenSvc),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15*time.Second + cfg.Submission.NotifyTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}
