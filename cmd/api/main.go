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

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"permaudit.io/internal/app"
	"permaudit.io/internal/config"
	"permaudit.io/internal/httpapi"
	"permaudit.io/internal/obs"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "permaudit-api:", err)
		os.Exit(1)
	}
}

func run() error {
	// best-effort: a missing .env leaves the real environment in charge
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := obs.InitLogger(cfg.Logging())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	obs.Init()
	build := obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	deps := httpapi.Deps{
		Auditor: a.Runner,
		Querier: a.Analytics,
		Auth:    a.Auth,
		Events:  a.Events,
		Logger:  log,
	}
	if a.Ready != nil {
		deps.Ready = a.Ready
	}
	if !a.Auth.Enabled() {
		log.Warn("auth secret not set, /v1 routes are unauthenticated")
	}
	api := httpapi.New(deps, httpapi.Options{
		Version:        version,
		RatePerSecond:  cfg.HTTP.RatePerSecond,
		Burst:          cfg.HTTP.Burst,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting permaudit-api", zap.String("version", build.Version), zap.String("commit", build.Commit), zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
	log.Info("stopped")
	return nil
}
