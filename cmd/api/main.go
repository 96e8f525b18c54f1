package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fisk-sga/campus-feedback/backend/internal/access"
	"github.com/fisk-sga/campus-feedback/backend/internal/auth"
	"github.com/fisk-sga/campus-feedback/backend/internal/config"
	"github.com/fisk-sga/campus-feedback/backend/internal/counter"
	"github.com/fisk-sga/campus-feedback/backend/internal/database"
	"github.com/fisk-sga/campus-feedback/backend/internal/feedback"
	"github.com/fisk-sga/campus-feedback/backend/internal/handlers"
	"github.com/fisk-sga/campus-feedback/backend/internal/ledger"
	"github.com/fisk-sga/campus-feedback/backend/internal/logging"
	"github.com/fisk-sga/campus-feedback/backend/internal/notify"
	"github.com/fisk-sga/campus-feedback/backend/internal/server"
	"github.com/fisk-sga/campus-feedback/backend/internal/storage/postgres"
)

func gracefulShutdown(srv *http.Server, done chan<- struct{}) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutdown signal received, draining requests")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	close(done)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		// slog is not configured yet
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.New(ctx, cfg)
	cancel()
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}()

	clock := clockwork.NewRealClock()
	store := postgres.New(db.GetDB())
	issuer := access.NewIssuer(cfg.JWTSecret, cfg.TokenTTL, clock)
	votes := ledger.New(clock)
	notifier := notify.New(clock, logger)

	handler := handlers.NewHandler(
		feedback.New(store, votes, notifier, clock, logger),
		counter.New(store, votes, notifier, clock, counter.WithLogger(logger)),
		auth.New(store, issuer, auth.LogMailer{Log: logger}, clock, auth.Config{
			Domain:    cfg.AllowedEmailDomain,
			PublicURL: cfg.PublicURL,
			TTL:       cfg.MagicLinkTTL,
		}),
	)

	srv := server.New(cfg, db, handler, access.NewResolver(issuer, store), clock, logger).HTTPServer()

	done := make(chan struct{})
	go gracefulShutdown(srv, done)

	slog.Info("Server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("HTTP server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Graceful shutdown complete")
}
