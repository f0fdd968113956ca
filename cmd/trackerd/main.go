// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adiadia/tracker/internal/app"
	"github.com/adiadia/tracker/internal/auth"
	"github.com/adiadia/tracker/internal/config"
	"github.com/adiadia/tracker/internal/logging"
	httptransport "github.com/adiadia/tracker/internal/transport/http"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env)

	tokens, err := auth.ParseTokens(cfg.APITokens, cfg.RateLimitPerMin)
	if err != nil {
		log.Fatalf("invalid API_TOKENS: %v", err)
	}

	tracker, err := app.Open(ctx, cfg, logger, app.Options{})
	if err != nil {
		log.Fatalf("tracker open failed: %v", err)
	}
	defer tracker.Close()

	deps := httptransport.Deps{
		Tracker:   tracker.Tracker,
		Logger:    logger,
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	}
	if tokens.Len() > 0 {
		deps.TokenResolver = tokens
	} else {
		logger.Warn("API_TOKENS is empty; requests carry no identity and logging calls will be rejected")
	}
	if tracker.Health != nil {
		deps.HealthChecker = tracker.Health
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httptransport.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("tracker listening",
			"addr", cfg.HTTPAddr,
			"driver", cfg.Driver,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)

		if err := srv.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}
