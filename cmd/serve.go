package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/vantigo/vantigo/internal/api"
	"github.com/vantigo/vantigo/internal/app"
	"github.com/vantigo/vantigo/internal/config"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = time.Minute
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

// runServe initializes and starts the HTTP API server.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	addr, err := parseServeAddr(cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("parsing address: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()
	logger.Info("starting HTTP API server", "version", Version)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	// Background embedding: process queued work and pick up any instructions
	// that were written before the worker existed.
	go a.Worker.Run(ctx)
	if err := a.Worker.Backfill(ctx); err != nil {
		logger.Warn("embedding backfill", "error", err)
	}

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:           logger,
		Assembler:        a.Assembler,
		Matcher:          a.Matcher,
		ChatbotStore:     a.ChatbotStore,
		InstructionStore: a.InstructionStore,
		Users:            api.NewPGUserDirectory(a.Pool),
		Codec:            a.Codec,
		Worker:           a.Worker,
		Cache:            a.Cache,
		Pool:             a.Pool,
		HMACSecret:       []byte(cfg.HMACSecret),
		ImpersonationTTL: time.Duration(cfg.ImpersonationTTLMinutes) * time.Minute,
		MatcherTopK:      cfg.MatcherTopK,
		CORSOrigins:      cfg.CORSOrigins,
		IsDev:            cfg.PostgresSSLMode == "disable",
		TrustProxy:       cfg.TrustProxy,
		RateBurst:        cfg.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", addr,
		"api", "/api/v1/*",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
