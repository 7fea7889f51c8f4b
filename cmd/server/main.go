package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/attestlog/internal/api"
	"github.com/eldtechnologies/attestlog/internal/config"
	"github.com/eldtechnologies/attestlog/internal/keyring"
	"github.com/eldtechnologies/attestlog/internal/store"
	"github.com/eldtechnologies/attestlog/internal/verify"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Open the chain store
	st, err := store.Open(ctx, cfg.StoreURL)
	if err != nil {
		logger.Fatal().Err(err).Str("url", cfg.StoreURL).Msg("failed to open store")
	}
	defer st.Close()
	logger.Info().Str("url", cfg.StoreURL).Msg("store opened")

	// Load trusted keys from the keyring, if one exists. Without them the
	// verify endpoint reports every agent as unknown.
	var trusted verify.TrustedKeys
	if kr, err := keyring.Open(cfg.KeysDir); err != nil {
		logger.Warn().Err(err).Str("dir", cfg.KeysDir).Msg("keyring unavailable")
	} else if trusted, err = keyring.TrustFromKeyring(kr); err != nil {
		logger.Warn().Err(err).Str("dir", cfg.KeysDir).Msg("failed to load trusted keys")
	} else {
		logger.Info().Int("agents", len(trusted)).Msg("trusted keys loaded")
	}

	// Create router
	router := api.NewRouter(logger, st, trusted)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting attestlog server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
