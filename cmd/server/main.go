// Package main is the entry point for the SoMo pixel canvas backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"somo-backend/internal/config"
	"somo-backend/internal/pkg/db"
	"somo-backend/internal/repository"
	"somo-backend/internal/server"
	"somo-backend/internal/service"
	"somo-backend/internal/sweeper"
	"somo-backend/internal/ws"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	log.Info().Msg("Running database migrations...")
	if err := repository.RunMigrations(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	pixelRepo := repository.NewPixelRepository(dbPool.Pool)
	counterRepo := repository.NewMintCounterRepository(dbPool.Pool)
	eventRepo := repository.NewMintEventRepository(dbPool.Pool)
	ledgerRepo := repository.NewLedgerRepository(dbPool.Pool, cfg.Reservation.TTL)

	// Pre-create the canvas
	seeded, err := pixelRepo.SeedCanvas(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed canvas")
	}
	if seeded > 0 {
		log.Info().Int64("pixels", seeded).Msg("Canvas seeded")
	}

	// Initialize websocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize services
	claimService := service.NewClaimService(ledgerRepo, pixelRepo, userRepo, hub)
	governanceService := service.NewGovernanceService(userRepo, pixelRepo)

	// Start expired reservation sweeper
	sweep := sweeper.New(ledgerRepo, cfg.Reservation.SweepInterval)
	if err := sweep.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start reservation sweeper")
	}

	// Initialize HTTP server
	srv := server.New(&server.Dependencies{
		Config:     &cfg.Server,
		Claims:     claimService,
		Governance: governanceService,
		Pixels:     pixelRepo,
		Users:      userRepo,
		Counters:   counterRepo,
		Events:     eventRepo,
		DB:         dbPool,
		WSHandler:  hub,
	})

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	sweep.Stop()
	hub.Stop()
	log.Info().Msg("Server stopped gracefully")
}
