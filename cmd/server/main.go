// Package main is the entry point for the folio server.
// It serves the dashboard API, runs the periodic broker sync and keeps the
// local databases healthy.
//
// The application follows the same layering everywhere:
// - Domain layer is pure (no infrastructure dependencies)
// - Dependency injection via DI container
// - Repository pattern for data access
// - Service layer for business logic
// - HTTP handlers for API endpoints
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/shopspring/decimal"

	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/di"
	"github.com/aristath/folio/internal/scheduler"
	"github.com/aristath/folio/internal/server"
	"github.com/aristath/folio/pkg/logger"
)

// main orchestrates startup:
// 1. Loads configuration from .env, environment and the optional YAML overlay
// 2. Initializes logging
// 3. Wires all dependencies via the DI container (databases, services, jobs)
// 4. Starts the HTTP server and the scheduler
// 5. Watches the YAML overlay for schedule and log level changes
// 6. Notifies systemd, then waits for a shutdown signal
//
// The application uses three databases:
// - config.db: settings and sealed broker credentials
// - portfolio.db: the committed snapshot (positions, trades, dividends, sync status)
// - cache.db: raw broker pulls kept for debugging
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Fallback logger so the configuration error is still visible
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	// Money and quantities are JSON numbers for the dashboard
	decimal.MarshalJSONWithoutQuotes = true

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting folio")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		DataDir:   cfg.DataDir,
		Container: container,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	container.Scheduler.Start()
	if !cfg.SyncEnabled() {
		log.Info().Msg("Periodic sync disabled, pulls only run when triggered")
	}

	// Hot reload of the non-secret runtime knobs
	if cfg.ConfigFile != "" {
		watcher := config.NewWatcher(cfg.ConfigFile, func(overlay *config.FileOverlay) {
			if overlay.LogLevel != nil {
				logger.SetLevel(*overlay.LogLevel)
			}
			if overlay.SyncSchedule != nil {
				if err := container.Scheduler.Reschedule(scheduler.SyncJobName, *overlay.SyncSchedule); err != nil {
					log.Error().Err(err).Msg("Failed to apply new sync schedule")
				}
			}
			if overlay.BrokerTimeout != nil || overlay.ArchiveKeep != nil {
				log.Warn().Msg("broker_timeout and archive_keep changes apply after restart")
			}
		}, log)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Config watcher stopped")
			}
		}()
	}

	// No-op outside systemd
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn().Err(err).Msg("Failed to notify systemd")
	} else if sent {
		log.Debug().Msg("Notified systemd of readiness")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	cancel()

	// In-flight requests get 10 seconds; a running manual pull keeps going and
	// is awaited by container.Close
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stops the scheduler, waits for a running sync, closes the broker client and databases
	container.Close()

	log.Info().Msg("Server stopped")
}
