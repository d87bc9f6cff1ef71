package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/sciffer/timewarden/internal/config"
	"github.com/sciffer/timewarden/internal/logger"
	"github.com/sciffer/timewarden/pkg/api"
	"github.com/sciffer/timewarden/pkg/database"
	"github.com/sciffer/timewarden/pkg/engine"
	"github.com/sciffer/timewarden/pkg/probe"
	"github.com/sciffer/timewarden/pkg/tracker"
	"github.com/sciffer/timewarden/pkg/webfilter"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	// Local overrides for development; a missing .env is not an error
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.New(cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() {
		//nolint:errcheck // Best effort sync on shutdown, ignore error
		log.Sync()
	}()

	log.Info("starting timewarden daemon", zap.String("version", "1.0.0"))

	// Initialize database
	db, err := database.NewDB(cfg.Database.DSN, cfg.Database.Path, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	log.Info("database initialized", zap.String("driver", db.Driver()))

	// Initialize the asynchronous write queue
	queue := database.NewWriteQueue(db, log.Logger)

	// Initialize process probe and hosts-file filter
	prober := probe.New(log.Logger)
	filter := webfilter.New(cfg.Filter.HostsPath, log.Logger)

	// Initialize usage tracker and OS actions
	tr := tracker.New(prober, db, queue, cfg.Engine.UsageStep, log.Logger)
	actions := engine.NewOSActions(cfg.Engine.ScreenshotDir, log.Logger)

	// WebSocket hub delivers per-tick refresh notifications to UIs
	hub := api.NewHub(log)
	defer hub.Close()

	// Initialize and start the enforcement engine
	ctx := context.Background()
	eng := engine.New(cfg.Engine, db, queue, prober, tr, actions, filter, hub, log.Logger)
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	// Initialize HTTP API
	handler := api.NewHandler(db, queue, eng, log)
	router := api.NewRouter(handler, hub)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("address", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("shutting down daemon...")
	case err := <-serverErr:
		eng.Stop()
		queue.Stop(context.Background())
		return fmt.Errorf("server failed: %w", err)
	}

	// Graceful shutdown: stop enforcement first, then drain the write
	// queue so queued usage increments reach the store, then close HTTP
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	eng.Stop()

	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error("write queue did not drain", zap.Error(err))
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("daemon stopped")
	return nil
}
