package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/stashd/stashd/internal/api"
	"github.com/stashd/stashd/internal/logger"
	"github.com/stashd/stashd/internal/ratelimiter"
	"github.com/stashd/stashd/pkg/config"
	"github.com/stashd/stashd/pkg/registry"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: XDG config dir)")
	listenAddr := flag.String("listen-addr", "", "Listen address override (e.g. :8080)")
	logLevel := flag.String("log-level", "", "Log level override (DEBUG, INFO, WARN, ERROR)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// CLI flags override file and environment.
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	switch cfg.Logging.Output {
	case "", "stdout":
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		logFile, err := os.OpenFile(cfg.Logging.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("Failed to open log file %s: %v", cfg.Logging.Output, err)
		}
		defer logFile.Close()
		logger.SetOutput(logFile)
	}

	fmt.Println("Stashd - Developer File Storage Service")
	logger.Info("Log level set to: %s", cfg.Logging.Level)
	logger.Info("Environment: %s", cfg.Storage.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := config.CreateMetadataStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create metadata store: %v", err)
	}
	defer store.Close()
	logger.Info("Metadata store ready (type: %s)", cfg.Metadata.Type)

	gateway, err := config.CreateGateway(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create object store gateway: %v", err)
	}
	logger.Info("Object store ready (bucket: %s)", cfg.ObjectStore.Bucket)

	reg, err := registry.New(store, gateway, registry.Config{
		Environment: cfg.Storage.Environment,
		URLTTL:      cfg.Storage.URLTTL,
	})
	if err != nil {
		log.Fatalf("Failed to create registry: %v", err)
	}
	defer reg.Close()

	var limiter *ratelimiter.OwnerLimiter
	if cfg.Server.RateLimit.Enabled {
		limiter = ratelimiter.New(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst)
		defer limiter.Close()
		logger.Info("Rate limiting enabled: %.1f req/s, burst %d (per owner)",
			cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst)
	}

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: api.NewRouter(reg, limiter),
	}

	serverDone := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
			return
		}
		serverDone <- nil
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running on %s. Press Ctrl+C to stop.", cfg.Server.ListenAddr)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error: %v", err)
			os.Exit(1)
		}
		if err := <-serverDone; err != nil {
			logger.Error("Server error: %v", err)
			os.Exit(1)
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		if err != nil {
			logger.Error("Server error: %v", err)
			os.Exit(1)
		}
		logger.Info("Server stopped")
	}
}
