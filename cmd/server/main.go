package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/choisimo/proxy-rotator/internal/config"
	"github.com/choisimo/proxy-rotator/internal/handler"
	"github.com/choisimo/proxy-rotator/internal/service"
	"github.com/choisimo/proxy-rotator/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		File:   cfg.Logging.File,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"version":  handler.Version,
		"strategy": string(cfg.Pool.Strategy),
		"port":     cfg.Server.Port,
	}).Info("Starting proxy rotator")

	pool, err := service.NewPool(cfg.Pool, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create proxy pool")
	}

	// Hydrate from the snapshot before serving traffic
	if cfg.Pool.PersistencePath != "" {
		if err := pool.LoadFromFile(cfg.Pool.PersistencePath); err != nil {
			log.WithError(err).Fatal("Failed to load pool snapshot")
		}
	}

	router := handler.NewRouter(pool, cfg, log)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.WithFields(map[string]interface{}{
			"port":    cfg.Server.Port,
			"proxies": len(pool.ListProxies()),
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down HTTP server")
	}

	// Stop supervisors and the auto-saver, then take a final snapshot
	pool.Close()
	if cfg.Pool.PersistencePath != "" {
		if err := pool.SaveToFile(cfg.Pool.PersistencePath); err != nil {
			log.WithError(err).Error("Final pool snapshot failed")
		}
	}

	log.Info("Proxy rotator stopped gracefully")
}
