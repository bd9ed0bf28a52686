/*
Package main is the entry point for the ChatGate gateway.

It is responsible for loading configuration, initializing the global logging system,
connecting the message store and the broadcast bridge, starting the Gateway
(registries, dispatcher, liveness monitor), setting up the HTTP server, and
gracefully handling operating system interrupt signals (SIGINT, SIGTERM)
to ensure a smooth shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatgate/internal/app/bridge"
	"chatgate/internal/app/gateway"
	"chatgate/internal/app/store"
	"chatgate/internal/configs"
	"chatgate/internal/handler"
	"chatgate/internal/pkg/logx"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.Environment == "development")
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("bridge", cfg.Bridge).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect the message/user store
	pool, err := store.NewPool(cfg.DatabaseDSN)
	if err != nil {
		logx.Fatal(err, "Failed to connect to database")
	}
	defer pool.Close()

	st := store.NewPostgres(pool)

	// Connect the broadcast bridge
	br := newBridge(cfg)

	// Initialize the Gateway
	gw := gateway.New(st, br)
	if err := gw.Start(); err != nil {
		logx.Fatal(err, "Failed to start gateway")
	}

	// Setup HTTP server and routes
	deps := &handler.AppDeps{
		Gateway: gw,
		Config:  cfg,
		Store:   st,
	}
	router := handler.Router(deps)

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("ChatGate starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	gw.Shutdown()

	logx.Info("Server gracefully stopped.")
}

// newBridge selects the broadcast bridge implementation from configuration.
// A single-instance deployment runs with the no-op bridge.
func newBridge(cfg *configs.AppConfig) bridge.Bridge {
	switch cfg.Bridge {
	case configs.BridgeNATS:
		br, err := bridge.NewNATS(cfg.NATSURL, "chatgate")
		if err != nil {
			logx.Fatal(err, "Failed to connect to NATS bridge")
		}
		return br

	case configs.BridgeRedis:
		br, err := bridge.NewRedis(cfg.RedisAddr)
		if err != nil {
			logx.Fatal(err, "Failed to connect to Redis bridge")
		}
		return br

	default:
		return bridge.NewNoop()
	}
}
