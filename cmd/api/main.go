// Package main provides the API server entry point
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

	"github.com/chicogong/ytagents/pkg/api"
	"github.com/chicogong/ytagents/pkg/auth"
	"github.com/chicogong/ytagents/pkg/config"
	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/pipeline"
	"github.com/chicogong/ytagents/pkg/tracing"
)

var (
	configPath = flag.String("config", "", "Path to a YAML config file")
	port       = flag.Int("port", 0, "Server port (overrides config)")
	genKey     = flag.Bool("gen-key", false, "Print a new API key and exit")
	issueToken = flag.String("issue-token", "", "Print a JWT for this user id and exit")
)

func main() {
	flag.Parse()

	if *genKey {
		key, err := auth.GenerateKey()
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(key)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	authMW, jwtManager := auth.FromConfig(cfg.Auth)
	if *issueToken != "" {
		if jwtManager == nil {
			log.Fatal("JWT_SECRET is not set")
		}
		token, err := jwtManager.Generate(*issueToken, "", "admin")
		if err != nil {
			log.Fatal("issue token", "error", err)
		}
		fmt.Println(token)
		return
	}

	ctx := context.Background()
	shutdownTracing := tracing.Init(ctx, log, cfg.Tracing.Enabled, cfg.Tracing.ServiceName)

	log.Info("initializing runtime", "workflow_store", cfg.Workflows.Kind, "storage", cfg.Storage.Kind)
	rt, err := pipeline.Bootstrap(ctx, cfg, log)
	if err != nil {
		log.Fatal("bootstrap failed", "error", err)
	}
	defer rt.Close()

	server := api.NewServer(rt.Machine, rt.Orchestrator, rt.Videos, log)

	var guard func(http.Handler) http.Handler
	if cfg.Auth.Required || cfg.Auth.JWTSecret != "" || len(cfg.Auth.APIKeys) > 0 {
		guard = authMW.Handler
	}

	// Step generation runs LLM, TTS and rendering inline, so writes get the
	// media budget rather than a short HTTP timeout
	addr := cfg.Server.Addr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Router(guard),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Pipeline.Timeouts.Media.Duration + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("starting server", "addr", addr, "storage", rt.Videos.Name(), "auth", guard != nil)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced to shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown", "error", err)
	}

	log.Info("server stopped")
}
