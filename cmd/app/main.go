// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentboard/internal/config"
	"agentboard/internal/domain/ports/adapter"
	"agentboard/internal/infra/adapters/backend"
	"agentboard/internal/infra/api"
	"agentboard/internal/infra/db/sqlite"
	"agentboard/internal/infra/logging"
	"agentboard/internal/infra/metrics"
	"agentboard/internal/infra/sched"
	"agentboard/internal/infra/stream"
	"agentboard/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, verbose)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}
	metrics.MustRegister()

	// ---- Local cache (SQLite) ----
	cache, err := sqlite.Open(cfg.Cache.Path, logger)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	defer cache.Close()

	// Startup sweep; a failed eviction is logged inside and never fatal.
	if err := cache.Evict(ctx, cfg.Cache.MaxAge, cfg.Cache.MaxPerRepo); err != nil {
		logger.Warn().Err(err).Msg("startup cache eviction failed")
	}

	sessionRepo := sqlite.NewSessionRepo(cache)
	jobRepo := sqlite.NewJobRepo(cache)

	// ---- Backend REST client ----
	backendClient, err := backend.NewClient(cfg.Backend, logger)
	if err != nil {
		log.Fatalf("backend: %v", err)
	}

	// ---- Stream capability probe (once, at startup) ----
	streamURL := cfg.Stream.URL
	hasStream := streamURL != "" && backendClient.ProbeStream(ctx)
	logger.Info().Bool("stream", hasStream).Msg("backend capabilities probed")

	var push adapter.StreamSession
	if hasStream {
		transport := stream.NewWSTransport(streamURL, cfg.Backend.Timeout)
		push = stream.NewClient(transport, stream.Options{
			Scope:        "global",
			InitialDelay: cfg.Stream.Global.InitialDelay,
			MaxDelay:     cfg.Stream.Global.MaxDelay,
			MaxAttempts:  cfg.Stream.Global.MaxAttempts,
			Heartbeat:    cfg.Stream.Heartbeat,
		}, logger)
	}

	// ---- Use cases ----
	boardUC := usecase.NewBoardUseCase(backendClient, jobRepo, push, cfg.Backend.Timeout, logger)
	newSession := func() adapter.StreamSession {
		transport := stream.NewWSTransport(streamURL, cfg.Backend.Timeout)
		return stream.NewClient(transport, stream.Options{
			Scope:        "resource",
			InitialDelay: cfg.Stream.Resource.InitialDelay,
			MaxDelay:     cfg.Stream.Resource.MaxDelay,
			MaxAttempts:  cfg.Stream.Resource.MaxAttempts,
			Heartbeat:    cfg.Stream.Heartbeat,
		}, logger)
	}
	sessionUC := usecase.NewSessionUseCase(sessionRepo, newSession, logger)

	if err := boardUC.Start(ctx); err != nil {
		log.Fatalf("board sync: %v", err)
	}
	defer boardUC.Stop()
	defer sessionUC.Detach()

	// ---- Workers ----
	poller := sched.NewPollWorker(cfg.Backend.PollInterval, boardUC, logger)
	go func() { _ = poller.Run(ctx) }()

	janitor := sched.NewJanitor(1*time.Hour, cfg.Cache.MaxAge, cfg.Cache.MaxPerRepo, cache, logger)
	go func() { _ = janitor.Run(ctx) }()

	// ---- Admin HTTP server ----
	srv := api.NewServer(boardUC, sessionUC, logger)
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Admin.Port), Handler: srv.Router()}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("admin http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("admin http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}
