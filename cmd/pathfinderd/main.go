package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/cortexlab/pathfinder/internal/adapters/agentd"
	"github.com/cortexlab/pathfinder/internal/adapters/recordings"
	appconfig "github.com/cortexlab/pathfinder/internal/config"
	"github.com/cortexlab/pathfinder/internal/core/services"
	"github.com/cortexlab/pathfinder/pkg/kernel"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting pathfinder")

	if err := run(logger); err != nil {
		logger.Error("pathfinder startup failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	cfg, err := appconfig.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Core services
	registry := services.NewJobRegistry(logger)
	eventBus := services.NewEventBus(logger)
	stopSignal := services.NewGlobalStopSignal()

	runner := agentd.NewRunner(cfg.AgentEngineURL, stopSignal, agentd.Options{
		PollInterval: cfg.RunnerPollInterval,
		MaxRunTime:   cfg.RunnerMaxRunTime,
	})

	executor := services.NewJobExecutor(logger, registry, runner, eventBus, services.ExecutorConfig{
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
	})
	statusSvc := services.NewStatusService(registry)

	// Artifact stores
	files := recordings.NewStore(logger, cfg.RecordingPath, cfg.HistoryPath)
	defaults := appconfig.NewAgentDefaults(logger)

	apiServer := kernel.NewServer(logger, executor, registry, statusSvc, stopSignal, eventBus, files, defaults)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: c.Handler(apiServer.Handler()),
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting api server", "addr", cfg.ListenAddr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		// In-flight jobs keep running after the listener closes; give
		// them the rest of the grace window to record terminal status.
		if !executor.Drain(cfg.ShutdownTimeout) {
			logger.Warn("jobs still running at shutdown deadline")
		}
		return nil
	})

	return g.Wait()
}
