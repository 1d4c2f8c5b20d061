package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cexll/gamegen/internal/api"
	"github.com/cexll/gamegen/internal/app"
	"github.com/cexll/gamegen/internal/config"
	"github.com/cexll/gamegen/internal/dispatcher"
	"github.com/cexll/gamegen/internal/logging"
	"github.com/cexll/gamegen/internal/taskstore"
	"github.com/cexll/gamegen/internal/web"
)

var (
	loadDotEnv         = godotenv.Load
	newTaskStore       = taskstore.NewStore
	newDispatcher      = dispatcher.New
	newWebHandler      = web.NewHandler
	defaultListenServe = http.ListenAndServe
)

// newProvider overrides the completion provider factory when set.
var newProvider app.ProviderFactory

func main() {
	if err := run(context.Background(), defaultListenServe); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func run(ctx context.Context, serve func(string, http.Handler) error) error {
	// Load .env file (ignore error if file doesn't exist)
	_ = loadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	flush, err := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer flush()

	logger := zap.L()
	logger.Info("starting game generator server",
		zap.Int("port", cfg.Port),
		zap.String("provider", cfg.Provider),
		zap.String("output_dir", cfg.OutputDir),
		zap.Int("dispatcher_workers", cfg.DispatcherWorkers),
		zap.Int("dispatcher_queue_size", cfg.DispatcherQueueSize),
		zap.Int("dispatcher_max_attempts", cfg.DispatcherMaxAttempts))

	svc, err := app.New(ctx, cfg, newProvider)
	if err != nil {
		return err
	}

	// In-memory task store backs the job API and the UI
	taskStore := newTaskStore()

	taskDispatcher := newDispatcher(svc.NewExecutor(taskStore), dispatcher.Config{
		Workers:           cfg.DispatcherWorkers,
		QueueSize:         cfg.DispatcherQueueSize,
		MaxAttempts:       cfg.DispatcherMaxAttempts,
		InitialBackoff:    cfg.DispatcherRetryInitial,
		BackoffMultiplier: cfg.DispatcherBackoffMultiplier,
		MaxBackoff:        cfg.DispatcherRetryMax,
		TaskTimeout:       cfg.DispatcherTaskTimeout,
		Journal:           taskStore,
	})
	defer taskDispatcher.Shutdown(ctx)

	opts := []api.Option{
		api.WithPublishing(svc.Publisher != nil),
		api.WithUsage(svc.Usage),
	}
	if svc.Codemagic != nil {
		opts = append(opts, api.WithBuilds(svc.Codemagic))
	}
	apiHandler, err := api.NewHandler(svc.Generator, taskStore, taskDispatcher, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize API handler: %w", err)
	}

	webHandler, err := newWebHandler(taskStore)
	if err != nil {
		return fmt.Errorf("failed to initialize web handler: %w", err)
	}

	r := mux.NewRouter()
	webHandler.RegisterRoutes(r)
	apiHandler.RegisterRoutes(r)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("server listening",
		zap.String("addr", addr),
		zap.String("generate", "http://localhost"+addr+"/generate-game"),
		zap.String("status", "http://localhost"+addr+"/api/status"),
		zap.String("tasks_ui", "http://localhost"+addr+"/tasks"))

	if err := serve(addr, r); err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}
