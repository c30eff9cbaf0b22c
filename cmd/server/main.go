package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"configctx/internal/config"
	"configctx/internal/handler"
	"configctx/internal/hub"
	"configctx/internal/repository/sqlite"
	"configctx/internal/resolver"
	"configctx/internal/service"
	"configctx/internal/watcher"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/united-manufacturing-hub/umh-utils/env"
	"github.com/united-manufacturing-hub/umh-utils/logger"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Config file path (default: search "+config.EnvConfigPath+", ./"+config.ConfigFileName+", user config dir)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	// Initialize zap logging
	logLevel, _ := env.GetAsString("LOGGING_LEVEL", false, "PRODUCTION") //nolint:errcheck
	log := logger.New(logLevel)
	defer func() {
		_ = log.Sync()
	}()

	cfg, path := loadConfig(*configPath)
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if path != "" {
		zap.S().Infow("Loaded config", "path", path)
	}
	zap.S().Infof("Starting configctx server\n%s", cfg.Summary())

	// Initialize SQLite repository
	repo, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		zap.S().Fatalw("Failed to open database", "path", cfg.Database.Path, "error", err)
	}
	defer repo.Close()

	// Initialize event bus
	eventBus := service.NewEventBus()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize SSE hub
	sseHub := hub.New()
	go sseHub.Run(ctx)

	// Connect event bus to SSE hub
	eventChan := make(chan service.Event, 100)
	eventBus.Subscribe(eventChan)
	go func() {
		for event := range eventChan {
			sseHub.Broadcast(event)
		}
	}()

	// Initialize services
	res := resolver.New(resolver.WithPolicy(cfg.Merge))
	contextSvc, err := service.NewContextService(repo, res, eventBus, cfg.Cache.Size)
	if err != nil {
		zap.S().Fatalw("Failed to create context service", "error", err)
	}

	contextHandler := handler.NewContextHandler(contextSvc)

	if cfg.Sync.Enabled() {
		syncSvc := service.NewSyncService(repo, eventBus, cfg.Sync.Directory)
		contextHandler.SetSyncer(syncSvc)

		if _, err := syncSvc.Sync(ctx); err != nil {
			zap.S().Warnw("Initial sync failed", "directory", cfg.Sync.Directory, "error", err)
		}

		if cfg.Sync.Watch {
			w := watcher.New(cfg.Sync.Directory, func() {
				if _, err := syncSvc.Sync(ctx); err != nil {
					zap.S().Warnw("Sync after change failed", "error", err)
				}
			}).WithDebounce(cfg.Sync.Debounce.Duration())

			go func() {
				if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
					zap.S().Errorw("Watcher stopped", "error", err)
				}
			}()
		}
	}

	// Health checks
	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	health.AddReadinessCheck("database", healthcheck.DatabasePingCheck(repo.DB(), 1*time.Second))

	// Setup routes
	mux := http.NewServeMux()
	contextHandler.Register(mux)

	// SSE events endpoint
	mux.Handle("GET /events", sseHub)

	// Operational endpoints
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /live", health.LiveEndpoint)
	mux.HandleFunc("GET /ready", health.ReadyEndpoint)

	// Apply middleware
	finalHandler := handler.Chain(mux,
		handler.Recover,
		handler.CORS,
		handler.Logger,
	)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      finalHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE streams stay open
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		zap.S().Infow("Server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			zap.S().Fatalw("Server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zap.S().Info("Shutting down server...")

	// Stop watcher and hub; SSE handlers return once their clients are dropped
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.S().Errorw("Server shutdown error", "error", err)
	}

	zap.S().Info("Server stopped")
}

// loadConfig reads the config from path, or searches the default locations when empty
func loadConfig(path string) (*config.Config, string) {
	if path == "" {
		cfg, found, err := config.Load()
		if err != nil {
			zap.S().Fatalw("Failed to load config", "path", found, "error", err)
		}
		return cfg, found
	}

	cfg, _, err := config.LoadFromPath(path)
	if err != nil {
		zap.S().Fatalw("Failed to load config", "path", path, "error", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		zap.S().Fatalw("Invalid environment override", "error", err)
	}
	if err := cfg.Validate(); err != nil {
		zap.S().Fatalw("Invalid config", "path", path, "error", err)
	}
	return cfg, path
}
