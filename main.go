package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"mldash/backend"
	"mldash/config"
	dhttp "mldash/http"
	"mldash/logger"
	"mldash/monitoring"
	"mldash/session"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize logger
	zlog, level, err := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
		Console:    true,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	// 3. Backend client and session workflow
	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, zlog)
	workflow := session.NewWorkflow(client, zlog)
	metrics := monitoring.NewPredictionMetrics()
	workflow.SetRecorder(metrics)
	sessions := session.NewStore(cfg.Session.MaxSessions, cfg.Session.TTL)

	// 4. Backend status monitor
	monitor := monitoring.NewStatusMonitor(workflow, cfg.Monitor.HealthInterval, zlog)
	if err := monitor.Start(); err != nil {
		zlog.Fatal("Failed to start status monitor", zap.Error(err))
	}

	// 5. Start HTTP server
	serverConfig := dhttp.DefaultServerConfig()
	serverConfig.Port = cfg.Http.Port
	serverConfig.MaxUploadBytes = cfg.Http.MaxUploadBytes
	serverConfig.BackendURL = client.BaseURL()

	server := dhttp.NewServer(serverConfig, dhttp.NewHandlers(workflow, sessions, monitor, metrics, zlog))
	go func() {
		zlog.Info("Dashboard listening", zap.String("addr", server.Addr()), zap.String("backend", client.BaseURL()))
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 6. Reload the log level on config changes. The backend URL is fixed
	// for the life of the process.
	watcher, err := config.Watch(*configPath, zlog, func(next *config.Config) {
		if err := logger.SetLevel(level, next.Log.Level); err != nil {
			zlog.Warn("Invalid log level in reloaded config", zap.String("level", next.Log.Level), zap.Error(err))
			return
		}
		if next.Backend.BaseURL != cfg.Backend.BaseURL {
			zlog.Warn("backend.base_url changes need a restart", zap.String("base_url", next.Backend.BaseURL))
		}
	})
	if err != nil {
		zlog.Warn("Config watcher disabled", zap.Error(err))
	}

	// 7. Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	zlog.Info("Shutting down...")

	if watcher != nil {
		watcher.Close()
	}
	if err := server.Stop(); err != nil {
		zlog.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := monitor.Stop(); err != nil {
		zlog.Warn("Status monitor stop failed", zap.Error(err))
	}

	zlog.Info("Exiting")
}
