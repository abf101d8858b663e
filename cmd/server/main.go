package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/cocaresync/cocaresync/internal/application"
	"github.com/cocaresync/cocaresync/internal/config"
	"github.com/cocaresync/cocaresync/internal/core"
	"github.com/cocaresync/cocaresync/internal/logging"
	"github.com/cocaresync/cocaresync/internal/web"
)

func main() {
	// Values already in the environment win over .env.
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"id_strategy", cfg.Import.IDStrategy,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"auth_required", cfg.Auth.Required,
		"storage_enabled", cfg.Storage.Enabled,
	)
	slog.Debug("effective configuration", "config", cfg.String())

	app, err := application.Open(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	server := web.NewServer(app.Service, cfg)

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go app.Service.StartRetentionScheduler(jobCtx, core.RetentionConfig{
		RetentionDays: cfg.Retention.AuditRetentionDays,
		CheckInterval: cfg.Retention.CheckInterval,
	})

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop accepting requests first, then let running imports finish.
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		if status := app.Service.ImportLimiterStatus(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := app.Service.WaitForImports(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}
	}()

	if err := server.Start(); err != nil {
		slog.Error("server stopped", "error", err)
		cancelJobs()
		app.Close()
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}
