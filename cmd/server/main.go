package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nulzo/capability-router/internal/app"
	"github.com/nulzo/capability-router/internal/cli"
	"github.com/nulzo/capability-router/internal/config"
	"github.com/nulzo/capability-router/internal/health"
	"github.com/nulzo/capability-router/internal/platform/logger"
	"github.com/nulzo/capability-router/internal/server"
	"github.com/nulzo/capability-router/internal/version"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	logCfg.File = cfg.Log.File
	logCfg.MaxSizeMB = cfg.Log.MaxSizeMB
	logCfg.MaxBackups = cfg.Log.MaxBackups
	logger.Initialize(logCfg)
	defer logger.Sync()

	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go checkForUpdates(ctx, log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize", zap.Error(err))
	}

	if cfg.Templates.Watch && a.Catalog.File() != "" {
		go func() {
			if err := a.Catalog.Watch(ctx); err != nil {
				log.Error("Template watcher stopped", zap.Error(err))
			}
		}()
	}

	scheduler := health.NewScheduler(log, a.Prober, cfg.Health.Schedule)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start health scheduler", zap.Error(err))
	}

	srv := server.New(cfg, log, server.Services{
		Engine:      a.Engine,
		Registry:    a.Registry,
		Policies:    a.Policies,
		Catalog:     a.Catalog,
		Provisioner: a.Provisioner,
		Attempts:    a.Attempts,
		Prober:      a.Prober,
		Metrics:     a.Metrics,
	}).HTTPServer()

	go func() {
		log.Info(fmt.Sprintf("%s Capability router listening", cli.Arrow()),
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Server.Env),
			zap.String("version", version.AppVersion),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
	scheduler.Stop()
	if err := a.Close(shutdownCtx); err != nil {
		log.Error("Failed to release resources", zap.Error(err))
	}
}

func checkForUpdates(ctx context.Context, log *zap.Logger) {
	u, err := version.Check(ctx, nil, version.DefaultReleaseURL, version.AppVersion)
	if err != nil {
		log.Debug("Release check skipped", zap.Error(err))
		return
	}
	if u.Outdated {
		log.Warn(fmt.Sprintf("%s %s", cli.WarningSign(), cli.Style("A newer release is available", cli.Yellow)),
			zap.String("current", u.Current),
			zap.String("latest", u.Latest),
		)
	}
}
