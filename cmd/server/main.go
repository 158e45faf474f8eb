package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/symptom-checker-server/internal/api"
	"github.com/symptom-checker-server/internal/audit"
	"github.com/symptom-checker-server/internal/config"
	"github.com/symptom-checker-server/internal/domain"
	"github.com/symptom-checker-server/internal/form"
	"github.com/symptom-checker-server/internal/inference"
	"github.com/symptom-checker-server/internal/logging"
	"github.com/symptom-checker-server/internal/observability"
	"github.com/symptom-checker-server/internal/service"
	"github.com/symptom-checker-server/internal/setup"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	defer logCloser.Close()

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if len(os.Args) > 1 && os.Args[1] == "setup" {
		cli := setup.NewCLI(cfg, logger, os.Stdin, os.Stdout)
		if err := cli.Run(ctx, os.Args[2:]); err != nil {
			logger.WithError(err).Fatal("Setup failed")
		}
		return
	}

	if err := run(ctx, configManager, cfg, logger); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, configManager domain.ConfigManager, cfg *domain.Config, logger *logrus.Logger) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, observability.TracingOptions{
		ServiceName: cfg.MCP.ServerName,
		Version:     api.Version,
		Environment: cfg.Environment,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
	}()

	store, err := audit.New(ctx, cfg.Audit, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	gateway, err := inference.New(ctx, cfg.Inference, logger)
	if err != nil {
		return err
	}
	defer gateway.Close()

	analyzer := service.NewAnalyzerService(logger, gateway, store)

	var snapshots form.Snapshotter
	if cfg.Forms.Store == "redis" {
		redisSnapshots, err := form.NewRedisSnapshotter(cfg.Forms)
		if err != nil {
			return err
		}
		snapshots = redisSnapshots
	}

	forms := form.NewManager(cfg.Forms, form.ManagerDeps{
		Reducer:   form.NewReducer(analyzer.Validator(), analyzer.Images()),
		Previewer: analyzer.Images(),
		Submitter: analyzer,
		Logger:    logger,
		Snapshots: snapshots,
	})
	defer forms.Close()

	logger.WithFields(logrus.Fields{
		"host":       cfg.Server.Host,
		"port":       cfg.Server.Port,
		"gateway":    gateway.Name(),
		"audit":      cfg.Audit.Driver,
		"form_store": cfg.Forms.Store,
	}).Info("Starting symptom checker server")

	server := api.NewServer(configManager, api.Deps{
		Logger:   logger,
		Analyzer: analyzer,
		Forms:    forms,
		Audit:    store,
		Gateway:  gateway,
	})
	return server.Start(ctx)
}
