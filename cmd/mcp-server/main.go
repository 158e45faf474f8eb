package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/symptom-checker-server/internal/audit"
	"github.com/symptom-checker-server/internal/config"
	"github.com/symptom-checker-server/internal/inference"
	"github.com/symptom-checker-server/internal/logging"
	"github.com/symptom-checker-server/internal/mcp"
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

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if len(os.Args) > 1 && os.Args[1] == "setup" {
		logger, logCloser, err := logging.New(cfg.Logging)
		if err != nil {
			log.Fatalf("Failed to configure logging: %v", err)
		}
		defer logCloser.Close()

		cli := setup.NewCLI(cfg, logger, os.Stdin, os.Stdout)
		if err := cli.Run(ctx, os.Args[2:]); err != nil {
			logger.WithError(err).Fatal("Setup failed")
		}
		return
	}

	// stdout carries the MCP protocol stream.
	logCfg := cfg.Logging
	if logCfg.Output == "" || logCfg.Output == "stdout" {
		logCfg.Output = "stderr"
	}
	logger, logCloser, err := logging.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	defer logCloser.Close()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, observability.TracingOptions{
		ServiceName: cfg.MCP.ServerName,
		Version:     cfg.MCP.ServerVersion,
		Environment: cfg.Environment,
		Writer:      os.Stderr,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize tracing")
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
		logger.WithError(err).Fatal("Failed to open audit store")
	}
	defer store.Close()

	gateway, err := inference.New(ctx, cfg.Inference, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create inference gateway")
	}
	defer gateway.Close()

	analyzer := service.NewAnalyzerService(logger, gateway, store)

	mcpServer, err := mcp.NewServer(configManager, analyzer, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create MCP server")
	}

	logger.WithField("gateway", gateway.Name()).Info("Starting symptom checker MCP server")

	// Start MCP server
	if err := mcpServer.Start(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Error("MCP server stopped with error")
		return
	}

	logger.Info("Symptom checker MCP server stopped")
}
