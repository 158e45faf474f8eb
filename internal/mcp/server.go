// Package mcp exposes the intake pipeline as MCP tools over stdio.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/symptom-checker-server/internal/domain"
	"github.com/symptom-checker-server/internal/service"
)

// Server represents the symptom checker MCP server
type Server struct {
	config    domain.ConfigManager
	mcpServer *mcp.Server
	analyzer  *service.AnalyzerService
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance
func NewServer(configManager domain.ConfigManager, analyzer *service.AnalyzerService, logger *logrus.Logger) (*Server, error) {
	if analyzer == nil {
		return nil, fmt.Errorf("analyzer service is required")
	}
	cfg := configManager.GetConfig()

	name := cfg.MCP.ServerName
	if name == "" {
		name = "symptom-checker"
	}
	version := cfg.MCP.ServerVersion
	if version == "" {
		version = "1.0.0"
	}

	s := &Server{
		config:    configManager,
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		analyzer:  analyzer,
		logger:    logger,
	}

	s.registerTools()
	return s, nil
}

// Start serves MCP over stdin/stdout until ctx is cancelled or the client disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting symptom checker MCP server on stdio")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// registerTools registers the intake tools with the MCP SDK.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: toolAnalyzeSymptoms,
		Description: "Validate a symptom intake form, send it for analysis and return a ranked list of " +
			"possible conditions with confidence levels. Not medical advice.",
	}, s.handleAnalyzeSymptoms)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        toolValidateIntake,
		Description: "Check a symptom intake form without submitting it and report every field error.",
	}, s.handleValidateIntake)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        toolRenderDiagnoses,
		Description: "Turn a list of diagnoses with free-text confidence labels into ranked, tiered results.",
	}, s.handleRenderDiagnoses)

	s.logger.WithField("tool_count", len(toolNames)).Info("Registered MCP tools")
}
