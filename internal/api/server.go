// Package api exposes the intake pipeline and form sessions over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/symptom-checker-server/internal/audit"
	"github.com/symptom-checker-server/internal/domain"
	"github.com/symptom-checker-server/internal/form"
	"github.com/symptom-checker-server/internal/middleware"
	"github.com/symptom-checker-server/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// GatewayStatus reports the state of the inference gateway breaker.
type GatewayStatus interface {
	Name() string
	State() gobreaker.State
}

// Deps are the collaborators the HTTP server routes to.
type Deps struct {
	Logger   *logrus.Logger
	Analyzer *service.AnalyzerService
	Forms    *form.Manager
	Audit    audit.Store
	Gateway  GatewayStatus
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	logger        *logrus.Logger
	analyzer      *service.AnalyzerService
	forms         *form.Manager
	audit         audit.Store
	gateway       GatewayStatus
	limiter       *middleware.ClientRateLimiter
	upgrader      websocket.Upgrader
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, deps Deps) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		configManager: configManager,
		logger:        deps.Logger,
		analyzer:      deps.Analyzer,
		forms:         deps.Forms,
		audit:         deps.Audit,
		gateway:       deps.Gateway,
		limiter:       middleware.NewClientRateLimiter(cfg.RateLimit),
		router:        gin.New(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.Server.AllowedOrigins),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware(serviceName(cfg)))
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.RequestLogger(s.logger))
	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins)))
	s.router.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	s.setupRoutes(cfg.Server.RequestTimeout)
	return s
}

func serviceName(cfg *domain.Config) string {
	if cfg.MCP.ServerName != "" {
		return cfg.MCP.ServerName
	}
	return "symptom-checker"
}

// Router returns the gin engine, for tests and embedding.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes(requestTimeout time.Duration) {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/readyz", s.handleReady)

	v1 := s.router.Group("/api/v1")
	timed := v1.Group("", middleware.RequestTimeout(requestTimeout))
	images := s.limiter.Middleware()
	{
		timed.POST("/validate", s.handleValidate)
		timed.POST("/images/check", images, s.handleImageCheck)
		timed.POST("/analyze", s.handleAnalyze)
		timed.POST("/render", s.handleRender)

		timed.POST("/forms", s.handleCreateForm)
		timed.GET("/forms/:id", s.handleGetForm)
		timed.DELETE("/forms/:id", s.handleDeleteForm)
		timed.POST("/forms/:id/events", s.handleFormEvent)
		timed.PUT("/forms/:id/image", images, s.handleFormImage)
		timed.DELETE("/forms/:id/image", s.handleFormImageRemove)

		timed.GET("/audit/summary", s.handleAuditSummary)
		timed.GET("/audit/records", s.handleAuditRecords)
	}

	// Long-lived; no request timeout.
	v1.GET("/forms/:id/stream", s.handleFormStream)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
	}
	if s.gateway != nil {
		body["gateway"] = gin.H{
			"name":    s.gateway.Name(),
			"breaker": s.gateway.State().String(),
		}
	}
	c.JSON(http.StatusOK, body)
}

// handleReady reports whether the audit store is reachable.
func (s *Server) handleReady(c *gin.Context) {
	if s.audit != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.audit.Ping(ctx); err != nil {
			s.logger.WithError(err).Warn("Readiness check failed")
			c.JSON(http.StatusServiceUnavailable, domain.NewAPIError(
				domain.ErrServiceUnhealthy, "Audit store unavailable", "", middleware.GetRequestID(c)))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		// cors rejects an empty origin list; deny every cross-origin request instead.
		cfg.AllowOriginFunc = func(string) bool { return false }
	}
	return cfg
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}
