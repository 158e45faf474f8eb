package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/symptom-checker-server/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. SYMPTOM_CHECKER_SERVER_PORT.
const EnvPrefix = "SYMPTOM_CHECKER"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	paths  []string
	config *domain.Config
}

// NewManager loads .env (if present), config.yaml and the environment.
func NewManager() (*Manager, error) {
	return NewManagerWithPaths(".", "./config", "/etc/symptom-checker/")
}

// NewManagerWithPaths is NewManager with explicit config file search paths.
func NewManagerWithPaths(paths ...string) (*Manager, error) {
	m := &Manager{paths: paths}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range m.paths {
		v.AddConfigPath(p)
	}

	// Set environment variable prefix and enable automatic env binding
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("inference.gemini.api_key", EnvPrefix+"_INFERENCE_GEMINI_API_KEY", "GEMINI_API_KEY"); err != nil {
		return fmt.Errorf("binding gemini api key: %w", err)
	}

	setDefaults(v)

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "75s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.max_body_bytes", 12*1024*1024)

	// Inference defaults
	v.SetDefault("inference.provider", "mock")
	v.SetDefault("inference.gemini.model", "gemini-1.5-flash")
	v.SetDefault("inference.gemini.temperature", 0.2)
	v.SetDefault("inference.http.base_url", "")
	v.SetDefault("inference.http.api_key", "")
	v.SetDefault("inference.http.timeout", "60s")
	v.SetDefault("inference.breaker.max_requests", 1)
	v.SetDefault("inference.breaker.interval", "30s")
	v.SetDefault("inference.breaker.timeout", "60s")
	v.SetDefault("inference.breaker.min_requests", 3)
	v.SetDefault("inference.breaker.failure_ratio", 0.6)

	// Form session defaults
	v.SetDefault("forms.store", "memory")
	v.SetDefault("forms.max_sessions", 1000)
	v.SetDefault("forms.session_ttl", "30m")
	v.SetDefault("forms.redis_url", "redis://localhost:6379/0")
	v.SetDefault("forms.pool_size", 10)
	v.SetDefault("forms.key_prefix", "symptom-checker:form:")

	// Audit defaults
	v.SetDefault("audit.driver", "sqlite")
	v.SetDefault("audit.sqlite_path", "data/audit.db")
	v.SetDefault("audit.postgres_url", "")
	v.SetDefault("audit.max_open_conns", 25)
	v.SetDefault("audit.max_idle_conns", 5)
	v.SetDefault("audit.conn_max_lifetime", "5m")

	// Image upload throttle
	v.SetDefault("ratelimit.image_requests_per_second", 2.0)
	v.SetDefault("ratelimit.image_burst", 5)
	v.SetDefault("ratelimit.client_ttl", "10m")
	v.SetDefault("ratelimit.max_clients", 10000)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", false)
	v.SetDefault("tracing.sample_ratio", 1.0)

	// MCP defaults
	v.SetDefault("mcp.server_name", "symptom-checker")
	v.SetDefault("mcp.server_version", "1.0.0")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetInferenceConfig returns inference gateway configuration
func (m *Manager) GetInferenceConfig() *domain.InferenceConfig {
	return &m.config.Inference
}

// GetFormsConfig returns form session configuration
func (m *Manager) GetFormsConfig() *domain.FormsConfig {
	return &m.config.Forms
}

// GetAuditConfig returns audit trail configuration
func (m *Manager) GetAuditConfig() *domain.AuditConfig {
	return &m.config.Audit
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Server.MaxBodyBytes < domain.MaxImageBytes {
		return fmt.Errorf("server max_body_bytes must be at least %d", domain.MaxImageBytes)
	}

	switch config.Inference.Provider {
	case "gemini":
		if config.Inference.Gemini.APIKey == "" {
			return fmt.Errorf("gemini API key is required")
		}
		if config.Inference.Gemini.Model == "" {
			return fmt.Errorf("gemini model is required")
		}
	case "http":
		if config.Inference.HTTP.BaseURL == "" {
			return fmt.Errorf("inference HTTP base URL is required")
		}
	case "mock":
	default:
		return fmt.Errorf("invalid inference provider: %s", config.Inference.Provider)
	}
	if r := config.Inference.Breaker.FailureRatio; r <= 0 || r > 1 {
		return fmt.Errorf("breaker failure_ratio must be in (0, 1]: %v", r)
	}

	switch config.Forms.Store {
	case "memory":
	case "redis":
		if config.Forms.RedisURL == "" {
			return fmt.Errorf("Redis URL is required for the redis form store")
		}
	default:
		return fmt.Errorf("invalid form store: %s", config.Forms.Store)
	}

	switch config.Audit.Driver {
	case "sqlite":
		if config.Audit.SQLitePath == "" {
			return fmt.Errorf("audit sqlite_path is required")
		}
	case "postgres":
		if config.Audit.PostgresURL == "" {
			return fmt.Errorf("audit postgres_url is required")
		}
	case "none":
	default:
		return fmt.Errorf("invalid audit driver: %s", config.Audit.Driver)
	}

	if config.RateLimit.ImageRequestsPerSecond < 0 || config.RateLimit.ImageBurst < 0 {
		return fmt.Errorf("image rate limit values must not be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}
	if f := strings.ToLower(config.Logging.Format); f != "json" && f != "text" {
		return fmt.Errorf("invalid log format: %s", config.Logging.Format)
	}

	if config.Tracing.Enabled {
		switch config.Tracing.Exporter {
		case "stdout":
		case "otlp":
			if config.Tracing.Endpoint == "" {
				return fmt.Errorf("tracing endpoint is required for the otlp exporter")
			}
		default:
			return fmt.Errorf("invalid tracing exporter: %s", config.Tracing.Exporter)
		}
		if r := config.Tracing.SampleRatio; r < 0 || r > 1 {
			return fmt.Errorf("tracing sample_ratio must be in [0, 1]: %v", r)
		}
	}

	return nil
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
