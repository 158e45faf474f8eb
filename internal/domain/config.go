package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Inference   InferenceConfig `mapstructure:"inference"`
	Forms       FormsConfig     `mapstructure:"forms"`
	Audit       AuditConfig     `mapstructure:"audit"`
	RateLimit   RateLimitConfig `mapstructure:"ratelimit"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Tracing     TracingConfig   `mapstructure:"tracing"`
	MCP         MCPConfig       `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

// InferenceConfig selects and configures the inference gateway.
type InferenceConfig struct {
	Provider string               `mapstructure:"provider"` // "gemini", "http", "mock"
	Gemini   GeminiConfig         `mapstructure:"gemini"`
	HTTP     HTTPGatewayConfig    `mapstructure:"http"`
	Breaker  CircuitBreakerConfig `mapstructure:"breaker"`
}

// GeminiConfig represents Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
}

// HTTPGatewayConfig configures a generic JSON inference endpoint.
type HTTPGatewayConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CircuitBreakerConfig configures the fail-fast breaker around the gateway.
type CircuitBreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// FormsConfig configures form session storage.
type FormsConfig struct {
	Store       string        `mapstructure:"store"` // "memory", "redis"
	MaxSessions int           `mapstructure:"max_sessions"`
	SessionTTL  time.Duration `mapstructure:"session_ttl"`
	RedisURL    string        `mapstructure:"redis_url"`
	PoolSize    int           `mapstructure:"pool_size"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
}

// AuditConfig configures the analysis audit trail.
type AuditConfig struct {
	Driver          string        `mapstructure:"driver"` // "sqlite", "postgres", "none"
	SQLitePath      string        `mapstructure:"sqlite_path"`
	PostgresURL     string        `mapstructure:"postgres_url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RateLimitConfig throttles image uploads per client. The inference call is not throttled.
type RateLimitConfig struct {
	ImageRequestsPerSecond float64       `mapstructure:"image_requests_per_second"`
	ImageBurst             int           `mapstructure:"image_burst"`
	ClientTTL              time.Duration `mapstructure:"client_ttl"`
	MaxClients             int           `mapstructure:"max_clients"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TracingConfig configures OpenTelemetry tracing. Exporter is "stdout" (written to the
// process log stream) or "otlp" (OTLP over HTTP to Endpoint).
type TracingConfig struct {
	Enabled     bool              `mapstructure:"enabled"`
	Exporter    string            `mapstructure:"exporter"`
	Endpoint    string            `mapstructure:"endpoint"`
	Insecure    bool              `mapstructure:"insecure"`
	Headers     map[string]string `mapstructure:"headers"`
	SampleRatio float64           `mapstructure:"sample_ratio"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
}
