// Package setup provides install-time helpers: registering the MCP server with Claude
// Desktop, reporting setup status and running audit migrations.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/symptom-checker-server/internal/config"
)

// ServerName is the key under which the MCP server is registered.
const ServerName = "symptom-checker"

// BinaryName is the MCP server executable.
const BinaryName = "mcp-server"

// ClaudeDesktopConfig represents the Claude Desktop configuration file structure.
type ClaudeDesktopConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
	// Other top-level keys are preserved on save.
	Extra map[string]json.RawMessage `json:"-"`
}

// MCPServerConfig represents a single MCP server configuration.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// SetupOptions contains options for the setup process.
type SetupOptions struct {
	ConfigPath  string // Claude Desktop config file; detected when empty
	BinaryPath  string // Path to the MCP server binary
	DataDir     string // Directory for the SQLite audit trail
	Provider    string // Inference provider passed to the server
	AutoConfirm bool   // Skip confirmation prompts
}

// GetClaudeDesktopConfigPath returns the path to Claude Desktop's config file.
func GetClaudeDesktopConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "Claude")
			break
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "Claude")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		configDir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(configDir, "claude_desktop_config.json"), nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return GetClaudeDesktopConfigPath()
}

// LoadClaudeDesktopConfig loads the existing Claude Desktop configuration. A missing file
// yields an empty configuration.
func LoadClaudeDesktopConfig(configPath string) (*ClaudeDesktopConfig, error) {
	cfg := &ClaudeDesktopConfig{
		MCPServers: make(map[string]MCPServerConfig),
		Extra:      make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg.Extra); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if raw, ok := cfg.Extra["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &cfg.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		delete(cfg.Extra, "mcpServers")
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]MCPServerConfig)
	}
	return cfg, nil
}

// SaveClaudeDesktopConfig saves the configuration to the Claude Desktop config file.
func SaveClaudeDesktopConfig(configPath string, cfg *ClaudeDesktopConfig) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := make(map[string]interface{}, len(cfg.Extra)+1)
	for k, v := range cfg.Extra {
		out[k] = v
	}
	out["mcpServers"] = cfg.MCPServers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ConfigureClaudeDesktop adds or updates the symptom checker in the Claude Desktop config.
// The server is configured to log to stderr, since stdout carries the protocol.
func ConfigureClaudeDesktop(opts SetupOptions) error {
	configPath, err := resolveConfigPath(opts.ConfigPath)
	if err != nil {
		return err
	}

	cfg, err := LoadClaudeDesktopConfig(configPath)
	if err != nil {
		return err
	}

	binaryPath := opts.BinaryPath
	if binaryPath == "" {
		if binaryPath, err = findBinary(); err != nil {
			return fmt.Errorf("could not find server binary: %w", err)
		}
	}

	env := map[string]string{
		config.EnvPrefix + "_LOGGING_OUTPUT": "stderr",
	}
	if opts.DataDir != "" {
		env[config.EnvPrefix+"_AUDIT_SQLITE_PATH"] = filepath.Join(opts.DataDir, "audit.db")
	}
	if opts.Provider != "" {
		env[config.EnvPrefix+"_INFERENCE_PROVIDER"] = opts.Provider
	}

	cfg.MCPServers[ServerName] = MCPServerConfig{Command: binaryPath, Env: env}
	return SaveClaudeDesktopConfig(configPath, cfg)
}

// findBinary looks for the MCP server binary on PATH and in common build locations.
func findBinary() (string, error) {
	if path, err := exec.LookPath(BinaryName); err == nil {
		return path, nil
	}

	home, _ := os.UserHomeDir()
	locations := []string{
		"./" + BinaryName,
		"./bin/" + BinaryName,
		filepath.Join(home, ".local", "bin", BinaryName),
		"/usr/local/bin/" + BinaryName,
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			if abs, err := filepath.Abs(loc); err == nil {
				return abs, nil
			}
			return loc, nil
		}
	}
	return "", fmt.Errorf("binary '%s' not found in common locations", BinaryName)
}

// Status represents the current setup status.
type Status struct {
	ClaudeDesktopConfigured bool
	ClaudeDesktopPath       string
	ServerPath              string
	AuditPath               string
	Issues                  []string
}

// GetStatus inspects the Claude Desktop registration.
func GetStatus(configPath string) (*Status, error) {
	status := &Status{Issues: []string{}}

	path, err := resolveConfigPath(configPath)
	if err != nil {
		status.Issues = append(status.Issues, fmt.Sprintf("Could not determine Claude Desktop config path: %v", err))
		return status, nil
	}
	status.ClaudeDesktopPath = path

	cfg, err := LoadClaudeDesktopConfig(path)
	if err != nil {
		status.Issues = append(status.Issues, fmt.Sprintf("Could not load Claude Desktop config: %v", err))
		return status, nil
	}

	server, ok := cfg.MCPServers[ServerName]
	if !ok {
		status.Issues = append(status.Issues, "Symptom checker is not registered in Claude Desktop")
		return status, nil
	}

	status.ClaudeDesktopConfigured = true
	status.ServerPath = server.Command
	status.AuditPath = server.Env[config.EnvPrefix+"_AUDIT_SQLITE_PATH"]

	if info, err := os.Stat(server.Command); err != nil {
		status.Issues = append(status.Issues, fmt.Sprintf("Server binary not found at: %s", server.Command))
	} else if info.Mode()&0111 == 0 {
		status.Issues = append(status.Issues, fmt.Sprintf("Server binary is not executable: %s", server.Command))
	}
	return status, nil
}
