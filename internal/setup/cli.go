package setup

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/symptom-checker-server/internal/database"
	"github.com/symptom-checker-server/internal/domain"
)

// CLI provides command-line interface for setup operations.
type CLI struct {
	cfg    *domain.Config
	logger *logrus.Logger
	reader *bufio.Reader
	out    io.Writer
}

// NewCLI creates a new setup CLI instance.
func NewCLI(cfg *domain.Config, logger *logrus.Logger, in io.Reader, out io.Writer) *CLI {
	return &CLI{
		cfg:    cfg,
		logger: logger,
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run executes the setup command based on the provided arguments.
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return c.showHelp()
	}

	switch args[0] {
	case "claude-desktop":
		return c.setupClaudeDesktop(args[1:])
	case "status":
		return c.showStatus(args[1:])
	case "migrate":
		return c.migrate(ctx, args[1:])
	case "help", "--help", "-h":
		return c.showHelp()
	default:
		fmt.Fprintf(c.out, "Unknown command: %s\n\n", args[0])
		_ = c.showHelp()
		return fmt.Errorf("unknown setup command %q", args[0])
	}
}

func (c *CLI) showHelp() error {
	fmt.Fprint(c.out, `
Symptom Checker Setup

Usage:
  setup <command> [options]

Commands:
  claude-desktop  Register the MCP server with Claude Desktop
  status          Show the Claude Desktop registration
  migrate         Apply (up), roll back (down) or show (version) the Postgres audit schema

Examples:
  mcp-server setup claude-desktop --provider gemini --data-dir ~/.symptom-checker
  mcp-server setup status
  server setup migrate up
`)
	return nil
}

func (c *CLI) setupClaudeDesktop(args []string) error {
	var opts SetupOptions
	fs := pflag.NewFlagSet("claude-desktop", pflag.ContinueOnError)
	fs.SetOutput(c.out)
	fs.StringVarP(&opts.BinaryPath, "binary", "b", "", "path to the mcp-server binary")
	fs.StringVarP(&opts.DataDir, "data-dir", "d", "", "directory for the audit database")
	fs.StringVar(&opts.Provider, "provider", "", "inference provider (gemini, http, mock)")
	fs.StringVar(&opts.ConfigPath, "config", "", "Claude Desktop config file")
	fs.BoolVarP(&opts.AutoConfirm, "auto", "y", false, "do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if opts.BinaryPath == "" {
		if execPath, err := os.Executable(); err == nil {
			opts.BinaryPath = execPath
		}
	}

	configPath, err := resolveConfigPath(opts.ConfigPath)
	if err != nil {
		return err
	}
	opts.ConfigPath = configPath

	fmt.Fprintln(c.out, "Claude Desktop Configuration")
	fmt.Fprintln(c.out, "============================")
	fmt.Fprintf(c.out, "Config file: %s\n", configPath)
	fmt.Fprintf(c.out, "Server binary: %s\n", opts.BinaryPath)
	if opts.DataDir != "" {
		fmt.Fprintf(c.out, "Data directory: %s\n", opts.DataDir)
	}
	fmt.Fprintln(c.out)

	if !opts.AutoConfirm && !c.confirm("Proceed with configuration? [Y/n]: ", true) {
		fmt.Fprintln(c.out, "Configuration cancelled.")
		return nil
	}

	if opts.DataDir != "" {
		if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	if err := ConfigureClaudeDesktop(opts); err != nil {
		return fmt.Errorf("failed to configure Claude Desktop: %w", err)
	}

	fmt.Fprintln(c.out, "Claude Desktop configured. Restart Claude Desktop to load the symptom checker tools.")
	return nil
}

func (c *CLI) showStatus(args []string) error {
	fs := pflag.NewFlagSet("status", pflag.ContinueOnError)
	fs.SetOutput(c.out)
	configPath := fs.String("config", "", "Claude Desktop config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	status, err := GetStatus(*configPath)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.out, "Symptom Checker Status")
	fmt.Fprintln(c.out, "======================")
	fmt.Fprintf(c.out, "Claude Desktop config: %s\n", status.ClaudeDesktopPath)
	if status.ClaudeDesktopConfigured {
		fmt.Fprintf(c.out, "Registered: yes (%s)\n", status.ServerPath)
	} else {
		fmt.Fprintln(c.out, "Registered: no")
	}
	if status.AuditPath != "" {
		fmt.Fprintf(c.out, "Audit database: %s\n", status.AuditPath)
	}
	if c.cfg != nil {
		fmt.Fprintf(c.out, "Inference provider: %s\n", c.cfg.Inference.Provider)
		fmt.Fprintf(c.out, "Audit driver: %s\n", c.cfg.Audit.Driver)
		fmt.Fprintf(c.out, "Form store: %s\n", c.cfg.Forms.Store)
	}
	for _, issue := range status.Issues {
		fmt.Fprintf(c.out, "  ! %s\n", issue)
	}
	return nil
}

// migrate manages the Postgres audit schema. The SQLite store creates its schema on open.
func (c *CLI) migrate(ctx context.Context, args []string) error {
	if c.cfg == nil || c.cfg.Audit.Driver != "postgres" {
		fmt.Fprintln(c.out, "Migrations apply to the postgres audit driver only; nothing to do.")
		return nil
	}

	direction := "up"
	if len(args) > 0 {
		direction = args[0]
	}

	runner, err := database.NewMigrationRunner(c.cfg.Audit.PostgresURL, c.logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	switch direction {
	case "up":
		return runner.Up(ctx)
	case "down":
		if !c.confirm("This drops the audit table. Continue? [y/N]: ", false) {
			fmt.Fprintln(c.out, "Rollback cancelled.")
			return nil
		}
		return runner.Down(ctx)
	case "version":
		version, dirty, err := runner.Version()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Schema version: %d (dirty: %t)\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate direction %q", direction)
	}
}

func (c *CLI) confirm(prompt string, defaultYes bool) bool {
	fmt.Fprint(c.out, prompt)
	response, _ := c.reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	if response == "" {
		return defaultYes
	}
	return response == "y" || response == "yes"
}
