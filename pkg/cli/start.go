package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/getmoxy/moxy/pkg/cli/internal/output"
	"github.com/getmoxy/moxy/pkg/cli/internal/ports"
	"github.com/getmoxy/moxy/pkg/config"
	"github.com/getmoxy/moxy/pkg/logging"
	"github.com/getmoxy/moxy/pkg/rewrite"
	"github.com/spf13/cobra"
)

var startFlags struct {
	port         int
	host         string
	configFile   string
	rulesDir     string
	logLevel     string
	logFormat    string
	lokiEndpoint string
	historySize  int
	cookieName   string
	pidFile      string
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the moxy server",
	Long: `Start the moxy server in the foreground.

The rewrite endpoint, the admin API, and the event stream all share one
listen port. Configuration is resolved in precedence order: flags beat
environment variables beat the config file beat built-in defaults.`,
	Example: `  # Start with defaults (port 4280)
  moxy start

  # Start on another port with rules preloaded from a directory
  moxy start --port 8080 --rules-dir ./rules

  # Start from a config file, overriding its log level
  moxy start --config moxy.yaml --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().IntVarP(&startFlags.port, "port", "p", config.DefaultPort, "HTTP listen port (0 = pick a free port)")
	startCmd.Flags().StringVar(&startFlags.host, "host", config.DefaultHost, "Bind address (empty = all interfaces)")
	startCmd.Flags().StringVarP(&startFlags.configFile, "config", "c", "", "Path to config file (YAML or JSON)")
	startCmd.Flags().StringVar(&startFlags.rulesDir, "rules-dir", "", "Directory of rule files to preload")
	startCmd.Flags().StringVar(&startFlags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	startCmd.Flags().StringVar(&startFlags.logFormat, "log-format", "text", "Log format (text, json)")
	startCmd.Flags().StringVar(&startFlags.lokiEndpoint, "loki-endpoint", "", "Loki push URL for log aggregation")
	startCmd.Flags().IntVar(&startFlags.historySize, "history-size", config.DefaultHistorySize, "Exchange history entries kept per server")
	startCmd.Flags().StringVar(&startFlags.cookieName, "cookie-name", config.DefaultClientCookieName, "Cookie name carrying the client id")
	startCmd.Flags().StringVar(&startFlags.pidFile, "pid-file", DefaultPIDPath(), "Path to PID file (empty = no PID file)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := resolveStartConfig(cmd)
	if err != nil {
		return err
	}

	// Initialize structured logger
	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: logging.ParseFormat(cfg.Log.Format),
	})

	// Add Loki shipping if an endpoint is configured
	if startFlags.lokiEndpoint != "" {
		loki := logging.NewLokiHandler(logging.LokiConfig{
			Endpoint: startFlags.lokiEndpoint,
			Labels: map[string]string{
				"service": "moxy",
				"port":    strconv.Itoa(cfg.Port),
			},
			Level: logging.ParseLevel(cfg.Log.Level),
		})
		defer func() { _ = loki.Close() }()
		log = slog.New(logging.Fanout(log.Handler(), loki))
		log.Info("log aggregation enabled", "endpoint", startFlags.lokiEndpoint)
	}

	// Check for a port conflict before constructing the server
	if cfg.Port != 0 {
		if err := ports.Check(cfg.Port); err != nil {
			return formatPortError(cfg.Port, err)
		}
	}

	srv := rewrite.NewServer(cfg,
		rewrite.WithServerLogger(log),
		rewrite.WithServerVersion(Version),
	)

	if err := srv.LoadRules(); err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	if err := srv.Start(); err != nil {
		if isAddrInUseError(err) {
			return fmt.Errorf("port %d is already in use: try a different port with --port or check what's using it: lsof -i :%d", cfg.Port, cfg.Port)
		}
		return fmt.Errorf("failed to start server: %w", err)
	}

	// Write PID file for process management
	if cfg.PIDFile != "" {
		info := &PIDFile{
			PID:         os.Getpid(),
			StartTime:   time.Now(),
			Version:     Version,
			Commit:      Commit,
			Port:        srv.Port(),
			Host:        cfg.Host,
			ConfigFile:  startFlags.configFile,
			RulesDir:    cfg.RulesDir,
			RulesLoaded: srv.Store().Count(),
		}
		if err := WritePIDFile(cfg.PIDFile, info); err != nil {
			output.Warn("failed to write PID file: %v", err)
		}
		defer func() {
			if err := RemovePIDFile(cfg.PIDFile); err != nil {
				output.Warn("failed to remove PID file: %v", err)
			}
		}()
	}

	printStartupMessage(cfg.Host, srv.Port())

	waitForShutdown(srv)

	return nil
}

// resolveStartConfig builds the effective configuration: config file values
// under environment overrides under explicitly set flags.
func resolveStartConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	if startFlags.configFile != "" {
		loaded, err := config.Load(startFlags.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		cfg = loaded
	} else {
		cfg = &config.Config{}
	}

	cfg.ApplyDefaults()
	cfg.ApplyEnv()

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = startFlags.port
	}
	if flags.Changed("host") {
		cfg.Host = startFlags.host
	}
	if flags.Changed("rules-dir") {
		cfg.RulesDir = startFlags.rulesDir
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = startFlags.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = startFlags.logFormat
	}
	if flags.Changed("history-size") {
		cfg.HistorySize = startFlags.historySize
	}
	if flags.Changed("cookie-name") {
		cfg.ClientCookieName = startFlags.cookieName
	}
	if flags.Changed("pid-file") || cfg.PIDFile == "" {
		cfg.PIDFile = startFlags.pidFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// formatPortError formats a port availability error with suggestions.
func formatPortError(port int, err error) error {
	if err != nil {
		if isPermissionDeniedError(err) {
			return fmt.Errorf("could not bind port %d to check availability: %v", port, err)
		}
		if !isAddrInUseError(err) {
			return fmt.Errorf("failed to check port %d availability: %w", port, err)
		}
	}

	return fmt.Errorf(`port %d already in use

Suggestions:
  - Use a different port: moxy start --port %d
  - Check what's using the port: lsof -i :%d
  - Stop the other process and try again`, port, port+1, port)
}

// printStartupMessage prints the server startup information.
func printStartupMessage(host string, port int) {
	if host == "" {
		host = "localhost"
	}
	fmt.Printf("moxy running on http://%s:%d\n", host, port)
	fmt.Printf("Rewrite endpoint at http://%s:%d/api/rewrite\n", host, port)
	fmt.Printf("Event stream at ws://%s:%d/api/events\n", host, port)
	fmt.Println("Press Ctrl+C to stop")
}

// waitForShutdown blocks until SIGINT or SIGTERM, then stops the server.
func waitForShutdown(srv *rewrite.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	fmt.Println("\nShutting down...")

	if err := srv.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: shutdown error: %v\n", err)
	}

	fmt.Println("Server stopped")
}

// isAddrInUseError reports whether err is a bind failure for a taken port.
func isAddrInUseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	// Windows wraps the condition in WSAEADDRINUSE with its own message.
	msg := err.Error()
	return strings.Contains(msg, "address already in use") ||
		strings.Contains(msg, "Only one usage of each socket address")
}

// isPermissionDeniedError reports whether err is a privileged-port bind failure.
func isPermissionDeniedError(err error) bool {
	return errors.Is(err, syscall.EACCES) || errors.Is(err, os.ErrPermission)
}
