package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Defaults applied by ApplyDefaults.
const (
	// DefaultPort is the HTTP listen port for the whole surface: the rewrite
	// endpoint, the event stream and the admin API share one server.
	DefaultPort = 4280

	// DefaultHost binds all interfaces.
	DefaultHost = ""

	// DefaultClientCookieName is the cookie pair carrying the client id.
	DefaultClientCookieName = "__pmid"

	// DefaultHistorySize is the exchange history ring buffer capacity.
	DefaultHistorySize = 1000

	// DefaultMaxBodyBytes caps request and upstream response bodies.
	DefaultMaxBodyBytes = 10 * 1024 * 1024

	// DefaultUpstreamTimeoutMs bounds one upstream round trip.
	DefaultUpstreamTimeoutMs = 30_000
)

// Environment variable names. Environment overrides beat file values and are
// beaten by explicit flags.
const (
	EnvPort        = "MOXY_PORT"
	EnvHost        = "MOXY_HOST"
	EnvLogLevel    = "MOXY_LOG_LEVEL"
	EnvLogFormat   = "MOXY_LOG_FORMAT"
	EnvCookieName  = "MOXY_COOKIE_NAME"
	EnvHistorySize = "MOXY_HISTORY_SIZE"
	EnvRulesDir    = "MOXY_RULES_DIR"
	EnvPIDFile     = "MOXY_PID_FILE"

	// EnvAdminURL is read by CLI client commands, not by ApplyEnv: it names
	// a server to talk to, not a property of this process.
	EnvAdminURL = "MOXY_ADMIN_URL"
)

// LogConfig selects log verbosity and output shape.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// Config is the root server configuration.
type Config struct {
	// Port is the HTTP listen port. 0 lets the OS pick a free port.
	Port int `json:"port,omitempty" yaml:"port,omitempty"`

	// Host is the bind address. Empty binds all interfaces.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// ClientCookieName is the cookie name holding the client id inside the
	// rewrite endpoint's cookie parameter.
	ClientCookieName string `json:"clientCookieName,omitempty" yaml:"clientCookieName,omitempty"`

	// HistorySize caps the in-memory exchange history. Oldest entries are
	// evicted first.
	HistorySize int `json:"historySize,omitempty" yaml:"historySize,omitempty"`

	// MaxBodyBytes caps inbound request bodies and relayed upstream
	// response bodies.
	MaxBodyBytes int64 `json:"maxBodyBytes,omitempty" yaml:"maxBodyBytes,omitempty"`

	// UpstreamTimeoutMs bounds one upstream round trip in milliseconds.
	UpstreamTimeoutMs int `json:"upstreamTimeoutMs,omitempty" yaml:"upstreamTimeoutMs,omitempty"`

	// RulesDir is a directory of rule files loaded into the store at
	// startup. Empty disables preloading.
	RulesDir string `json:"rulesDir,omitempty" yaml:"rulesDir,omitempty"`

	// PIDFile is where the server writes its process id. Empty disables
	// the PID file.
	PIDFile string `json:"pidFile,omitempty" yaml:"pidFile,omitempty"`

	// Log configures the logger.
	Log LogConfig `json:"log,omitempty" yaml:"log,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields. A Port of 0 is preserved only when
// explicitly requested through PortIsSet handling at the CLI layer; here it
// defaults like everything else.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ClientCookieName == "" {
		c.ClientCookieName = DefaultClientCookieName
	}
	if c.HistorySize == 0 {
		c.HistorySize = DefaultHistorySize
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.UpstreamTimeoutMs == 0 {
		c.UpstreamTimeoutMs = DefaultUpstreamTimeoutMs
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// ApplyEnv overrides fields from MOXY_* environment variables. Unparseable
// numeric values are ignored.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv(EnvHost); v != "" {
		c.Host = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv(EnvCookieName); v != "" {
		c.ClientCookieName = v
	}
	if v := os.Getenv(EnvHistorySize); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HistorySize = n
		}
	}
	if v := os.Getenv(EnvRulesDir); v != "" {
		c.RulesDir = v
	}
	if v := os.Getenv(EnvPIDFile); v != "" {
		c.PIDFile = v
	}
}

// Validate checks the configuration and returns every problem found, joined
// into one error.
func (c *Config) Validate() error {
	var problems []string

	if c.Port < 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.HistorySize < 0 {
		problems = append(problems, fmt.Sprintf("historySize must be non-negative, got %d", c.HistorySize))
	}
	if c.MaxBodyBytes < 0 {
		problems = append(problems, fmt.Sprintf("maxBodyBytes must be non-negative, got %d", c.MaxBodyBytes))
	}
	if c.UpstreamTimeoutMs < 0 {
		problems = append(problems, fmt.Sprintf("upstreamTimeoutMs must be non-negative, got %d", c.UpstreamTimeoutMs))
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("unknown log format %q", c.Log.Format))
	}
	if c.RulesDir != "" {
		if info, err := os.Stat(c.RulesDir); err != nil {
			problems = append(problems, fmt.Sprintf("rulesDir %s: %v", c.RulesDir, err))
		} else if !info.IsDir() {
			problems = append(problems, fmt.Sprintf("rulesDir %s is not a directory", c.RulesDir))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ListenAddr returns the host:port pair to bind.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
