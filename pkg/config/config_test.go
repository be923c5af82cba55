package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "", cfg.Host)
	assert.Equal(t, DefaultClientCookieName, cfg.ClientCookieName)
	assert.Equal(t, DefaultHistorySize, cfg.HistorySize)
	assert.Equal(t, int64(DefaultMaxBodyBytes), cfg.MaxBodyBytes)
	assert.Equal(t, DefaultUpstreamTimeoutMs, cfg.UpstreamTimeoutMs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestApplyDefaults_PreservesSetFields(t *testing.T) {
	cfg := &Config{
		Port:             9999,
		ClientCookieName: "session",
		HistorySize:      5,
		Log:              LogConfig{Level: "debug"},
	}
	cfg.ApplyDefaults()

	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "session", cfg.ClientCookieName)
	assert.Equal(t, 5, cfg.HistorySize)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Unset fields still get defaults.
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, int64(DefaultMaxBodyBytes), cfg.MaxBodyBytes)
}

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv(EnvPort, "9123")
	t.Setenv(EnvHost, "127.0.0.1")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvCookieName, "mycookie")
	t.Setenv(EnvHistorySize, "42")
	t.Setenv(EnvRulesDir, "/tmp/rules")
	t.Setenv(EnvPIDFile, "/tmp/moxy.pid")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, 9123, cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "mycookie", cfg.ClientCookieName)
	assert.Equal(t, 42, cfg.HistorySize)
	assert.Equal(t, "/tmp/rules", cfg.RulesDir)
	assert.Equal(t, "/tmp/moxy.pid", cfg.PIDFile)
}

func TestApplyEnv_IgnoresUnparseableNumbers(t *testing.T) {
	t.Setenv(EnvPort, "not-a-port")
	t.Setenv(EnvHistorySize, "lots")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultHistorySize, cfg.HistorySize)
}

func TestValidate_OK(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Port = 70000
	cfg.HistorySize = -1
	cfg.Log.Level = "shouty"
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "port 70000 out of range")
	assert.Contains(t, msg, "historySize")
	assert.Contains(t, msg, `unknown log level "shouty"`)
	assert.Contains(t, msg, `unknown log format "xml"`)
}

func TestValidate_RulesDirMustExist(t *testing.T) {
	cfg := Default()
	cfg.RulesDir = filepath.Join(t.TempDir(), "nope")

	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidate_RulesDirMustBeDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client: a\nrules: []\n"), 0644))

	cfg := Default()
	cfg.RulesDir = path

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "moxy.yaml")

	content := `port: 8085
host: localhost
clientCookieName: trace
historySize: 25
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8085, cfg.Port)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, "trace", cfg.ClientCookieName)
	assert.Equal(t, 25, cfg.HistorySize)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_ValidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "moxy.json")

	content := `{"port": 8090, "rulesDir": "/srv/rules", "log": {"level": "warn"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8090, cfg.Port)
	assert.Equal(t, "/srv/rules", cfg.RulesDir)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/path/moxy.yaml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestLoad_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0644))

	cfg, err := Load(path)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [unterminated\n"), 0644))

	cfg, err := Load(path)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": }`), 0644))

	cfg, err := Load(path)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestLoad_Directory(t *testing.T) {
	cfg, err := Load(t.TempDir())
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "directory")
}

func TestLoadFromReader_YAML(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("port: 1234\n"), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, 1234, cfg.Port)
}

func TestLoadFromReader_JSON(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`{"port": 4321}`), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 4321, cfg.Port)
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatForPath("config.yaml"))
	assert.Equal(t, FormatYAML, FormatForPath("config.YML"))
	assert.Equal(t, FormatJSON, FormatForPath("config.json"))
	assert.Equal(t, FormatJSON, FormatForPath("config"))
}

func TestListenAddr(t *testing.T) {
	cfg := &Config{Host: "127.0.0.1", Port: 4280}
	assert.Equal(t, "127.0.0.1:4280", cfg.ListenAddr())

	cfg = &Config{Port: 4280}
	assert.Equal(t, ":4280", cfg.ListenAddr())
}
