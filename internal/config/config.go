// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Names of the two built-in upstream targets.
const (
	TargetClaude = "claude"
	TargetGemini = "gemini"
)

// Built-in upstream endpoints and auth conventions.
const (
	defaultClaudeURL        = "https://api.anthropic.com/v1/messages"
	defaultClaudeAuthHeader = "x-api-key"
	anthropicVersion        = "2023-06-01"

	defaultGeminiURL            = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-flash-image-preview:generateContent"
	defaultGeminiAuthHeader     = "x-goog-api-key"
	defaultGeminiTimeoutSeconds = 60
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"pagebuilder.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config    string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host      string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port      int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	Root      string `kong:"help='Static file root directory (overrides config).',env='STATIC_ROOT'"`
	NoBrowser bool   `kong:"help='Do not open a browser tab on startup.',env='NO_BROWSER'"`
	LogLevel  string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Static   StaticConfig   `toml:"static"`
	Upstream UpstreamConfig `toml:"upstream"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64  `toml:"body_max_bytes"`
}

// StaticConfig holds static file serving settings.
type StaticConfig struct {
	Root      string `toml:"root"`
	NoBrowser bool   `toml:"no_browser"`
}

// UpstreamConfig holds the outbound connection pool settings and the two
// fixed proxy targets.
type UpstreamConfig struct {
	IdleConnections int          `toml:"idle_connections"`
	Claude          TargetConfig `toml:"claude"`
	Gemini          TargetConfig `toml:"gemini"`
}

// TargetConfig describes one upstream API endpoint. Instances are built
// once at startup and never mutated afterwards.
type TargetConfig struct {
	Name           string            `toml:"-"`
	URL            string            `toml:"url"`
	AuthHeader     string            `toml:"auth_header"`
	ExtraHeaders   map[string]string `toml:"extra_headers"`
	TimeoutSeconds int               `toml:"timeout_seconds"` // 0 means no timeout
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file, applies CLI overrides, fills defaults and
// validates. When no explicit path is given (via --config or CONFIG_PATH) it
// searches pagebuilder.toml then configs/config.toml; when neither exists the
// server runs entirely on defaults, so a fresh checkout needs no config file.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.Root != "" {
		c.Static.Root = cli.Root
	}
	if cli.NoBrowser {
		c.Static.NoBrowser = true
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields, zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key. The one deliberate exception is
// upstream.claude.timeout_seconds, where zero really means no timeout: the
// text target has always run unbounded, and long generations would trip any
// fixed default.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Static.Root == "" {
		c.Static.Root = "." // process working directory
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}

	c.Upstream.Claude.Name = TargetClaude
	if c.Upstream.Claude.URL == "" {
		c.Upstream.Claude.URL = defaultClaudeURL
	}
	if c.Upstream.Claude.AuthHeader == "" {
		c.Upstream.Claude.AuthHeader = defaultClaudeAuthHeader
	}
	if c.Upstream.Claude.ExtraHeaders == nil {
		c.Upstream.Claude.ExtraHeaders = map[string]string{
			"anthropic-version": anthropicVersion,
		}
	}

	c.Upstream.Gemini.Name = TargetGemini
	if c.Upstream.Gemini.URL == "" {
		c.Upstream.Gemini.URL = defaultGeminiURL
	}
	if c.Upstream.Gemini.AuthHeader == "" {
		c.Upstream.Gemini.AuthHeader = defaultGeminiAuthHeader
	}
	if c.Upstream.Gemini.TimeoutSeconds == 0 {
		c.Upstream.Gemini.TimeoutSeconds = defaultGeminiTimeoutSeconds
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

func (c *Config) validate() error {
	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}

	// Target URLs: required and must be HTTPS, since they carry API keys.
	for _, t := range c.Targets() {
		u, err := url.Parse(t.URL)
		if err != nil {
			return fmt.Errorf("upstream.%s.url is not a valid URL: %w", t.Name, err)
		}
		if u.Scheme != "https" {
			return fmt.Errorf("upstream.%s.url must use HTTPS; got %q", t.Name, t.URL)
		}
		if t.AuthHeader == "" {
			return fmt.Errorf("upstream.%s.auth_header is required", t.Name)
		}
		if t.TimeoutSeconds < 0 {
			return fmt.Errorf("upstream.%s.timeout_seconds must be non-negative; got %d", t.Name, t.TimeoutSeconds)
		}
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/api/claude", "/api/gemini", "/healthz", "/proxy/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// Targets returns the two upstream targets in a fixed order.
func (c *Config) Targets() []*TargetConfig {
	return []*TargetConfig{&c.Upstream.Claude, &c.Upstream.Gemini}
}

// Target returns the target with the given name, or nil.
func (c *Config) Target(name string) *TargetConfig {
	switch name {
	case TargetClaude:
		return &c.Upstream.Claude
	case TargetGemini:
		return &c.Upstream.Gemini
	}
	return nil
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
