package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

func TestLoad_NoConfigFile_Defaults(t *testing.T) {
	cfg, err := Load(&CLI{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8000)
	}
	if cfg.Static.Root != "." {
		t.Errorf("Static.Root = %q, want %q", cfg.Static.Root, ".")
	}
	if cfg.Static.NoBrowser {
		t.Error("Static.NoBrowser = true, want false by default")
	}

	claude := cfg.Target(TargetClaude)
	if claude == nil {
		t.Fatal("Target(claude) = nil")
	}
	if claude.URL != "https://api.anthropic.com/v1/messages" {
		t.Errorf("claude.URL = %q", claude.URL)
	}
	if claude.AuthHeader != "x-api-key" {
		t.Errorf("claude.AuthHeader = %q, want %q", claude.AuthHeader, "x-api-key")
	}
	if got := claude.ExtraHeaders["anthropic-version"]; got != "2023-06-01" {
		t.Errorf("claude anthropic-version = %q, want %q", got, "2023-06-01")
	}
	if claude.TimeoutSeconds != 0 {
		t.Errorf("claude.TimeoutSeconds = %d, want 0 (no timeout)", claude.TimeoutSeconds)
	}

	gemini := cfg.Target(TargetGemini)
	if gemini == nil {
		t.Fatal("Target(gemini) = nil")
	}
	if gemini.AuthHeader != "x-goog-api-key" {
		t.Errorf("gemini.AuthHeader = %q, want %q", gemini.AuthHeader, "x-goog-api-key")
	}
	if gemini.TimeoutSeconds != 60 {
		t.Errorf("gemini.TimeoutSeconds = %d, want 60", gemini.TimeoutSeconds)
	}
	if !strings.Contains(gemini.URL, "generativelanguage.googleapis.com") {
		t.Errorf("gemini.URL = %q", gemini.URL)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
[server]
host = "127.0.0.1"
port = 9000
body_max_bytes = 5242880

[static]
root = "dist"
no_browser = true

[upstream]
idle_connections = 50

[upstream.claude]
timeout_seconds = 120

[upstream.gemini]
timeout_seconds = 30

[log]
level = "debug"
format = "text"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if cfg.Static.Root != "dist" {
		t.Errorf("Static.Root = %q, want %q", cfg.Static.Root, "dist")
	}
	if !cfg.Static.NoBrowser {
		t.Error("Static.NoBrowser = false, want true")
	}
	if cfg.Upstream.Claude.TimeoutSeconds != 120 {
		t.Errorf("claude.TimeoutSeconds = %d, want %d", cfg.Upstream.Claude.TimeoutSeconds, 120)
	}
	if cfg.Upstream.Gemini.TimeoutSeconds != 30 {
		t.Errorf("gemini.TimeoutSeconds = %d, want %d", cfg.Upstream.Gemini.TimeoutSeconds, 30)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	// Defaults still fill what the file omits.
	if cfg.Upstream.Claude.URL != "https://api.anthropic.com/v1/messages" {
		t.Errorf("claude.URL = %q, want default", cfg.Upstream.Claude.URL)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(cliWithPath(filepath.Join(t.TempDir(), "nope.toml")))
	if err == nil {
		t.Fatal("Load() expected error for missing explicit config file")
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	cli := &CLI{
		Host:      "localhost",
		Port:      3000,
		Root:      "public",
		NoBrowser: true,
		LogLevel:  "warn",
	}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "localhost" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "localhost")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 3000)
	}
	if cfg.Static.Root != "public" {
		t.Errorf("Static.Root = %q, want %q", cfg.Static.Root, "public")
	}
	if !cfg.Static.NoBrowser {
		t.Error("Static.NoBrowser = false, want true")
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
}

func TestLoad_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{
			name: "port out of range",
			data: "[server]\nport = 70000\n",
		},
		{
			name: "negative body max",
			data: "[server]\nbody_max_bytes = -1\n",
		},
		{
			name: "non-https target url",
			data: "[upstream.claude]\nurl = \"http://api.anthropic.com/v1/messages\"\n",
		},
		{
			name: "negative target timeout",
			data: "[upstream.gemini]\ntimeout_seconds = -5\n",
		},
		{
			name: "bad log level",
			data: "[log]\nlevel = \"verbose\"\n",
		},
		{
			name: "bad log format",
			data: "[log]\nformat = \"xml\"\n",
		},
		{
			name: "metrics path without slash",
			data: "[metrics]\nenabled = true\npath = \"metrics\"\n",
		},
		{
			name: "metrics path conflicts with proxy route",
			data: "[metrics]\nenabled = true\npath = \"/api/claude\"\n",
		},
		{
			name: "not toml",
			data: "{ this is not toml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.data), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(cliWithPath(path)); err == nil {
				t.Error("Load() expected error, got nil")
			}
		})
	}
}

func TestTarget_Unknown(t *testing.T) {
	cfg, err := Load(&CLI{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Target("openai"); got != nil {
		t.Errorf("Target(openai) = %+v, want nil", got)
	}
}

func TestTargets_Order(t *testing.T) {
	cfg, err := Load(&CLI{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	targets := cfg.Targets()
	if len(targets) != 2 {
		t.Fatalf("len(Targets()) = %d, want 2", len(targets))
	}
	if targets[0].Name != TargetClaude || targets[1].Name != TargetGemini {
		t.Errorf("Targets() order = %q, %q", targets[0].Name, targets[1].Name)
	}
}

func TestAddr(t *testing.T) {
	sc := ServerConfig{Host: "127.0.0.1", Port: 8000}
	if got := sc.Addr(); got != "127.0.0.1:8000" {
		t.Errorf("Addr() = %q, want %q", got, "127.0.0.1:8000")
	}
}

func TestFindConfigInPaths(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(existing, []byte(""), 0o600); err != nil {
		t.Fatal(err)
	}

	got := findConfigInPaths([]string{filepath.Join(dir, "missing.toml"), existing})
	if got != existing {
		t.Errorf("findConfigInPaths() = %q, want %q", got, existing)
	}

	if got := findConfigInPaths([]string{filepath.Join(dir, "missing.toml")}); got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}

func TestWarnPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	cfg.WarnPermissions(logger)

	if !strings.Contains(buf.String(), "chmod 600") {
		t.Errorf("expected permission warning for 0644 file, got %q", buf.String())
	}
}
