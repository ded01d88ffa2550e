package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "no-such.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Printer.Width != 32 {
		t.Errorf("width = %d, want 32", cfg.Printer.Width)
	}
	if cfg.Dispatcher.MaxAttempts != 3 {
		t.Errorf("max attempts = %d, want 3", cfg.Dispatcher.MaxAttempts)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
printer:
  device: kassa-2
  address: 10.0.0.5:9100
  width: 48
dispatcher:
  max_attempts: 5
  retry_backoff: 10s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Printer.Device != "kassa-2" || cfg.Printer.Width != 48 {
		t.Errorf("unexpected printer config: %+v", cfg.Printer)
	}
	if cfg.Dispatcher.MaxAttempts != 5 {
		t.Errorf("max attempts = %d, want 5", cfg.Dispatcher.MaxAttempts)
	}
	if cfg.Dispatcher.RetryBackoff != 10*time.Second {
		t.Errorf("retry backoff = %v, want 10s", cfg.Dispatcher.RetryBackoff)
	}
	// Unset fields keep their defaults.
	if cfg.Dispatcher.PollInterval != 2*time.Second {
		t.Errorf("poll interval = %v, want default 2s", cfg.Dispatcher.PollInterval)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PRINTD_PORT", "7070")
	t.Setenv("PRINTD_PRINTER_DEVICE", "kassa-3")

	cfg, err := Load(filepath.Join(t.TempDir(), "no-such.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Printer.Device != "kassa-3" {
		t.Errorf("device = %s, want env override kassa-3", cfg.Printer.Device)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server port"},
		{"empty db path", func(c *Config) { c.Database.Path = "" }, "database path"},
		{"empty device", func(c *Config) { c.Printer.Device = "" }, "printer device"},
		{"narrow width", func(c *Config) { c.Printer.Width = 8 }, "printer width"},
		{"zero attempts", func(c *Config) { c.Dispatcher.MaxAttempts = 0 }, "max attempts"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "log level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
