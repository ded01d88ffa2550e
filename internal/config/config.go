package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Printer    PrinterConfig    `yaml:"printer"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type PrinterConfig struct {
	Device  string `yaml:"device"`
	Address string `yaml:"address"`
	Width   int    `yaml:"width"`
}

type DispatcherConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	SendTimeout    time.Duration `yaml:"send_timeout"`
	StaleThreshold time.Duration `yaml:"stale_threshold"`
	ReapInterval   time.Duration `yaml:"reap_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/printd.db",
		},
		Printer: PrinterConfig{
			Device:  "kassa-1",
			Address: "127.0.0.1:9100",
			Width:   32,
		},
		Dispatcher: DispatcherConfig{
			MaxAttempts:    3,
			PollInterval:   2 * time.Second,
			RetryBackoff:   5 * time.Second,
			MaxBackoff:     5 * time.Minute,
			SendTimeout:    10 * time.Second,
			StaleThreshold: 2 * time.Minute,
			ReapInterval:   30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PRINTD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}

	if v := os.Getenv("PRINTD_DB_PATH"); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv("PRINTD_PRINTER_DEVICE"); v != "" {
		c.Printer.Device = v
	}

	if v := os.Getenv("PRINTD_PRINTER_ADDRESS"); v != "" {
		c.Printer.Address = v
	}

	if v := os.Getenv("PRINTD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Printer.Device == "" {
		return fmt.Errorf("printer device is required")
	}

	if c.Printer.Address == "" {
		return fmt.Errorf("printer address is required")
	}

	if c.Printer.Width < 16 {
		return fmt.Errorf("printer width must be at least 16 characters, got %d", c.Printer.Width)
	}

	if c.Dispatcher.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}

	if c.Dispatcher.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	if c.Dispatcher.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff must be non-negative")
	}

	if c.Dispatcher.SendTimeout <= 0 {
		return fmt.Errorf("send timeout must be positive")
	}

	if c.Dispatcher.StaleThreshold <= 0 {
		return fmt.Errorf("stale threshold must be positive")
	}

	if c.Dispatcher.ReapInterval <= 0 {
		return fmt.Errorf("reap interval must be positive")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json":  true,
		"text":  true,
		"plain": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text, plain)", c.Logging.Format)
	}

	return nil
}
