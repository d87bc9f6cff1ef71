package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all daemon configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Filter   FilterConfig   `yaml:"filter"`
}

// ServerConfig holds the admin HTTP server configuration
type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	LogLevel string `yaml:"log_level"`
}

// DatabaseConfig holds storage backend configuration.
// DSN selects PostgreSQL; without it the daemon uses a local SQLite file.
type DatabaseConfig struct {
	DSN  string `yaml:"dsn"`
	Path string `yaml:"path"`
}

// EngineConfig holds the enforcement loop configuration
type EngineConfig struct {
	// TickInterval is the period of the enforcement tick
	TickInterval time.Duration `yaml:"tick_interval"`
	// UsageStep is the number of seconds added to a running process's
	// counter each tick; it matches the nominal tick period
	UsageStep int64 `yaml:"usage_step"`
	// SessionUser is the display name of the user to enforce; empty
	// selects the first user in the store
	SessionUser string `yaml:"session_user"`
	// ScreenshotDir is where screenshot events write captures
	ScreenshotDir string `yaml:"screenshot_dir"`
}

// FilterConfig holds the domain blocklist configuration
type FilterConfig struct {
	// HostsPath overrides the OS default hosts file location
	HostsPath string `yaml:"hosts_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults
	setDefaults(cfg)

	// Load from file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Override with environment variables
	overrideFromEnv(cfg)

	// Validate configuration
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(cfg *Config) {
	cfg.Server.Port = 8321
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.LogLevel = "info"

	cfg.Database.Path = "./timewarden.db"

	cfg.Engine.TickInterval = 2 * time.Second
	cfg.Engine.UsageStep = 2
	cfg.Engine.ScreenshotDir = "screenshots"
}

// overrideFromEnv overrides config with environment variables
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("TIMEWARDEN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TIMEWARDEN_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("TIMEWARDEN_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("TIMEWARDEN_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("TIMEWARDEN_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TIMEWARDEN_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.TickInterval = d
		}
	}
	if v := os.Getenv("TIMEWARDEN_USAGE_STEP"); v != "" {
		if val, err := strconv.ParseInt(v, 10, 64); err == nil && val > 0 {
			cfg.Engine.UsageStep = val
		}
	}
	if v := os.Getenv("TIMEWARDEN_SESSION_USER"); v != "" {
		cfg.Engine.SessionUser = v
	}
	if v := os.Getenv("TIMEWARDEN_SCREENSHOT_DIR"); v != "" {
		cfg.Engine.ScreenshotDir = v
	}
	if v := os.Getenv("TIMEWARDEN_HOSTS_PATH"); v != "" {
		cfg.Filter.HostsPath = v
	}
}

// validate checks configuration values
func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Engine.TickInterval < 100*time.Millisecond {
		return fmt.Errorf("tick interval must be at least 100ms, got %s", cfg.Engine.TickInterval)
	}
	if cfg.Engine.UsageStep <= 0 {
		return fmt.Errorf("usage step must be positive, got %d", cfg.Engine.UsageStep)
	}
	if cfg.Database.DSN == "" && cfg.Database.Path == "" {
		return fmt.Errorf("either database.dsn or database.path must be set")
	}
	return nil
}
