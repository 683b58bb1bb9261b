// Package daemon manages the gitquest daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// envPrefix namespaces every environment override, e.g. GITQUEST_API_PORT.
// Multi-word fields are split on case changes: GITQUEST_ENGAGEMENT_UTC_OFFSET.
const envPrefix = "GITQUEST"

// Config holds all daemon configuration.
type Config struct {
	API        APIConfig        `toml:"api"`
	Database   DatabaseConfig   `toml:"database"`
	Engagement EngagementConfig `toml:"engagement"`
	Throttle   ThrottleConfig   `toml:"throttle"`
	Logging    LoggingConfig    `toml:"logging"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins" split_words:"true"`
	// WebhookRatePerMinute limits webhook deliveries per client IP. Zero disables it.
	WebhookRatePerMinute int `toml:"webhook_rate_per_minute" split_words:"true"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Dir string `toml:"dir"`
}

// EngagementConfig tunes the progression engine.
type EngagementConfig struct {
	// UTCOffset is the canonical timezone for day and week boundaries, "+07:00".
	UTCOffset        string `toml:"utc_offset" split_words:"true"`
	DailyChallenges  int    `toml:"daily_challenges" split_words:"true"`
	WeeklyChallenges int    `toml:"weekly_challenges" split_words:"true"`
	ClaimedLimit     int    `toml:"claimed_limit" split_words:"true"`
	HistoryLimit     int    `toml:"history_limit" split_words:"true"`
}

// ThrottleConfig selects the TTL store behind request throttling.
type ThrottleConfig struct {
	Backend       string `toml:"backend"` // memory | redis
	RedisAddr     string `toml:"redis_addr" split_words:"true"`
	RedisPassword string `toml:"redis_password" split_words:"true"`
	RedisDB       int    `toml:"redis_db" split_words:"true"`
	// AchievementCheckInterval is the minimum gap between manual checks of one user.
	AchievementCheckInterval time.Duration `toml:"achievement_check_interval" split_words:"true"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text | json
}

// TelemetryConfig toggles the Prometheus endpoint.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:                 "127.0.0.1",
			Port:                 8420,
			CORSOrigins:          []string{"*"},
			WebhookRatePerMinute: 120,
		},
		Database: DatabaseConfig{
			Dir: GitquestHome(),
		},
		Engagement: EngagementConfig{
			UTCOffset:        "+07:00",
			DailyChallenges:  3,
			WeeklyChallenges: 1,
			ClaimedLimit:     20,
			HistoryLimit:     20,
		},
		Throttle: ThrottleConfig{
			Backend:                  "memory",
			AchievementCheckInterval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads $GITQUEST_HOME/config.toml over the defaults, then
// applies GITQUEST_* environment overrides. A .env file in the working
// directory is loaded first when present, so it may also set GITQUEST_HOME.
func LoadConfig() (Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	cfg := DefaultConfig()
	path := ConfigPath()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the daemon cannot start with.
func (c Config) Validate() error {
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api port %d", c.API.Port)
	}
	if c.API.WebhookRatePerMinute < 0 {
		return fmt.Errorf("webhook_rate_per_minute must not be negative")
	}
	switch c.Throttle.Backend {
	case "memory":
	case "redis":
		if c.Throttle.RedisAddr == "" {
			return fmt.Errorf("throttle backend redis requires redis_addr")
		}
	default:
		return fmt.Errorf("unknown throttle backend %q", c.Throttle.Backend)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// SaveConfig writes the config to $GITQUEST_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// ConfigPath is the location of the TOML config file.
func ConfigPath() string {
	return filepath.Join(GitquestHome(), "config.toml")
}

// GitquestHome returns the gitquest data directory.
func GitquestHome() string {
	if env := os.Getenv("GITQUEST_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".gitquest")
}
