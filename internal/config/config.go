package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v8"
)

type Config struct {
	// HTTP Server
	Port               string        `env:"PORT" envDefault:"8081"`
	RateLimitPerMinute int           `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
	SessionTTL         time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	SessionCapacity    int           `env:"SESSION_CAPACITY" envDefault:"1000"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`

	// Backend selection
	DataBackend string `env:"DATA_BACKEND" envDefault:"memory"`

	// Storage
	SQLiteDBPath   string `env:"SQLITE_DB_PATH" envDefault:"./data/depenses.db"`
	MongoURI       string `env:"MONGODB_URI"`
	MongoDatabase  string `env:"MONGODB_DB" envDefault:"depenses"`
	MemorySeedFile string `env:"MEMORY_SEED_FILE" envDefault:"./data/seed.json"`

	// AMQP
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"depenses"`
	AMQPQueue    string `env:"AMQP_QUEUE" envDefault:"sync_expenses"`

	// Google Sheets export
	GoogleSpreadsheetID   string `env:"GOOGLE_SPREADSHEET_ID"`
	GoogleSheetName       string `env:"GOOGLE_SHEET_NAME" envDefault:"Expenses"`
	GoogleCredentialsFile string `env:"GOOGLE_CREDENTIALS_FILE"`
	GoogleCredentialsJSON string `env:"GOOGLE_CREDENTIALS_JSON"`

	// Worker
	SyncInterval time.Duration `env:"SYNC_INTERVAL" envDefault:"10m"`

	// Heartbeat
	HeartbeatEnabled         bool   `env:"HEARTBEAT_ENABLED" envDefault:"false"`
	HeartbeatIntervalMinutes int    `env:"HEARTBEAT_INTERVAL_MINUTES" envDefault:"10"`
	AppURL                   string `env:"APP_URL"`
}

var validBackends = []string{"memory", "sqlite", "mongo"}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.DataBackend = strings.ToLower(strings.TrimSpace(cfg.DataBackend))
	return cfg, nil
}

// HeartbeatInterval converts the configured minutes to a duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMinutes) * time.Minute
}

// SlogLevel maps LOG_LEVEL to a slog level. Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "mongo":
		if c.MongoURI == "" {
			errors = append(errors, "MONGODB_URI is required when using mongo backend")
		} else if u, err := url.Parse(c.MongoURI); err != nil {
			errors = append(errors, fmt.Sprintf("invalid MongoDB URI: %v", err))
		} else if u.Scheme != "mongodb" && u.Scheme != "mongodb+srv" {
			errors = append(errors, fmt.Sprintf("invalid MongoDB URI scheme '%s': must be 'mongodb' or 'mongodb+srv'", u.Scheme))
		}
		if c.MongoDatabase == "" {
			errors = append(errors, "MONGODB_DB cannot be empty when using mongo backend")
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleCredentialsFile != "" {
		if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
		}
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if c.HeartbeatEnabled {
		if c.HeartbeatIntervalMinutes < 1 {
			errors = append(errors, fmt.Sprintf("invalid heartbeat interval %d: must be at least 1 minute", c.HeartbeatIntervalMinutes))
		}
		if u, err := url.Parse(c.AppURL); c.AppURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid APP_URL '%s': an http(s) URL is required when the heartbeat is enabled", c.AppURL))
		}
	}

	if c.RateLimitPerMinute < 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must not be negative", c.RateLimitPerMinute))
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}
	if c.SessionCapacity < 1 {
		errors = append(errors, fmt.Sprintf("invalid session capacity %d: must be at least 1", c.SessionCapacity))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}
