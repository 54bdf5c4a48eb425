package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/flor3z/noko-bot/internal/arena"
)

// State backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds all configuration values for the bot
type Config struct {
	// Discord
	DiscordToken         string   `env:"DISCORD_BOT_TOKEN"`
	DiscordApplicationID string   `env:"DISCORD_APPLICATION_ID"`
	GuildID              string   `env:"DISCORD_GUILD_ID"`
	ArenaChannelID       string   `env:"ARENA_CHANNEL_ID"`
	AdminUserIDs         []string `env:"ADMIN_USER_IDS" envSeparator:","`
	BotName              string   `env:"BOT_NAME" envDefault:"Noko"`

	// Trakt API
	TraktClientID     string `env:"TRAKT_CLIENT_ID"`
	TraktClientSecret string `env:"TRAKT_CLIENT_SECRET"`
	TraktRedirectURI  string `env:"TRAKT_REDIRECT_URI" envDefault:"urn:ietf:wg:oauth:2.0:oob"`
	TraktBaseURL      string `env:"TRAKT_BASE_URL" envDefault:"https://api.trakt.tv"`
	TraktAuthURL      string `env:"TRAKT_AUTH_URL" envDefault:"https://api.trakt.tv/oauth"`

	// Storage
	DatabasePath  string `env:"DATABASE_PATH" envDefault:"./data/noko.db"`
	StateBackend  string `env:"STATE_BACKEND" envDefault:"sqlite"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisStateKey string `env:"REDIS_STATE_KEY" envDefault:"noko:arena:state"`

	// Arena
	RotationInterval      time.Duration `env:"ROTATION_INTERVAL" envDefault:"1m"`
	ChallengeDuration     time.Duration `env:"CHALLENGE_DURATION" envDefault:"24h"`
	WeekLength            time.Duration `env:"WEEK_LENGTH" envDefault:"168h"`
	HistoryLimit          int           `env:"HISTORY_LIMIT" envDefault:"50"`
	CompletedHistoryLimit int           `env:"COMPLETED_HISTORY_LIMIT" envDefault:"50"`
	ValidationTimeout     time.Duration `env:"VALIDATION_TIMEOUT" envDefault:"15s"`
	CatalogPath           string        `env:"CATALOG_PATH"`

	// HTTP API and telemetry
	HTTPAddr            string `env:"HTTP_ADDR" envDefault:":8080"`
	OTELEndpoint        string `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
	OTELMetricsEndpoint string `env:"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	return Parse()
}

// Parse reads configuration from the process environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.StateBackend = strings.ToLower(strings.TrimSpace(cfg.StateBackend))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}
	if c.TraktClientID == "" {
		return fmt.Errorf("TRAKT_CLIENT_ID is required")
	}
	if c.TraktClientSecret == "" {
		return fmt.Errorf("TRAKT_CLIENT_SECRET is required")
	}
	switch c.StateBackend {
	case BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("STATE_BACKEND must be %q or %q, got %q", BackendSQLite, BackendRedis, c.StateBackend)
	}
	if c.RotationInterval <= 0 {
		return fmt.Errorf("ROTATION_INTERVAL must be positive")
	}
	if c.ChallengeDuration <= 0 || c.WeekLength <= 0 {
		return fmt.Errorf("CHALLENGE_DURATION and WEEK_LENGTH must be positive")
	}
	if c.HistoryLimit <= 0 || c.HistoryLimit > 100 {
		return fmt.Errorf("HISTORY_LIMIT must be between 1 and 100")
	}
	return nil
}

// ArenaOptions returns the arena timing and limits.
func (c *Config) ArenaOptions() arena.Options {
	return arena.Options{
		ChallengeDuration:     c.ChallengeDuration,
		WeekLength:            c.WeekLength,
		CompletedHistoryLimit: c.CompletedHistoryLimit,
		HistoryLimit:          c.HistoryLimit,
		ValidationTimeout:     c.ValidationTimeout,
	}
}

// IsAdmin reports whether userID is listed in ADMIN_USER_IDS.
func (c *Config) IsAdmin(userID string) bool {
	for _, id := range c.AdminUserIDs {
		if strings.TrimSpace(id) == userID {
			return true
		}
	}
	return false
}
