// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Database DatabaseConfig          `yaml:"database"`
	Auth     AuthConfig              `yaml:"auth"`
	Redis    RedisConfig             `yaml:"redis"`
	Player   PlayerConfig            `yaml:"player"`
	Filters  map[string]FilterConfig `yaml:"filters"`
	Messages MessagesConfig          `yaml:"messages"`
	Log      LogConfig               `yaml:"log"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr" default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	TrustedProxies  []string      `yaml:"trusted_proxies" validate:"dive,ip|cidr"`
	Hooks           HooksConfig   `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// DatabaseConfig represents the SQLite database configuration.
type DatabaseConfig struct {
	Path         string        `yaml:"path" default:"melodystream.db" validate:"required"`
	MaxOpenConns int           `yaml:"max_open_conns" default:"4" validate:"gte=1"`
	MaxIdleConns int           `yaml:"max_idle_conns" default:"2" validate:"gte=0"`
	BusyTimeout  time.Duration `yaml:"busy_timeout" default:"5s"`
}

// AuthConfig represents authentication configuration.
type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret" validate:"required,min=16"`
	TokenTTL   time.Duration `yaml:"token_ttl" default:"24h"`
	AdminToken string        `yaml:"admin_token"`
	// Login attempts per client IP
	LoginRatePerMinute int `yaml:"login_rate_per_minute" default:"10" validate:"gte=1"`
	LoginBurst         int `yaml:"login_burst" default:"5" validate:"gte=1"`
}

// RedisConfig represents the like status cache configuration.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr" default:"localhost:6379"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	TTL      time.Duration `yaml:"ttl" default:"10m"`
}

// PlayerConfig represents player session configuration.
type PlayerConfig struct {
	DefaultVolume    int           `yaml:"default_volume" default:"70" validate:"gte=0,lte=100"`
	EventBuffer      int           `yaml:"event_buffer" default:"64" validate:"gte=1"`
	StoreTimeout     time.Duration `yaml:"store_timeout" default:"10s"`
	CommandRate      float64       `yaml:"command_rate" default:"20" validate:"gt=0"`
	CommandBurst     int           `yaml:"command_burst" default:"40" validate:"gte=1"`
	IdleTimeout      time.Duration `yaml:"idle_timeout" default:"5m"`
	BroadcastTimeout time.Duration `yaml:"broadcast_timeout" default:"2s"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MessagesConfig represents user-facing messages.
type MessagesConfig struct {
	Success              string `yaml:"success" default:"Song added to playlist"`
	DefaultError         string `yaml:"default_error" default:"The song could not be added"`
	NotPlaylistOwner     string `yaml:"not_playlist_owner" default:"Only the playlist owner can add songs"`
	DuplicateSong        string `yaml:"duplicate_song" default:"This song is already in the playlist"`
	PlaylistFull         string `yaml:"playlist_full" default:"This playlist is full"`
	SongDurationExceeded string `yaml:"song_duration_exceeded" default:"This song is too long for the playlist"`
	SongNotFound         string `yaml:"song_not_found" default:"Song not found"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	Output     string `yaml:"output" default:"stdout" validate:"oneof=stdout stderr file"`
	File       string `yaml:"file" validate:"required_if=Output file"`
	MaxSizeMB  int    `yaml:"max_size_mb" default:"100" validate:"gte=1"`
	MaxBackups int    `yaml:"max_backups" default:"5" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" default:"28" validate:"gte=0"`
	Compress   bool   `yaml:"compress"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
// An empty path yields the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	// Override with environment variables
	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// Defaults returns the default configuration without environment overrides
// or validation. Offline tools use it when no server config is at hand.
func Defaults() *Config {
	var cfg Config
	_ = defaults.Set(&cfg)
	return &cfg
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() error {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Auth.AdminToken = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return errors.Wrapf(err, "invalid PORT %q", v)
		}
		c.Server.Addr = ":" + v
	}
	return nil
}

// GetMessage returns the message for the given code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "success":
		return c.Messages.Success
	case "not_playlist_owner":
		return c.Messages.NotPlaylistOwner
	case "duplicate_song":
		return c.Messages.DuplicateSong
	case "playlist_full":
		return c.Messages.PlaylistFull
	case "song_duration_exceeded":
		return c.Messages.SongDurationExceeded
	case "song_not_found":
		return c.Messages.SongNotFound
	default:
		return c.Messages.DefaultError
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return errors.Newf("max_idle_conns (%d) cannot exceed max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// GetFilterSettings returns the settings for a filter.
func (c *Config) GetFilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}
