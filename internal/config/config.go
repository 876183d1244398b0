// Package config loads wspipe settings from config files, WSPIPE_* environment
// variables and command-line flags using Viper.
package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/wspipe"
	"github.com/luciancaetano/wspipe/internal/websocket"
)

// EnvPrefix is prepended to environment variable names: server.capacity is
// read from WSPIPE_SERVER_CAPACITY.
const EnvPrefix = "WSPIPE"

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Addr                 string          `mapstructure:"addr"`
	Path                 string          `mapstructure:"path"`
	Capacity             int             `mapstructure:"capacity"`
	RegistrationCapacity int             `mapstructure:"registration_capacity"`
	OutboundStrikes      int             `mapstructure:"outbound_strikes"`
	MaxMessageSize       int64           `mapstructure:"max_message_size"`
	PollInterval         time.Duration   `mapstructure:"poll_interval"`
	RateLimit            RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	MessagesPerSecond float64 `mapstructure:"messages_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type LogConfig struct {
	JSON  bool   `mapstructure:"json"`
	Level string `mapstructure:"level"`
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "127.0.0.1:3000")
	v.SetDefault("server.path", websocket.DefaultPath)
	v.SetDefault("server.capacity", 4)
	v.SetDefault("server.registration_capacity", websocket.DefaultRegistrationCapacity)
	v.SetDefault("server.outbound_strikes", websocket.DefaultOutboundStrikes)
	v.SetDefault("server.max_message_size", websocket.DefaultMaxMessageSize)
	v.SetDefault("server.poll_interval", 100*time.Millisecond)

	v.SetDefault("server.rate_limit.enabled", false)
	v.SetDefault("server.rate_limit.messages_per_second", 100)
	v.SetDefault("server.rate_limit.burst", 200)

	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
}

// NewViper returns a Viper instance with defaults and environment binding.
// If configFile is not empty it is read as well.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", configFile)
		}
	}
	return v, nil
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that websocket.Config cannot default.
func (c *Config) Validate() error {
	if c.Server.Capacity <= 0 {
		return errors.Wrapf(wspipe.ErrInvalidConfig, "server.capacity must be positive, got %d", c.Server.Capacity)
	}
	if c.Server.PollInterval <= 0 {
		return errors.Wrapf(wspipe.ErrInvalidConfig, "server.poll_interval must be positive, got %s", c.Server.PollInterval)
	}
	return nil
}

// Websocket converts the server section into a websocket.Config.
func (c *Config) Websocket(logger *zap.Logger) *websocket.Config {
	rl := websocket.NoRateLimit()
	if c.Server.RateLimit.Enabled {
		rl = &websocket.RateLimitConfig{
			MessagesPerSecond: rate.Limit(c.Server.RateLimit.MessagesPerSecond),
			Burst:             c.Server.RateLimit.Burst,
			Enabled:           true,
		}
	}

	return &websocket.Config{
		Addr:                 c.Server.Addr,
		Path:                 c.Server.Path,
		Capacity:             c.Server.Capacity,
		RegistrationCapacity: c.Server.RegistrationCapacity,
		OutboundStrikes:      c.Server.OutboundStrikes,
		MaxMessageSize:       c.Server.MaxMessageSize,
		RateLimitConfig:      rl,
		Logger:               logger,
	}
}
