// Package server provides configuration helpers that define runtime defaults,
// validation, and environment loading for the relay.
package server

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds the server configuration settings.
type Config struct {
	Port                string        `env:"SERVER_PORT,default=:8080" validate:"required"`
	AllowedOriginsRaw   string        `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	MaxMessageSize      int64         `env:"MAX_MESSAGE_SIZE,default=16777216" validate:"gt=0"`
	SendBufferSize      int           `env:"SEND_BUFFER_SIZE,default=256" validate:"gt=0"`
	HistoryLimit        int           `env:"HISTORY_LIMIT,default=50" validate:"gt=0"`
	RoomGracePeriod     time.Duration `env:"ROOM_GRACE_PERIOD,default=5m" validate:"gt=0"`
	TrustClientIdentity bool          `env:"TRUST_CLIENT_IDENTITY,default=false"`
	LogLevel            string        `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	LogFormat           string        `env:"LOG_FORMAT,default=text" validate:"oneof=text json"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT,default=30s" validate:"gt=0"`

	// AllowedOrigins is parsed from AllowedOriginsRaw by LoadConfig. A "*"
	// entry allows every origin.
	AllowedOrigins []string
}

func defaultConfig() Config {
	return Config{
		Port:              ":8080",
		AllowedOriginsRaw: "http://localhost:8080",
		AllowedOrigins:    []string{"http://localhost:8080"},
		MaxMessageSize:    16 << 20,
		SendBufferSize:    256,
		HistoryLimit:      50,
		RoomGracePeriod:   5 * time.Minute,
		LogLevel:          "info",
		LogFormat:         "text",
		ShutdownTimeout:   30 * time.Second,
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfig reads the configuration from the environment, after loading a
// .env file from the working directory if one exists.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	cfg.AllowedOrigins = parseOrigins(cfg.AllowedOriginsRaw)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// sanitized fills zero values with defaults so hand-built configs work.
func (c Config) sanitized() Config {
	def := defaultConfig()
	if c.Port == "" {
		c.Port = def.Port
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = def.SendBufferSize
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = def.HistoryLimit
	}
	if c.RoomGracePeriod <= 0 {
		c.RoomGracePeriod = def.RoomGracePeriod
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.AllowedOrigins == nil && c.AllowedOriginsRaw != "" {
		c.AllowedOrigins = parseOrigins(c.AllowedOriginsRaw)
	}
	c.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	return c
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
