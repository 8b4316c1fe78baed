package server

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	Port           string        `env:"PORT" envDefault:"8080"`
	DBPath         string        `env:"DB_PATH" envDefault:"data/dmscreen.db"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	JWTSecret      string        `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"24h"`
}

// LoadConfig builds a Config instance from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
