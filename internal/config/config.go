package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds everything the coordination core reads from the
// environment. Parsed with github.com/caarlos0/env struct tags.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`

	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// How often the session creator re-reads the row while waiting for
	// an opponent, as a safety net under the push subscription.
	LobbyPollSeconds int `env:"LOBBY_POLL_SECONDS" envDefault:"5"`

	BattleDurationSeconds int `env:"BATTLE_DURATION_SECONDS" envDefault:"60"`
}

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.LobbyPollSeconds < 1 {
		return fmt.Errorf("invalid LOBBY_POLL_SECONDS: %d (must be at least 1)", c.LobbyPollSeconds)
	}
	if c.BattleDurationSeconds < 1 {
		return fmt.Errorf("invalid BATTLE_DURATION_SECONDS: %d (must be at least 1)", c.BattleDurationSeconds)
	}
	return nil
}
