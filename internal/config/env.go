package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// CLIConfig configures the offline scorectl tool.
type CLIConfig struct {
	Store      string `env:"MJSCORE_STORE" envDefault:"sqlite"`
	SQLitePath string `env:"MJSCORE_SQLITE_PATH" envDefault:"mjscore.db"`
	RedisURL   string `env:"MJSCORE_REDIS_URL"`
	Table      string `env:"MJSCORE_TABLE" envDefault:"default"`
	TableFile  string `env:"MJSCORE_TABLE_CONFIG"`
	LogLevel   string `env:"MJSCORE_LOG_LEVEL" envDefault:"warn"`
}

const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// LoadCLIConfig reads optional .env files and then the process environment.
// Variables already set in the environment win over .env values.
func LoadCLIConfig(dotenvFiles ...string) (CLIConfig, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return CLIConfig{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var c CLIConfig
	if err := env.Parse(&c); err != nil {
		return CLIConfig{}, fmt.Errorf("parse env: %w", err)
	}
	switch c.Store {
	case StoreSQLite:
	case StoreRedis:
		if c.RedisURL == "" {
			return CLIConfig{}, fmt.Errorf("MJSCORE_REDIS_URL is required for the redis store")
		}
	default:
		return CLIConfig{}, fmt.Errorf("unknown store %q", c.Store)
	}
	return c, nil
}
