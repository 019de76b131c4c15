package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr           string   `env:"ADDR" envDefault:":8080"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	Dev            bool     `env:"DEV" envDefault:"false"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	RoleRevealDelay time.Duration `env:"ROLE_REVEAL_DELAY" envDefault:"10s"`
	PhaseDuration   time.Duration `env:"PHASE_DURATION" envDefault:"60s"`
	// IdleTimeout closes a match nobody has been connected to for this long.
	IdleTimeout time.Duration `env:"IDLE_TIMEOUT" envDefault:"10m"`

	ChatRatePerSec float64 `env:"CHAT_RATE" envDefault:"2"`
	ChatBurst      int     `env:"CHAT_BURST" envDefault:"5"`

	// DatabaseURL enables the match archive when set.
	DatabaseURL string `env:"DATABASE_URL"`
}

const envPrefix = "SC_"

// Load reads an optional .env file and then the SC_* environment.
// Variables already set in the environment win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads the SC_* environment without touching .env.
func Parse() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.RoleRevealDelay < 0:
		return fmt.Errorf("%sROLE_REVEAL_DELAY must not be negative, got %s", envPrefix, c.RoleRevealDelay)
	case c.PhaseDuration < 0:
		return fmt.Errorf("%sPHASE_DURATION must not be negative, got %s", envPrefix, c.PhaseDuration)
	case c.IdleTimeout < 0:
		return fmt.Errorf("%sIDLE_TIMEOUT must not be negative, got %s", envPrefix, c.IdleTimeout)
	case c.ChatRatePerSec <= 0:
		return fmt.Errorf("%sCHAT_RATE must be positive, got %v", envPrefix, c.ChatRatePerSec)
	case c.ChatBurst <= 0:
		return fmt.Errorf("%sCHAT_BURST must be positive, got %d", envPrefix, c.ChatBurst)
	}
	return nil
}
