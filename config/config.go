// Package config loads the core's environment-driven configuration
// (spec §6): Speed, Source, InitialBalance and Account.Descriptor.
//
// Grounding: the Load-with-defaults shape and the getEnv*/default-value
// helpers are the teacher's internal/config.Load (internal/config/config.go),
// trimmed to the keys spec §6 actually names.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Config is the core's environment-driven configuration.
type Config struct {
	// Speed is the simulator's tick interval (spec §6, default 100ms).
	Speed time.Duration

	// Source is the directory of per-instrument tick files.
	Source string

	// InitialBalance seeds Account.Balance.
	InitialBalance decimal.Decimal

	// AccountDescriptor is passed through to live brokers.
	AccountDescriptor string
}

// Load reads a .env file if present (missing is not an error, mirroring
// godotenv.Load's typical non-fatal use in the teacher's entrypoints),
// then builds a Config from the environment with spec-mandated defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded, using process environment")
	}

	return &Config{
		Speed:             envDuration("SPEED", 100*time.Millisecond),
		Source:            envString("SOURCE", "data/ticks"),
		InitialBalance:    envDecimal("INITIAL_BALANCE", decimal.NewFromInt(100000)),
		AccountDescriptor: envString("ACCOUNT_DESCRIPTOR", "sim-1"),
	}, nil
}

func envString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func envDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func envDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return defaultValue
}
