package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Fallback backend. Empty means only the primary backend is usable.
	GeminiAPIKey string `env:"GEMINI_API_KEY"`

	DatabaseURL string `env:"DATABASE_URL" envDefault:"chat_client.db"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"INFO"`

	PrimaryBaseURL string `env:"PRIMARY_BASE_URL" envDefault:"https://api.poe.com/v1"`
	UsageURL       string `env:"USAGE_URL" envDefault:"https://api.poe.com/usage/points_history"`

	// Optional YAML file replacing the built-in model catalog.
	ModelsFile string `env:"MODELS_FILE"`

	UsageDelay     time.Duration `env:"USAGE_DELAY" envDefault:"2s"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	// Per-value limit of the state store, mirrors a browser storage quota.
	MaxStateBytes int `env:"MAX_STATE_BYTES" envDefault:"5242880"`

	DefaultLanguage      string `env:"DEFAULT_LANGUAGE" envDefault:"zh-TW"`
	UtilityModel         string `env:"UTILITY_MODEL" envDefault:"Gemini-3-Flash"`
	FallbackUtilityModel string `env:"FALLBACK_UTILITY_MODEL" envDefault:"gemini-3-flash-preview"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil { // Load .env file if it exists
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Debug() bool {
	return c.LogLevel == "DEBUG"
}
