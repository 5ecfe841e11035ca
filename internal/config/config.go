// Package config loads service settings from .env, an optional YAML file, and the environment.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"databaseUrl"`
	RedisURL    string `yaml:"redisUrl"`

	RateRPS   float64 `yaml:"rateRps"`
	RateBurst int     `yaml:"rateBurst"`

	Webhook   WebhookConfig   `yaml:"webhook"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
}

type WebhookConfig struct {
	URL         string `yaml:"url"`
	Secret      string `yaml:"secret"`
	MaxAttempts int    `yaml:"maxAttempts"`
}

type OptimizerConfig struct {
	TwoOptMaxSweeps int           `yaml:"twoOptMaxSweeps"`
	RunTimeout      time.Duration `yaml:"runTimeout"`
	MaxDeliveries   int           `yaml:"maxDeliveries"`
	MaxDrivers      int           `yaml:"maxDrivers"`
	// MaxCoordinate bounds |x| and |y| of every delivery and sampling box.
	MaxCoordinate int `yaml:"maxCoordinate"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Port:      "8080",
		RateRPS:   20,
		RateBurst: 40,
		Webhook:   WebhookConfig{MaxAttempts: 5},
		Optimizer: OptimizerConfig{
			TwoOptMaxSweeps: 10000,
			RunTimeout:      60 * time.Second,
			MaxDeliveries:   5000,
			MaxDrivers:      500,
			MaxCoordinate:   1_000_000,
		},
	}
}

// Load layers defaults, CONFIG_FILE (YAML) and environment variables, in that order.
// A .env file in the working directory is read first when present.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.Webhook.URL = getEnv("WEBHOOK_URL", c.Webhook.URL)
	c.Webhook.Secret = getEnv("WEBHOOK_SECRET", c.Webhook.Secret)

	var err error
	if c.RateRPS, err = envFloat("RATE_RPS", c.RateRPS); err != nil {
		return err
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"RATE_BURST", &c.RateBurst},
		{"WEBHOOK_MAX_ATTEMPTS", &c.Webhook.MaxAttempts},
		{"TWO_OPT_MAX_SWEEPS", &c.Optimizer.TwoOptMaxSweeps},
		{"MAX_DELIVERIES", &c.Optimizer.MaxDeliveries},
		{"MAX_DRIVERS", &c.Optimizer.MaxDrivers},
		{"MAX_COORDINATE", &c.Optimizer.MaxCoordinate},
	}
	for _, f := range ints {
		if *f.dst, err = envInt(f.key, *f.dst); err != nil {
			return err
		}
	}
	if v := os.Getenv("RUN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: RUN_TIMEOUT: %w", err)
		}
		c.Optimizer.RunTimeout = d
	}
	return nil
}

func (c Config) Validate() error {
	switch {
	case c.Port == "":
		return fmt.Errorf("config: port is required")
	case c.RateRPS < 0 || c.RateBurst < 0:
		return fmt.Errorf("config: rate limits must be >= 0")
	case c.Optimizer.TwoOptMaxSweeps <= 0:
		return fmt.Errorf("config: twoOptMaxSweeps must be > 0")
	case c.Optimizer.MaxDeliveries <= 0 || c.Optimizer.MaxDrivers <= 0:
		return fmt.Errorf("config: maxDeliveries and maxDrivers must be > 0")
	case c.Optimizer.MaxCoordinate <= 0:
		return fmt.Errorf("config: maxCoordinate must be > 0")
	case c.Optimizer.RunTimeout <= 0:
		return fmt.Errorf("config: runTimeout must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}
