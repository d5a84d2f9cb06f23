// Package config loads this service's configuration: env vars with an
// optional YAML file layered on top for the listen address, price areas,
// worker cadence and outbox retry policy (YAML over env, env over hardcoded
// defaults).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// WorkerConfig carries one worker's cycle interval and batch size.
type WorkerConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

// OutboxConfig extends WorkerConfig with the dispatch retry policy.
type OutboxConfig struct {
	WorkerConfig `yaml:",inline"`
	MaxRetries   int           `yaml:"max_retries"`
	BaseDelay    time.Duration `yaml:"base_delay"`
}

// Config is the full process configuration.
type Config struct {
	DatabaseURL string `yaml:"-"`
	HTTPAddr    string `yaml:"http_addr"`
	JWTSecret   string `yaml:"-"`

	PriceAreas []string `yaml:"price_areas"`

	InboxWorker      WorkerConfig `yaml:"inbox_worker"`
	SettlementWorker WorkerConfig `yaml:"settlement_worker"`
	OutboxWorker     OutboxConfig `yaml:"outbox_worker"`
	SpotIngester     WorkerConfig `yaml:"spot_ingester"`
}

// Load builds a Config from environment variables, with an optional YAML
// file (path from SETTLEMENT_CONFIG) layered on top for the fields that
// support it. It reads no message-hub client credentials; main.go always
// runs the outbox dispatcher and the spot price fetcher in simulation mode.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL: getenvDefault("DATABASE_URL", ""),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:   getenvDefault("AUTH_JWT_SECRET", ""),
		PriceAreas:  splitCSV(getenvDefault("PRICE_AREAS", "DK1,DK2")),
		InboxWorker: WorkerConfig{
			Interval:  getenvDurationDefault("INBOX_INTERVAL", 10*time.Second),
			BatchSize: getenvIntDefault("INBOX_BATCH_SIZE", 10),
		},
		SettlementWorker: WorkerConfig{
			Interval:  getenvDurationDefault("SETTLEMENT_INTERVAL", 30*time.Second),
			BatchSize: getenvIntDefault("SETTLEMENT_BATCH_SIZE", 10),
		},
		OutboxWorker: OutboxConfig{
			WorkerConfig: WorkerConfig{
				Interval:  getenvDurationDefault("OUTBOX_INTERVAL", 10*time.Second),
				BatchSize: getenvIntDefault("OUTBOX_BATCH_SIZE", 20),
			},
			MaxRetries: getenvIntDefault("OUTBOX_MAX_RETRIES", 8),
			BaseDelay:  getenvDurationDefault("OUTBOX_BASE_DELAY", 30*time.Second),
		},
		SpotIngester: WorkerConfig{
			Interval: getenvDurationDefault("SPOT_INGESTER_INTERVAL", time.Hour),
		},
	}

	if path := os.Getenv("SETTLEMENT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = getenvDefault("PG_DSN", "")
	}

	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDurationDefault(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var out []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
