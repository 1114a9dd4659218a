package config

import (
	"errors"
	"fmt"
	"strings"
)

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Port string `yaml:"port" env:"BESS_HTTP_PORT"`
}

// DatabaseConfig holds Postgres settings. An empty DSN disables persistence.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"BESS_POSTGRES_DSN"`
}

// RedisConfig holds cache settings. An empty address disables caching.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"BESS_REDIS_ADDR"`
	Password string `yaml:"password" env:"BESS_REDIS_PASSWORD"`
}

// ArchiveConfig holds S3 archive settings. An empty bucket disables
// archiving of processed batches.
type ArchiveConfig struct {
	Bucket string `yaml:"bucket" env:"BESS_ARCHIVE_BUCKET"`
	Region string `yaml:"region" env:"BESS_ARCHIVE_REGION"`
	Prefix string `yaml:"prefix" env:"BESS_ARCHIVE_PREFIX"`
}

// AnalyticsConfig holds battery specifications and detection defaults.
type AnalyticsConfig struct {
	NominalCapacity float64 `yaml:"nominal_capacity" env:"BESS_NOMINAL_CAPACITY"`
	NominalVoltage  float64 `yaml:"nominal_voltage" env:"BESS_NOMINAL_VOLTAGE"`
	Contamination   float64 `yaml:"contamination" env:"BESS_CONTAMINATION"`
}

// Config defines analytics service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// Load configuration from YAML file and environment.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{Port: "8080"},
		Archive: ArchiveConfig{
			Region: "eu-central-1",
			Prefix: "processed",
		},
		Analytics: AnalyticsConfig{
			NominalCapacity: 100,
			NominalVoltage:  48,
			Contamination:   0.05,
		},
	}

	if err := hydrate(cfg); err != nil {
		return nil, err
	}

	if cfg.Analytics.NominalCapacity <= 0 {
		return nil, errors.New("config: nominal capacity must be positive")
	}
	if cfg.Analytics.Contamination < 0 || cfg.Analytics.Contamination > 0.5 {
		return nil, errors.New("config: contamination must be in [0, 0.5]")
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}
