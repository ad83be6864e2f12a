// Package config loads service configuration from an optional YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	yaml "gopkg.in/yaml.v3"

	"pdpnav/internal/model"
)

type Search struct {
	Seed            int64         `yaml:"seed"`
	TimeBudget      time.Duration `yaml:"timeBudget"`
	IterationsLimit int           `yaml:"iterationsLimit"`
	UnimprovedLimit int           `yaml:"unimprovedLimit"`
	InitialTemp     float64       `yaml:"initialTemp"`
	Cooling         float64       `yaml:"cooling"`
}

type Config struct {
	Addr         string      `yaml:"addr"`
	DatabaseURL  string      `yaml:"databaseUrl"`
	RedisURL     string      `yaml:"redisUrl"`
	Units        model.Units `yaml:"units"`
	PoolSize     int         `yaml:"poolSize"`
	Search       Search      `yaml:"search"`
	HeartbeatRPS float64     `yaml:"heartbeatRps"`
	PushAttempts int         `yaml:"pushAttempts"`
}

func Default() Config {
	return Config{
		Addr:         ":8080",
		Units:        model.DefaultUnits(),
		PoolSize:     2,
		HeartbeatRPS: 20,
		PushAttempts: 10,
		Search: Search{
			UnimprovedLimit: 2000,
			Cooling:         0.995,
		},
	}
}

// Load reads the YAML file at path when it exists, then applies environment
// overrides. An empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Addr = ":" + v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PoolSize = n
		}
	}
	if v := os.Getenv("SEARCH_TIME_BUDGET"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Search.TimeBudget = d
		}
	}
	if v := os.Getenv("PUSH_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PushAttempts = n
		}
	}
	return cfg, nil
}
