package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

const envLogLevel = "COOPCTL_LOG_LEVEL"

// Config is the resolved coopctl configuration.
type Config struct {
	LogLevel         zerolog.Level
	Workers          int
	RetryCeiling     int
	HistoryCapacity  int
	MetricsAddr      string
	MetricsNamespace string
	PollInterval     time.Duration
}

func defaultConfig() Config {
	return Config{
		LogLevel:         zerolog.InfoLevel,
		Workers:          4,
		HistoryCapacity:  100,
		MetricsNamespace: "cooprunner",
		PollInterval:     time.Second,
	}
}

type fileConfig struct {
	LogLevel         string `toml:"log_level"`
	Workers          int    `toml:"workers"`
	RetryCeiling     int    `toml:"retry_ceiling"`
	HistoryCapacity  int    `toml:"history_capacity"`
	MetricsAddr      string `toml:"metrics_addr"`
	MetricsNamespace string `toml:"metrics_namespace"`
	PollInterval     string `toml:"poll_interval"`
}

// loadConfig starts from the defaults, applies the TOML file at path when
// one is given, then the environment.
func loadConfig(path string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		var raw fileConfig
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return Config{}, fmt.Errorf("load coopctl config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("load coopctl config: unknown key %q", undecoded[0].String())
		}

		if meta.IsDefined("log_level") {
			level, err := parseLevel(raw.LogLevel)
			if err != nil {
				return Config{}, err
			}
			cfg.LogLevel = level
		}

		if meta.IsDefined("workers") {
			if raw.Workers <= 0 {
				return Config{}, fmt.Errorf("workers must be positive, got %d", raw.Workers)
			}
			cfg.Workers = raw.Workers
		}

		if meta.IsDefined("retry_ceiling") {
			if raw.RetryCeiling < 0 {
				return Config{}, fmt.Errorf("retry_ceiling must not be negative, got %d", raw.RetryCeiling)
			}
			cfg.RetryCeiling = raw.RetryCeiling
		}

		if meta.IsDefined("history_capacity") {
			cfg.HistoryCapacity = raw.HistoryCapacity
		}

		if meta.IsDefined("metrics_addr") {
			cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
		}

		if meta.IsDefined("metrics_namespace") {
			if ns := strings.TrimSpace(raw.MetricsNamespace); ns != "" {
				cfg.MetricsNamespace = ns
			}
		}

		if meta.IsDefined("poll_interval") {
			d, err := time.ParseDuration(strings.TrimSpace(raw.PollInterval))
			if err != nil {
				return Config{}, fmt.Errorf("parse poll_interval: %w", err)
			}
			cfg.PollInterval = d
		}
	}

	if getenv != nil {
		if v := strings.TrimSpace(getenv(envLogLevel)); v != "" {
			level, err := parseLevel(v)
			if err != nil {
				return Config{}, fmt.Errorf("%s: %w", envLogLevel, err)
			}
			cfg.LogLevel = level
		}
	}

	return cfg, nil
}

func parseLevel(s string) (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("parse log level: %w", err)
	}
	return level, nil
}
