// Package config loads the service configuration: an optional YAML file with
// environment variables layered on top.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved service configuration.
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	LogLevel    string `yaml:"log_level"`
	DatabaseURL string `yaml:"database_url"`

	Worker WorkerConfig `yaml:"worker"`
}

type WorkerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxRuntime   time.Duration `yaml:"max_runtime"`
}

func Default() Config {
	return Config{
		HTTPAddr: ":8081",
		LogLevel: "info",
		Worker: WorkerConfig{
			Enabled:      true,
			PollInterval: 400 * time.Millisecond,
			MaxRuntime:   30 * time.Second,
		},
	}
}

// Load reads path (skipped when empty) over the defaults and then applies
// environment overrides. Unknown YAML keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("HTTP_ADDR", &c.HTTPAddr)
	str("LOG_LEVEL", &c.LogLevel)
	str("DATABASE_URL", &c.DatabaseURL)
	if err := dur("LLD_POLL_INTERVAL", &c.Worker.PollInterval); err != nil {
		return err
	}
	if err := dur("LLD_MAX_RUNTIME", &c.Worker.MaxRuntime); err != nil {
		return err
	}
	if v, ok := lookup("LLD_WORKER_ENABLED"); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("LLD_WORKER_ENABLED: %w", err)
		}
		c.Worker.Enabled = b
	}
	return nil
}

func (c Config) validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr must not be empty")
	}
	if c.Worker.PollInterval < 0 || c.Worker.MaxRuntime < 0 {
		return fmt.Errorf("worker durations must not be negative")
	}
	return nil
}
