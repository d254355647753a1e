// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads chunkspeedd settings.
//
// Precedence: command-line flags (applied by the caller) > environment >
// YAML file > defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"code.hybscloud.com/chunkspeed"
)

// EnvConfigFile names the environment variable holding the YAML file path.
const EnvConfigFile = "CHUNKSPEED_CONFIG"

type Config struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	MetricsAddr   string        `yaml:"metrics_addr"`
	LogLevel      string        `yaml:"log_level"`
	LogFormat     string        `yaml:"log_format"`
	UploadTimeout time.Duration `yaml:"upload_timeout"`
	MaxSession    time.Duration `yaml:"max_session"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	HighWaterMark int           `yaml:"high_water_mark"`
	FragmentLimit int           `yaml:"fragment_limit"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:          5000,
		LogLevel:      "info",
		LogFormat:     "text",
		UploadTimeout: 2 * time.Minute,
		WriteTimeout:  30 * time.Second,
		HighWaterMark: 64 * 1024,
		FragmentLimit: chunkspeed.DefaultFragmentLimit,
	}
}

// Load returns defaults overlaid with the YAML file at path (if path is
// non-empty) and then with the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	c.Host = getEnv("HOST", c.Host)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	var err error
	if c.Port, err = getEnvInt("PORT", c.Port); err != nil {
		return err
	}
	if c.HighWaterMark, err = getEnvInt("HIGH_WATER_MARK", c.HighWaterMark); err != nil {
		return err
	}
	if c.FragmentLimit, err = getEnvInt("FRAGMENT_LIMIT", c.FragmentLimit); err != nil {
		return err
	}
	if c.UploadTimeout, err = getEnvDuration("UPLOAD_TIMEOUT", c.UploadTimeout); err != nil {
		return err
	}
	if c.MaxSession, err = getEnvDuration("MAX_SESSION", c.MaxSession); err != nil {
		return err
	}
	if c.WriteTimeout, err = getEnvDuration("WRITE_TIMEOUT", c.WriteTimeout); err != nil {
		return err
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: port %d out of range", c.Port))
	}
	if c.HighWaterMark < 0 {
		errs = append(errs, fmt.Errorf("config: high_water_mark must be >= 0 (got %d)", c.HighWaterMark))
	}
	if c.FragmentLimit <= 0 {
		errs = append(errs, fmt.Errorf("config: fragment_limit must be > 0 (got %d)", c.FragmentLimit))
	}
	if c.UploadTimeout < 0 || c.MaxSession < 0 || c.WriteTimeout < 0 {
		errs = append(errs, errors.New("config: timeouts must be >= 0"))
	}
	return errors.Join(errs...)
}

// Addr is the measurement listener address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Options maps the settings onto engine options.
func (c Config) Options() []chunkspeed.Option {
	return []chunkspeed.Option{
		chunkspeed.WithHighWaterMark(c.HighWaterMark),
		chunkspeed.WithFragmentLimit(c.FragmentLimit),
		chunkspeed.WithWriteTimeout(c.WriteTimeout),
		chunkspeed.WithMaxSession(c.MaxSession),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
