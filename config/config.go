// Package config holds the application configuration read from a YAML file.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen   string         `yaml:"listen" json:"listen"`
	Database string         `yaml:"database" json:"database"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Session  SessionConfig  `yaml:"session" json:"session"`
	Export   ExportConfig   `yaml:"export" json:"export"`
	Packages PackagesConfig `yaml:"packages" json:"packages"`
}

type LoggingConfig struct {
	Level string `yaml:"level" json:"level"` // debug, info, warn, error
}

type SessionConfig struct {
	Lifetime string `yaml:"lifetime" json:"lifetime"` // time.ParseDuration syntax
}

type ExportConfig struct {
	Encoding string `yaml:"encoding" json:"encoding"`
}

type PackagesConfig struct {
	// Path overrides the packagePath preference when set.
	Path string `yaml:"path" json:"path"`
}

// SessionLifetime returns the parsed session lifetime, falling back to the
// default for empty or invalid values.
func (c Config) SessionLifetime() time.Duration {
	d, err := time.ParseDuration(c.Session.Lifetime)
	if err != nil || d <= 0 {
		return defaultSessionLifetime
	}
	return d
}

const (
	DefaultPath            = "./braintacle.yaml"
	defaultSessionLifetime = 8 * time.Hour
)

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Listen:   ":8080",
		Database: "./braintacle.db",
		Logging:  LoggingConfig{Level: "info"},
		Session:  SessionConfig{Lifetime: defaultSessionLifetime.String()},
		Export:   ExportConfig{Encoding: "utf-8"},
	}
}

var (
	cfg = Default()
	mu  sync.RWMutex
)

// LoadConfig reads path, fills unset fields with defaults, applies
// environment overrides and makes the result the current configuration.
// A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	mu.Lock()
	defer mu.Unlock()

	loaded := Default()
	file, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(file, &loaded); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	loaded.applyDefaults()
	loaded.applyEnvOverrides()
	cfg = loaded
	return cfg, nil
}

// SaveConfig writes newCfg to path and makes it the current configuration.
func SaveConfig(path string, newCfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	newCfg.applyDefaults()
	file, err := yaml.Marshal(newCfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, file, 0600); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	cfg = newCfg
	return nil
}

func GetConfig() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Database == "" {
		c.Database = d.Database
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Session.Lifetime == "" {
		c.Session.Lifetime = d.Session.Lifetime
	}
	if c.Export.Encoding == "" {
		c.Export.Encoding = d.Export.Encoding
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BRAINTACLE_DATABASE"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("BRAINTACLE_LISTEN"); v != "" {
		c.Listen = v
	}
}
