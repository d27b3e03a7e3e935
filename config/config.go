// Package config loads the dashboard configuration file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Http struct {
		Port           int   `yaml:"port"`
		MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	} `yaml:"http"`
	Backend struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"backend"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"log"`
	Session struct {
		MaxSessions int           `yaml:"max_sessions"`
		TTL         time.Duration `yaml:"ttl"`
	} `yaml:"session"`
	Monitor struct {
		HealthInterval time.Duration `yaml:"health_interval"`
	} `yaml:"monitor"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var c Config
	c.Http.Port = 8501
	c.Http.MaxUploadBytes = 1 << 20
	c.Backend.BaseURL = "http://localhost:8000"
	c.Log.Level = "info"
	c.Log.File = "logs/dashboard.log"
	c.Log.MaxSizeMB = 10
	c.Log.MaxBackups = 5
	c.Log.MaxAgeDays = 30
	c.Log.Compress = true
	c.Session.MaxSessions = 1024
	c.Session.TTL = time.Hour
	c.Monitor.HealthInterval = 15 * time.Second
	return &c
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	config := Default()

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("invalid http.port %d", c.Http.Port)
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend.base_url %q", c.Backend.BaseURL)
	}
	if c.Backend.Timeout < 0 {
		return errors.New("backend.timeout must not be negative")
	}
	if c.Session.MaxSessions <= 0 {
		return errors.New("session.max_sessions must be positive")
	}
	if c.Monitor.HealthInterval <= 0 {
		return errors.New("monitor.health_interval must be positive")
	}
	return nil
}
