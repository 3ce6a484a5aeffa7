package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crate/crate-go/client"
)

// profile is the YAML shape of a stored connection, for clusters used
// often enough that repeating --servers gets old. Durations are written
// as strings like "30s" or "1m".
type profile struct {
	Servers       []string `yaml:"servers"`
	Scheme        string   `yaml:"scheme"`
	Timeout       string   `yaml:"timeout"`
	RetryInterval string   `yaml:"retry_interval"`
	ErrorTrace    bool     `yaml:"error_trace"`
	LogLevel      string   `yaml:"log_level"`
	LogFormat     string   `yaml:"log_format"`
}

// applyProfile overlays the profile at path onto cfg. Only fields the
// profile actually sets are copied, so environment values survive.
func applyProfile(cfg *client.Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var p profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if len(p.Servers) > 0 {
		cfg.Servers = p.Servers
	}
	if p.Scheme != "" {
		cfg.Scheme = p.Scheme
	}
	if p.Timeout != "" {
		timeout, err := time.ParseDuration(p.Timeout)
		if err != nil {
			return fmt.Errorf("parse timeout %q: %w", p.Timeout, err)
		}
		cfg.Timeout = timeout
	}
	if p.RetryInterval != "" {
		interval, err := time.ParseDuration(p.RetryInterval)
		if err != nil {
			return fmt.Errorf("parse retry_interval %q: %w", p.RetryInterval, err)
		}
		cfg.RetryInterval = interval
	}
	if p.ErrorTrace {
		cfg.ErrorTrace = true
	}
	if p.LogLevel != "" {
		cfg.LogLevel = p.LogLevel
	}
	if p.LogFormat != "" {
		cfg.LogFormat = p.LogFormat
	}
	return nil
}
