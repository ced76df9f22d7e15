// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the mend service configuration with priority:
// environment > file > defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all mend configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	// Episode contains episode loop settings.
	Episode EpisodeConfig `json:"episode" yaml:"episode"`

	// Policy contains decision pipeline settings.
	Policy PolicyConfig `json:"policy" yaml:"policy"`

	// Sandbox contains per-unit isolation settings.
	Sandbox SandboxConfig `json:"sandbox" yaml:"sandbox"`

	// Observability contains logging and exporter settings.
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// EpisodeConfig contains episode loop settings.
type EpisodeConfig struct {
	// Length is the fixed per-episode step cap.
	Length int `json:"length" yaml:"length"`

	// MaxWorkers bounds the parallel fan-out width.
	MaxWorkers int `json:"max_workers" yaml:"max_workers"`

	// UnitTimeout bounds each (symbol, tool) extraction unit.
	UnitTimeout time.Duration `json:"unit_timeout" yaml:"unit_timeout"`
}

// PolicyConfig contains decision pipeline settings.
type PolicyConfig struct {
	// Backend selects the completion backend: "openai" or "local".
	Backend string `json:"backend" yaml:"backend"`

	// Model names the completion model for the openai backend.
	Model string `json:"model" yaml:"model"`

	// CompletionTimeout bounds each completion call.
	CompletionTimeout time.Duration `json:"completion_timeout" yaml:"completion_timeout"`

	// RateLimit throttles completion calls per second; 0 disables.
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit"`

	// RateBurst is the limiter burst when RateLimit is set.
	RateBurst int `json:"rate_burst" yaml:"rate_burst"`

	// MaxTokens caps completion length.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// Temperature controls sampling.
	Temperature float32 `json:"temperature" yaml:"temperature"`
}

// SandboxConfig contains per-unit isolation settings.
type SandboxConfig struct {
	// MaxFileSize caps bytes read from any single file; 0 means unlimited.
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// MaxWallClock caps a unit's wall-clock time; 0 means unlimited.
	MaxWallClock time.Duration `json:"max_wall_clock" yaml:"max_wall_clock"`
}

// ObservabilityConfig contains logging and exporter settings.
type ObservabilityConfig struct {
	LogLevel       string `json:"log_level" yaml:"log_level"`
	LogFormat      string `json:"log_format" yaml:"log_format"`
	TraceExporter  string `json:"trace_exporter" yaml:"trace_exporter"`
	MetricExporter string `json:"metric_exporter" yaml:"metric_exporter"`
	PrometheusPort int    `json:"prometheus_port" yaml:"prometheus_port"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Episode: EpisodeConfig{
			Length:      8,
			MaxWorkers:  4,
			UnitTimeout: 30 * time.Second,
		},
		Policy: PolicyConfig{
			Backend:           "openai",
			Model:             "gpt-4o-mini",
			CompletionTimeout: 60 * time.Second,
			RateLimit:         1,
			RateBurst:         2,
			MaxTokens:         1024,
			Temperature:       0.1,
		},
		Sandbox: SandboxConfig{
			MaxFileSize:  4 << 20,
			MaxWallClock: 30 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			PrometheusPort: 9090,
		},
	}
}

// Load loads configuration with priority: env > file > defaults.
//
// Inputs:
//
//	configPath - Path to a YAML/JSON config file. Optional; a missing
//	             file silently falls back to defaults.
//
// Outputs:
//
//	Config - Merged configuration.
//	error - Non-nil if the file exists but is invalid, or validation fails.
func Load(configPath string) (Config, error) {
	config := Default()

	if configPath != "" {
		if err := loadFile(configPath, &config); err != nil {
			return config, fmt.Errorf("load config file: %w", err)
		}
	}

	loadEnv(&config)

	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// Try YAML first, then JSON.
	if err := yaml.Unmarshal(data, config); err != nil {
		if jsonErr := json.Unmarshal(data, config); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadEnv(config *Config) {
	if v := os.Getenv("MEND_EPISODE_LENGTH"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Episode.Length = i
		}
	}
	if v := os.Getenv("MEND_MAX_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Episode.MaxWorkers = i
		}
	}
	if v := os.Getenv("MEND_UNIT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Episode.UnitTimeout = d
		}
	}
	if v := os.Getenv("MEND_POLICY_BACKEND"); v != "" {
		config.Policy.Backend = v
	}
	if v := os.Getenv("MEND_OPENAI_MODEL"); v != "" {
		config.Policy.Model = v
	}
	if v := os.Getenv("MEND_COMPLETION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Policy.CompletionTimeout = d
		}
	}
	if v := os.Getenv("MEND_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Policy.RateLimit = f
		}
	}
	if v := os.Getenv("MEND_MAX_FILE_SIZE"); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Sandbox.MaxFileSize = i
		}
	}
	if v := os.Getenv("MEND_LOG_LEVEL"); v != "" {
		config.Observability.LogLevel = v
	}
	if v := os.Getenv("MEND_LOG_FORMAT"); v != "" {
		config.Observability.LogFormat = v
	}
	if v := os.Getenv("OTEL_TRACES_EXPORTER"); v != "" {
		config.Observability.TraceExporter = v
	}
	if v := os.Getenv("OTEL_METRICS_EXPORTER"); v != "" {
		config.Observability.MetricExporter = v
	}
}

// Validate checks structural invariants.
func (c Config) Validate() error {
	if c.Episode.Length < 1 {
		return fmt.Errorf("episode.length must be >= 1, got %d", c.Episode.Length)
	}
	if c.Episode.MaxWorkers < 1 {
		return fmt.Errorf("episode.max_workers must be >= 1, got %d", c.Episode.MaxWorkers)
	}
	if c.Episode.UnitTimeout <= 0 {
		return fmt.Errorf("episode.unit_timeout must be positive, got %v", c.Episode.UnitTimeout)
	}
	switch c.Policy.Backend {
	case "openai", "local":
	default:
		return fmt.Errorf("policy.backend must be openai or local, got %q", c.Policy.Backend)
	}
	if c.Policy.CompletionTimeout <= 0 {
		return fmt.Errorf("policy.completion_timeout must be positive, got %v", c.Policy.CompletionTimeout)
	}
	if c.Sandbox.MaxFileSize < 0 {
		return fmt.Errorf("sandbox.max_file_size must be >= 0, got %d", c.Sandbox.MaxFileSize)
	}
	return nil
}
