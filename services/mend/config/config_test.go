// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Episode.Length != 8 {
		t.Errorf("unexpected default episode length: %d", cfg.Episode.Length)
	}
	if cfg.Policy.Backend != "openai" {
		t.Errorf("unexpected default backend: %q", cfg.Policy.Backend)
	}
}

func TestLoad_MissingFileFallsBack(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file must not fail: %v", err)
	}
	if cfg.Episode.MaxWorkers != 4 {
		t.Errorf("defaults not applied: %+v", cfg.Episode)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mend.yaml")
	content := "episode:\n  length: 3\n  max_workers: 2\n  unit_timeout: 10s\npolicy:\n  backend: local\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Episode.Length != 3 || cfg.Episode.MaxWorkers != 2 {
		t.Errorf("file values not applied: %+v", cfg.Episode)
	}
	if cfg.Episode.UnitTimeout != 10*time.Second {
		t.Errorf("duration not parsed: %v", cfg.Episode.UnitTimeout)
	}
	if cfg.Policy.Backend != "local" {
		t.Errorf("backend not applied: %q", cfg.Policy.Backend)
	}
	// Untouched sections keep defaults.
	if cfg.Policy.MaxTokens != 1024 {
		t.Errorf("defaults lost on partial file: %d", cfg.Policy.MaxTokens)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mend.yaml")
	if err := os.WriteFile(path, []byte("episode:\n  length: 3\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("MEND_EPISODE_LENGTH", "5")
	t.Setenv("MEND_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Episode.Length != 5 {
		t.Errorf("env did not win over file: %d", cfg.Episode.Length)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("log level override lost: %q", cfg.Observability.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero episode length", func(c *Config) { c.Episode.Length = 0 }},
		{"zero workers", func(c *Config) { c.Episode.MaxWorkers = 0 }},
		{"bad backend", func(c *Config) { c.Policy.Backend = "psychic" }},
		{"negative file size", func(c *Config) { c.Sandbox.MaxFileSize = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
