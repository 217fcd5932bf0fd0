// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 3901 {
		t.Errorf("Server.Port = %d, want 3901", cfg.Server.Port)
	}
	if cfg.Server.Addr() != "0.0.0.0:3901" {
		t.Errorf("Addr() = %q, want 0.0.0.0:3901", cfg.Server.Addr())
	}
	if cfg.Tracking.InactivityThreshold != 5*time.Minute {
		t.Errorf("InactivityThreshold = %v, want 5m", cfg.Tracking.InactivityThreshold)
	}
	if cfg.Tracking.SweepInterval != 60*time.Second {
		t.Errorf("SweepInterval = %v, want 60s", cfg.Tracking.SweepInterval)
	}
	if cfg.Tracker.QueueCapacity != 100 {
		t.Errorf("Tracker.QueueCapacity = %d, want 100", cfg.Tracker.QueueCapacity)
	}
	if cfg.Tracker.SubmitTimeout != 10*time.Second {
		t.Errorf("Tracker.SubmitTimeout = %v, want 10s", cfg.Tracker.SubmitTimeout)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "4500")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("INACTIVITY_THRESHOLD", "2m")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("TRACKER_VEHICLE_ID", "bus-7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 4500 {
		t.Errorf("Server.Port = %d, want 4500", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Tracking.InactivityThreshold != 2*time.Minute {
		t.Errorf("InactivityThreshold = %v, want 2m", cfg.Tracking.InactivityThreshold)
	}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[0] != "https://a.example" {
		t.Errorf("CORSOrigins = %v", cfg.Security.CORSOrigins)
	}
	if cfg.Tracker.VehicleID != "bus-7" {
		t.Errorf("Tracker.VehicleID = %q, want bus-7", cfg.Tracker.VehicleID)
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  port: 5000\ntracking:\n  sweep_interval: 30s\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Tracking.SweepInterval != 30*time.Second {
		t.Errorf("SweepInterval = %v, want 30s", cfg.Tracking.SweepInterval)
	}
}

func TestEnvBeatsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 5000\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "6000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000 (env wins)", cfg.Server.Port)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"empty storage path", func(c *Config) { c.Storage.Path = "" }},
		{"zero queue capacity", func(c *Config) { c.Tracker.QueueCapacity = 0 }},
		{"sub-second sweep interval", func(c *Config) { c.Tracking.SweepInterval = time.Millisecond }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
