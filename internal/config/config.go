// Fleettrace - Vehicle Telemetry Tracking and Realtime Fleet Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrace

// Package config loads and validates Fleettrace configuration using
// Koanf v2 with layered sources: built-in defaults, an optional YAML
// config file, and environment variables (highest priority).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for both the server and the tracker
// agent.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Storage  StorageConfig  `koanf:"storage"`
	Tracking TrackingConfig `koanf:"tracking"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
	Tracker  TrackerConfig  `koanf:"tracker"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig holds durable day-partition store settings.
type StorageConfig struct {
	// Path is the BadgerDB directory for day partitions.
	Path string `koanf:"path" validate:"required"`

	// SyncWrites forces fsync on every write. Slower but crash-safe.
	SyncWrites bool `koanf:"sync_writes"`
}

// TrackingConfig holds the telemetry state-machine timings.
type TrackingConfig struct {
	// InactivityThreshold is how long a vehicle may stay silent before
	// the sweep marks it offline.
	InactivityThreshold time.Duration `koanf:"inactivity_threshold" validate:"min=1s"`

	// SweepInterval is the period of the inactivity sweep.
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"min=1s"`

	// FlushInterval is the period of the durable snapshot flush. The
	// flush also runs opportunistically after every ingestion.
	FlushInterval time.Duration `koanf:"flush_interval" validate:"min=1s"`
}

// SecurityConfig holds the outward-facing HTTP protections.
type SecurityConfig struct {
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"min=1s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// TrackerConfig holds the tracker agent (client-side) settings.
type TrackerConfig struct {
	// ServerURL is the ingestion endpoint base URL.
	ServerURL string `koanf:"server_url"`

	// VehicleID identifies this tracker's vehicle.
	VehicleID string `koanf:"vehicle_id"`

	// SubmitTimeout bounds every outbound submission attempt.
	SubmitTimeout time.Duration `koanf:"submit_timeout" validate:"min=1s"`

	// SubmitInterval is the period between telemetry submissions.
	SubmitInterval time.Duration `koanf:"submit_interval" validate:"min=1s"`

	// RetryInterval is the period between retry-queue drains.
	RetryInterval time.Duration `koanf:"retry_interval" validate:"min=1s"`

	// QueueCapacity bounds the store-and-forward retry queue.
	QueueCapacity int `koanf:"queue_capacity" validate:"min=1"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    3901,
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Path:       "/data/fleettrace",
			SyncWrites: false,
		},
		Tracking: TrackingConfig{
			InactivityThreshold: 5 * time.Minute,
			SweepInterval:       60 * time.Second,
			FlushInterval:       30 * time.Second,
		},
		Security: SecurityConfig{
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Tracker: TrackerConfig{
			ServerURL:      "http://127.0.0.1:3901",
			VehicleID:      "",
			SubmitTimeout:  10 * time.Second,
			SubmitInterval: 10 * time.Second,
			RetryInterval:  60 * time.Second,
			QueueCapacity:  100,
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var errs validator.ValidationErrors
		if ok := asValidationErrors(err, &errs); ok {
			fields := make([]string, 0, len(errs))
			for _, fe := range errs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	if errs, ok := err.(validator.ValidationErrors); ok {
		*target = errs
		return true
	}
	return false
}
