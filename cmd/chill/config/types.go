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
	"time"

	"github.com/t3chill/chill/cmd/chill/internal/ports"
)

// CurrentConfigVersion is written into new config files.
const CurrentConfigVersion = "1"

type ChillConfig struct {
	Meta MetaConfig `yaml:"meta"`

	// Ports: the allocation requested before conflict resolution
	Ports PortsConfig `yaml:"ports"`

	// Probe: how port availability is tested
	Probe ProbeConfig `yaml:"probe"`

	// Stack: container start retries and timeouts
	Stack StackConfig `yaml:"stack"`

	Install  InstallConfig  `yaml:"install"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	UI       UIConfig       `yaml:"ui"`
}

type MetaConfig struct {
	Version string `yaml:"version"`
}

type PortsConfig struct {
	API            int `yaml:"api" validate:"gte=1024,lte=65535"`
	Database       int `yaml:"db" validate:"gte=1024,lte=65535"`
	ShadowDatabase int `yaml:"shadow_db" validate:"gte=1024,lte=65535"`
	Studio         int `yaml:"studio" validate:"gte=1024,lte=65535"`
	Inbucket       int `yaml:"inbucket" validate:"gte=1024,lte=65535"`
	Analytics      int `yaml:"analytics" validate:"gte=1024,lte=65535"`

	// ScanLimit is how many ports past the requested one are probed.
	ScanLimit int `yaml:"scan_limit" validate:"gte=1,lte=1000"`
}

type ProbeConfig struct {
	Host string `yaml:"host" validate:"required,ip"`

	// Policy is "optimistic" (inconclusive probe = free) or "strict".
	Policy string `yaml:"policy" validate:"oneof=optimistic strict"`
}

type StackConfig struct {
	MaxRetries   int           `yaml:"max_retries" validate:"gte=1,lte=10"`
	StartTimeout time.Duration `yaml:"start_timeout" validate:"gte=1s"`
	StopTimeout  time.Duration `yaml:"stop_timeout" validate:"gte=1s"`
}

type InstallConfig struct {
	Skip    bool          `yaml:"skip"`
	Timeout time.Duration `yaml:"timeout" validate:"gte=1s"`
}

type DatabaseConfig struct {
	// Reset drops and re-migrates the local database during setup.
	Reset bool `yaml:"reset"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`

	// Dir enables JSON file logs. Empty disables them.
	Dir string `yaml:"dir,omitempty"`
}

type UIConfig struct {
	// Personality: full, standard, minimal or machine. Empty means detect.
	Personality string `yaml:"personality,omitempty" validate:"omitempty,oneof=full standard minimal machine"`

	// Watch waits for environment file changes instead of a keypress.
	Watch bool `yaml:"watch"`
}

func DefaultConfig() ChillConfig {
	return ChillConfig{
		Meta: MetaConfig{Version: CurrentConfigVersion},
		Ports: PortsConfig{
			API:            ports.DefaultAPIPort,
			Database:       ports.DefaultDatabasePort,
			ShadowDatabase: ports.DefaultShadowPort,
			Studio:         ports.DefaultStudioPort,
			Inbucket:       ports.DefaultInbucketPort,
			Analytics:      ports.DefaultAnalyticsPort,
			ScanLimit:      ports.DefaultScanLimit,
		},
		Probe: ProbeConfig{
			Host:   "127.0.0.1",
			Policy: "optimistic",
		},
		Stack: StackConfig{
			MaxRetries:   3,
			StartTimeout: 120 * time.Second,
			StopTimeout:  60 * time.Second,
		},
		Install: InstallConfig{
			Timeout: 300 * time.Second,
		},
		Database: DatabaseConfig{Reset: true},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.chill/logs",
		},
	}
}

// Allocation returns the requested ports.
func (c ChillConfig) Allocation() ports.Allocation {
	return ports.Allocation{
		ports.API:            c.Ports.API,
		ports.Database:       c.Ports.Database,
		ports.ShadowDatabase: c.Ports.ShadowDatabase,
		ports.Studio:         c.Ports.Studio,
		ports.Inbucket:       c.Ports.Inbucket,
		ports.Analytics:      c.Ports.Analytics,
	}
}
