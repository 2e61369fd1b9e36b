// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/t3chill/chill/cmd/chill/config"
	"github.com/t3chill/chill/cmd/chill/internal/envcheck"
	"github.com/t3chill/chill/cmd/chill/internal/infra/process"
	"github.com/t3chill/chill/cmd/chill/internal/lifecycle"
	"github.com/t3chill/chill/cmd/chill/internal/ports"
	"github.com/t3chill/chill/cmd/chill/internal/setup"
	"github.com/t3chill/chill/cmd/chill/internal/telemetry"
	"github.com/t3chill/chill/cmd/chill/internal/terminal"
	"github.com/t3chill/chill/pkg/logging"
	"github.com/t3chill/chill/pkg/ux"
)

// app carries the global flags and what is built from them once per run.
type app struct {
	// Global flags
	configPath  string
	logLevel    string
	logJSON     bool
	personality string

	cfg     config.ChillConfig
	logger  *logging.Logger
	metrics *telemetry.Metrics
	proc    process.Manager
}

// load reads the config file and builds the logger. Flags override the
// config file.
func (a *app) load() error {
	ux.InitPersonality(a.personality)

	cfg, created, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if a.personality == "" && cfg.UI.Personality != "" {
		ux.SetPersonalityLevel(ux.ParsePersonalityLevel(cfg.UI.Personality))
	}

	levelName := cfg.Logging.Level
	if a.logLevel != "" {
		levelName = a.logLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return err
	}
	// Console logs interleave with step output, so they are only shown for
	// debug or JSON runs. The file log gets everything at the chosen level.
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "chill",
		JSON:    a.logJSON || cfg.Logging.JSON,
		Quiet:   level > logging.LevelDebug && !a.logJSON,
	})
	a.metrics = telemetry.NewMetrics()
	if a.proc == nil {
		a.proc = process.NewDefaultManager()
	}

	if created {
		a.logger.Info("first run, created config", "path", a.configPath)
		ux.Muted(fmt.Sprintf("First run detected, created the config at %s", a.displayConfigPath()))
	}
	return nil
}

func (a *app) displayConfigPath() string {
	if a.configPath != "" {
		return a.configPath
	}
	if p, err := config.DefaultPath(); err == nil {
		return p
	}
	return "~/.chill/chill.yaml"
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

// runnerConfig maps the config file onto the setup runner.
func (a *app) runnerConfig(skipInstall bool) (setup.Config, error) {
	policy, err := ports.ParseProbePolicy(a.cfg.Probe.Policy)
	if err != nil {
		return setup.Config{}, err
	}
	return setup.Config{
		SkipInstall:    skipInstall || a.cfg.Install.Skip,
		SkipReset:      !a.cfg.Database.Reset,
		InstallTimeout: a.cfg.Install.Timeout,
		Defaults:       a.cfg.Allocation(),
		ScanLimit:      a.cfg.Ports.ScanLimit,
		ProbeHost:      a.cfg.Probe.Host,
		ProbePolicy:    policy,
		Lifecycle: lifecycle.Config{
			MaxRetries:   a.cfg.Stack.MaxRetries,
			StartTimeout: a.cfg.Stack.StartTimeout,
			StopTimeout:  a.cfg.Stack.StopTimeout,
		},
		Logger:  a.logger,
		Metrics: a.metrics,
	}, nil
}

// prompter waits for environment fixes: by watching the files when watch
// is set, otherwise by a keypress on stdin.
func (a *app) prompter(projectPath string, watch bool) (envcheck.Prompter, error) {
	if watch || a.cfg.UI.Watch {
		abs, err := filepath.Abs(projectPath)
		if err != nil {
			return nil, err
		}
		return terminal.NewWatchPrompter(abs, ux.Stdout(), a.logger), nil
	}
	return terminal.NewKeyPrompter(os.Stdin, ux.Stdout()), nil
}
