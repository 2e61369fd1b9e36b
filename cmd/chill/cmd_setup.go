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
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/t3chill/chill/cmd/chill/internal/setup"
	"github.com/t3chill/chill/cmd/chill/internal/telemetry"
	"github.com/t3chill/chill/pkg/ux"
)

func runSetup(cmd *cobra.Command, a *app, dir string, f setupFlags) error {
	ctx := cmd.Context()

	if f.traceFile != "" {
		shutdown, err := startTracing(f.traceFile)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				a.logger.Warn("trace flush failed", "error", err)
			}
		}()
	}

	_, err := setupProject(ctx, a, dir, f.skipInstall, f.watch)

	if f.metricsFile != "" {
		if werr := a.metrics.WriteToTextfile(f.metricsFile); werr != nil {
			a.logger.Warn("metrics write failed", "error", werr)
			ux.Warning(werr.Error())
		}
	}
	return err
}

// setupProject runs every setup step for the project in dir and prints the
// success screen.
func setupProject(ctx context.Context, a *app, dir string, skipInstall, watch bool) (*setup.Report, error) {
	ux.Title("🧊 Setting up your T3 Chill App")

	cfg, err := a.runnerConfig(skipInstall)
	if err != nil {
		return nil, err
	}
	prompter, err := a.prompter(dir, watch)
	if err != nil {
		return nil, err
	}
	runner, err := setup.NewRunner(a.proc, prompter, cfg)
	if err != nil {
		return nil, err
	}

	_, report, err := runner.EnsureLocalEnvironment(ctx, dir)
	if err != nil {
		return report, err
	}
	showSetupSuccess(dir, report)
	return report, nil
}

func showSetupSuccess(dir string, report *setup.Report) {
	ux.Success("🎉 Project setup completed successfully!")

	for _, w := range report.Warnings() {
		ux.Warning(fmt.Sprintf("%s did not complete: %v", w.Name, w.Err))
	}

	steps := []string{}
	if abs, err := filepath.Abs(dir); err == nil {
		if cwd, err := os.Getwd(); err != nil || abs != cwd {
			steps = append(steps, "cd "+filepath.Base(abs))
		}
	}
	if res, ok := report.Result(setup.StepInstall); ok && res.Status != setup.StatusOK {
		steps = append(steps, "npm install")
	}
	steps = append(steps, "npm run dev", "Open http://localhost:3000")

	ux.Step("🚀 Next steps:")
	ux.List(steps)
	ux.Success("Happy building! 🚀")
}

// startTracing exports spans to path until the returned shutdown is called.
func startTracing(path string) (func(context.Context) error, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	shutdown, err := telemetry.InitTracing(telemetry.TracingConfig{
		ServiceName:    "chill",
		ServiceVersion: Version,
		Output:         f,
	})
	if err != nil {
		f.Close()
		return nil, err
	}
	return func(ctx context.Context) error {
		err := shutdown(ctx)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		return err
	}, nil
}
