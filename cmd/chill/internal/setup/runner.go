// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package setup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/t3chill/chill/cmd/chill/internal/database"
	"github.com/t3chill/chill/cmd/chill/internal/envcheck"
	"github.com/t3chill/chill/cmd/chill/internal/infra/process"
	"github.com/t3chill/chill/cmd/chill/internal/infra/stack"
	"github.com/t3chill/chill/cmd/chill/internal/lifecycle"
	"github.com/t3chill/chill/cmd/chill/internal/ports"
	"github.com/t3chill/chill/cmd/chill/internal/reconcile"
	"github.com/t3chill/chill/cmd/chill/internal/telemetry"
	"github.com/t3chill/chill/pkg/logging"
	"github.com/t3chill/chill/pkg/ux"
)

// Step names, in run order.
const (
	StepInstall    = "install dependencies"
	StepContainers = "start containers"
	StepTemplates  = "update environment templates"
	StepEnvFiles   = "check environment files"
	StepValidate   = "validate environment"
	StepDatabase   = "set up database"
	StepSummary    = "show local URLs"
)

// DefaultInstallTimeout bounds `npm install`.
const DefaultInstallTimeout = 300 * time.Second

// ErrNilDependency is returned by NewRunner when a dependency is nil.
var ErrNilDependency = errors.New("required dependency is nil")

// Config configures a Runner.
type Config struct {
	// SkipInstall skips the dependency install step.
	SkipInstall bool

	// SkipReset keeps the local database instead of re-migrating it.
	SkipReset bool

	// InstallTimeout bounds the install step. Default: 300s.
	InstallTimeout time.Duration

	// Defaults is the requested allocation. Default: ports.DefaultAllocation().
	Defaults ports.Allocation

	// ScanLimit bounds the per-service port scan. Default: ports.DefaultScanLimit.
	ScanLimit int

	// Prober overrides the TCP prober built from ProbeHost and ProbePolicy.
	Prober ports.Prober

	// ProbeHost is the interface probed. Default: 127.0.0.1.
	ProbeHost string

	// ProbePolicy decides inconclusive probes. Default: optimistic.
	ProbePolicy ports.ProbePolicy

	// Lifecycle tunes the container start loop. Its Defaults, Logger and
	// Metrics are filled from this Config.
	Lifecycle lifecycle.Config

	// NewStack overrides the stack controller for a project directory.
	// Default: `npx supabase` through the process manager.
	NewStack func(dir string) (lifecycle.Stack, error)

	Logger  *logging.Logger
	Metrics *telemetry.Metrics
}

// Runner wires the standard setup steps.
type Runner struct {
	proc     process.Manager
	prompter envcheck.Prompter
	config   Config
	logger   *logging.Logger
}

// NewRunner creates a Runner. proc runs npm and npx; prompter drives the
// environment validation loops.
func NewRunner(proc process.Manager, prompter envcheck.Prompter, config Config) (*Runner, error) {
	if proc == nil {
		return nil, fmt.Errorf("%w: process manager", ErrNilDependency)
	}
	if prompter == nil {
		return nil, fmt.Errorf("%w: prompter", ErrNilDependency)
	}
	if config.InstallTimeout <= 0 {
		config.InstallTimeout = DefaultInstallTimeout
	}
	if config.Defaults == nil {
		config.Defaults = ports.DefaultAllocation()
	}
	if config.ProbeHost == "" {
		config.ProbeHost = reconcile.LocalHost
	}
	if config.Prober == nil {
		config.Prober = ports.NewTCPProber(config.ProbeHost, config.ProbePolicy)
	}
	if config.Logger == nil {
		config.Logger = logging.Nop()
	}
	if config.NewStack == nil {
		config.NewStack = func(dir string) (lifecycle.Stack, error) {
			return stack.NewSupabaseCLI(dir, proc)
		}
	}
	return &Runner{
		proc:     proc,
		prompter: prompter,
		config:   config,
		logger:   config.Logger,
	}, nil
}

// EnsureLocalEnvironment runs every setup step against the project at
// projectPath and returns the allocation the stack runs on.
//
// The report is returned even on failure and lists every step that ran.
// A blocking failure is a *StepError; advisory failures only appear in the
// report.
func (r *Runner) EnsureLocalEnvironment(ctx context.Context, projectPath string) (ports.Allocation, *Report, error) {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve project path: %w", err)
	}

	state := &State{ProjectPath: abs, RunID: uuid.NewString()}
	r.logger.Info("setup started", "run_id", state.RunID, "project", abs)

	orch := r.Orchestrator()
	report, err := orch.Run(ctx, state)
	if err != nil {
		r.logger.Error("setup failed", "run_id", state.RunID, "error", err, "duration", report.Duration.String())
		return nil, report, err
	}
	r.logger.Info("setup completed", "run_id", state.RunID, "ports", state.Allocation.String(),
		"warnings", len(report.Warnings()), "duration", report.Duration.String())
	return state.Allocation, report, nil
}

// Orchestrator returns an orchestrator loaded with the standard steps.
func (r *Runner) Orchestrator() *Orchestrator {
	orch := NewOrchestrator(OrchestratorConfig{
		Logger:  r.logger,
		Metrics: r.config.Metrics,
	})
	orch.AddStep(Step{Name: StepInstall, Criticality: Advisory, Timeout: r.config.InstallTimeout, Run: r.install})
	orch.AddStep(Step{Name: StepContainers, Criticality: Blocking, Run: r.startContainers})
	orch.AddStep(Step{Name: StepTemplates, Criticality: Blocking, Run: r.updateTemplates})
	orch.AddStep(Step{Name: StepEnvFiles, Criticality: Blocking, Run: r.ensureEnvFiles})
	orch.AddStep(Step{Name: StepValidate, Criticality: Blocking, Run: r.validateEnvironment})
	orch.AddStep(Step{Name: StepDatabase, Criticality: Blocking, Run: r.setupDatabase})
	orch.AddStep(Step{Name: StepSummary, Criticality: Advisory, Run: r.showSummary})
	return orch
}

func (r *Runner) reconciler(state *State) *reconcile.Reconciler {
	return reconcile.New(state.ProjectPath, reconcile.Config{
		Defaults: r.config.Defaults,
		Logger:   r.logger,
	})
}

// =============================================================================
// Steps
// =============================================================================

func (r *Runner) install(ctx context.Context, state *State) error {
	if r.config.SkipInstall {
		return fmt.Errorf("%w: --skip-install", ErrSkipped)
	}
	err := ux.WithSpinner("Installing dependencies", func() error {
		_, err := r.proc.Run(ctx, state.ProjectPath, "npm", "install")
		return err
	})
	if err != nil {
		ux.List([]string{
			"Try running: npm install manually",
			"Check your internet connection",
			"Clear the npm cache: npm cache clean --force",
			"Delete node_modules and package-lock.json",
		})
		return err
	}
	return nil
}

func (r *Runner) startContainers(ctx context.Context, state *State) error {
	ux.Step("Starting Supabase containers...")

	allocator := ports.NewAllocator(r.config.Prober, ports.AllocatorConfig{
		ScanLimit: r.config.ScanLimit,
		Logger:    r.logger,
		Notify: func(re ports.Reassignment) {
			r.config.Metrics.PortReassigned(string(re.Service))
			ux.Warning("Port conflict resolved: " + re.String())
		},
	})
	st, err := r.config.NewStack(state.ProjectPath)
	if err != nil {
		return err
	}

	lc := r.config.Lifecycle
	lc.Defaults = r.config.Defaults
	lc.Logger = r.logger
	lc.Metrics = r.config.Metrics
	mgr, err := lifecycle.NewManager(st, allocator, r.reconciler(state), lc)
	if err != nil {
		return err
	}

	alloc, err := mgr.EnsureRunning(ctx)
	if err != nil {
		return err
	}
	state.Allocation = alloc

	if mgr.State() == lifecycle.StateRunning {
		ux.Success("Supabase containers already running")
	} else {
		ux.Success("Supabase containers started")
	}
	return nil
}

func (r *Runner) updateTemplates(ctx context.Context, state *State) error {
	if state.Allocation == nil {
		return errors.New("no port allocation")
	}
	if err := r.reconciler(state).RegenerateTemplates(state.Allocation); err != nil {
		return err
	}
	ux.Success("Environment templates updated with port " + fmt.Sprint(state.Allocation[ports.API]))
	return nil
}

func (r *Runner) ensureEnvFiles(ctx context.Context, state *State) error {
	ux.Step("Checking environment files...")
	rec := r.reconciler(state)
	created, err := rec.EnsureEnvironmentFiles()
	if err != nil {
		return err
	}
	state.CreatedEnvFiles = created
	if len(created) > 0 {
		ux.Success("Environment files created from examples: " + strings.Join(created, ", "))
	} else {
		ux.Success("Environment files found")
	}
	// Existing files may still carry old ports.
	return rec.ApplyToEnvironmentFiles(state.Allocation)
}

func (r *Runner) validateEnvironment(ctx context.Context, state *State) error {
	v, err := envcheck.NewValidator(state.ProjectPath, r.prompter, envcheck.Config{
		Logger:  r.logger,
		Metrics: r.config.Metrics,
	})
	if err != nil {
		return err
	}
	if _, err := v.Lint(); err != nil {
		r.logger.Warn("env lint failed", "error", err)
	}
	outcome, err := v.ValidateAll(ctx)
	if err != nil {
		return err
	}
	state.OptionalSkipped = outcome.OptionalSkipped
	return nil
}

func (r *Runner) setupDatabase(ctx context.Context, state *State) error {
	ux.Step("Setting up database...")
	m, err := database.NewMigrator(state.ProjectPath, r.proc, r.logger)
	if err != nil {
		return err
	}

	// Client generation is advisory inside a blocking step.
	if err := m.Generate(ctx); err != nil {
		r.logger.Warn("prisma client generation failed, continuing", "error", err)
		ux.Warning("Failed to generate Prisma client; try npm run prisma:generate manually")
	}

	if r.config.SkipReset {
		return fmt.Errorf("%w: database reset disabled", ErrSkipped)
	}

	has, err := m.HasMigrations()
	if err != nil {
		return err
	}
	if !has {
		ux.Warning("No migrations found in " + database.MigrationsDir + "; skipping database reset")
		return fmt.Errorf("%w: no migrations", ErrSkipped)
	}

	if err := m.Reset(ctx); err != nil {
		return err
	}
	ux.Success("Database setup completed")
	return nil
}

func (r *Runner) showSummary(ctx context.Context, state *State) error {
	if state.Allocation == nil {
		return errors.New("no port allocation")
	}
	PrintURLs(state.Allocation)
	if state.OptionalSkipped {
		ux.Muted("Stripe is not configured; billing features are disabled until its keys are set in .env.local.")
	}
	return nil
}

// PrintURLs shows where the local services listen.
func PrintURLs(alloc ports.Allocation) {
	ux.Info("Services are running on:")
	ux.KeyValue("API", reconcile.APIURL(alloc[ports.API]))
	ux.KeyValue("Database", reconcile.DatabaseURL(alloc[ports.Database]))
	ux.KeyValue("Studio", reconcile.APIURL(alloc[ports.Studio]))
	ux.KeyValue("Email", reconcile.APIURL(alloc[ports.Inbucket]))
}
