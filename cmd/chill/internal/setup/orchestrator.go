// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package setup sequences the steps that turn a freshly scaffolded project
// into a running local environment.
//
// Steps are either Blocking, whose failure aborts the run, or Advisory,
// whose failure is logged and recorded in the Report. Steps share an
// explicit *State instead of package-level globals.
package setup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/t3chill/chill/cmd/chill/internal/ports"
	"github.com/t3chill/chill/cmd/chill/internal/telemetry"
	"github.com/t3chill/chill/pkg/logging"
)

// ErrSkipped is returned by a step's Run to mark it skipped.
var ErrSkipped = errors.New("step skipped")

// Criticality decides what a step failure does to the run.
type Criticality int

const (
	// Blocking failures abort setup.
	Blocking Criticality = iota

	// Advisory failures are reported and setup continues.
	Advisory
)

func (c Criticality) String() string {
	if c == Advisory {
		return "advisory"
	}
	return "blocking"
}

// State is what the steps of one run share.
type State struct {
	ProjectPath string
	RunID       string

	// Allocation is the port allocation the stack is running on, set by
	// the container step.
	Allocation ports.Allocation

	// CreatedEnvFiles lists environment files created from examples.
	CreatedEnvFiles []string

	// OptionalSkipped is true when billing configuration was waived.
	OptionalSkipped bool
}

// Step is one unit of setup work.
type Step struct {
	Name        string
	Criticality Criticality

	// Timeout bounds Run. Zero means no step-level bound; the step is then
	// only limited by its own internal timeouts and the run context.
	Timeout time.Duration

	// Run does the work. Returning ErrSkipped (or an error wrapping it)
	// records the step as skipped.
	Run func(ctx context.Context, state *State) error
}

// Status is the outcome of one step.
type Status string

const (
	StatusOK             Status = "ok"
	StatusSkipped        Status = "skipped"
	StatusAdvisoryFailed Status = "advisory_failed"
	StatusFailed         Status = "failed"
)

// StepResult records one executed step.
type StepResult struct {
	Name        string
	Criticality Criticality
	Status      Status
	Err         error
	Duration    time.Duration
}

// Report summarises a run.
type Report struct {
	RunID    string
	Results  []StepResult
	Duration time.Duration
}

// Warnings returns the advisory steps that failed.
func (r *Report) Warnings() []StepResult {
	var out []StepResult
	for _, res := range r.Results {
		if res.Status == StatusAdvisoryFailed {
			out = append(out, res)
		}
	}
	return out
}

// Result returns the result for the named step.
func (r *Report) Result(name string) (StepResult, bool) {
	for _, res := range r.Results {
		if res.Name == name {
			return res, true
		}
	}
	return StepResult{}, false
}

// StepError is a blocking step failure.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("setup step %q failed: %v", e.Step, e.Err)
}

// Unwrap returns the step's error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	Logger  *logging.Logger
	Metrics *telemetry.Metrics

	// OnStepStart is called before each step runs.
	OnStepStart func(step Step)

	// OnStepDone is called after each step with its result.
	OnStepDone func(result StepResult)
}

// Orchestrator runs steps in order. There are no step-level retries.
type Orchestrator struct {
	config OrchestratorConfig
	steps  []Step
	mu     sync.Mutex
}

// NewOrchestrator creates an empty Orchestrator.
func NewOrchestrator(config OrchestratorConfig) *Orchestrator {
	if config.Logger == nil {
		config.Logger = logging.Nop()
	}
	return &Orchestrator{config: config}
}

// AddStep appends a step.
func (o *Orchestrator) AddStep(step Step) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps = append(o.steps, step)
}

// Steps returns the step names in order.
func (o *Orchestrator) Steps() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, len(o.steps))
	for i, s := range o.steps {
		names[i] = s.Name
	}
	return names
}

// Run executes every step against state. It returns the report, which is
// never nil, and a *StepError for the first blocking failure. A cancelled
// context stops the run before the next step.
func (o *Orchestrator) Run(ctx context.Context, state *State) (*Report, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	report := &Report{RunID: state.RunID}
	begin := time.Now()
	defer func() { report.Duration = time.Since(begin) }()

	logger := o.config.Logger.With("run_id", state.RunID)

	for _, step := range o.steps {
		if err := ctx.Err(); err != nil {
			return report, &StepError{Step: step.Name, Err: err}
		}

		res := o.executeStep(ctx, step, state, logger)
		report.Results = append(report.Results, res)
		if o.config.OnStepDone != nil {
			o.config.OnStepDone(res)
		}

		if res.Status == StatusFailed {
			return report, &StepError{Step: step.Name, Err: res.Err}
		}
	}
	return report, nil
}

func (o *Orchestrator) executeStep(ctx context.Context, step Step, state *State, logger *logging.Logger) StepResult {
	if o.config.OnStepStart != nil {
		o.config.OnStepStart(step)
	}

	ctx, span := telemetry.Tracer().Start(ctx, "setup.step")
	defer span.End()
	span.SetAttributes(
		attribute.String("step", step.Name),
		attribute.String("criticality", step.Criticality.String()),
		attribute.String("run_id", state.RunID),
	)

	logger.Info("setup step started", "step", step.Name, "criticality", step.Criticality.String())
	start := time.Now()
	err := o.runWithTimeout(ctx, step, state)
	res := StepResult{
		Name:        step.Name,
		Criticality: step.Criticality,
		Err:         err,
		Duration:    time.Since(start),
	}

	switch {
	case err == nil:
		res.Status = StatusOK
		logger.Info("setup step completed", "step", step.Name, "duration", res.Duration.String())
	case errors.Is(err, ErrSkipped):
		res.Status = StatusSkipped
		res.Err = nil
		logger.Info("setup step skipped", "step", step.Name, "reason", err.Error())
	case step.Criticality == Advisory && ctx.Err() == nil:
		res.Status = StatusAdvisoryFailed
		logger.Warn("advisory setup step failed, continuing", "step", step.Name, "error", err)
		span.RecordError(err)
	default:
		res.Status = StatusFailed
		logger.Error("setup step failed", "step", step.Name, "duration", res.Duration.String(), "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "step failed")
	}
	span.SetAttributes(attribute.String("status", string(res.Status)))

	outcome := telemetry.OutcomeOK
	switch res.Status {
	case StatusAdvisoryFailed:
		outcome = telemetry.OutcomeAdvisory
	case StatusFailed:
		outcome = telemetry.OutcomeFailed
	}
	o.config.Metrics.ObserveStep(step.Name, outcome, res.Duration.Seconds())

	return res
}

// runWithTimeout runs the step in a goroutine when it has a Timeout so a
// step that ignores its context cannot stall the run.
func (o *Orchestrator) runWithTimeout(ctx context.Context, step Step, state *State) error {
	if step.Timeout <= 0 {
		return step.Run(ctx, state)
	}

	stepCtx, cancel := context.WithTimeout(ctx, step.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- step.Run(stepCtx, state)
	}()

	select {
	case err := <-done:
		return err
	case <-stepCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("step timed out after %v: %w", step.Timeout, stepCtx.Err())
	}
}
