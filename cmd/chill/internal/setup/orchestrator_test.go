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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t3chill/chill/cmd/chill/internal/telemetry"
	"github.com/t3chill/chill/pkg/logging"
)

func recordStep(name string, c Criticality, ran *[]string, err error) Step {
	return Step{Name: name, Criticality: c, Run: func(ctx context.Context, s *State) error {
		*ran = append(*ran, name)
		return err
	}}
}

func TestOrchestrator_RunsInOrder(t *testing.T) {
	var ran []string
	o := NewOrchestrator(OrchestratorConfig{})
	o.AddStep(recordStep("a", Blocking, &ran, nil))
	o.AddStep(recordStep("b", Advisory, &ran, nil))
	o.AddStep(recordStep("c", Blocking, &ran, nil))

	report, err := o.Run(context.Background(), &State{RunID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ran)
	assert.Equal(t, []string{"a", "b", "c"}, o.Steps())
	assert.Equal(t, "r1", report.RunID)
	require.Len(t, report.Results, 3)
	for _, res := range report.Results {
		assert.Equal(t, StatusOK, res.Status)
	}
	assert.Empty(t, report.Warnings())
}

func TestOrchestrator_BlockingFailureAborts(t *testing.T) {
	var ran []string
	boom := errors.New("boom")
	o := NewOrchestrator(OrchestratorConfig{})
	o.AddStep(recordStep("a", Blocking, &ran, nil))
	o.AddStep(recordStep("b", Blocking, &ran, boom))
	o.AddStep(recordStep("c", Blocking, &ran, nil))

	report, err := o.Run(context.Background(), &State{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "b", stepErr.Step)
	assert.Equal(t, `setup step "b" failed: boom`, err.Error())

	assert.Equal(t, []string{"a", "b"}, ran)
	require.Len(t, report.Results, 2)
	assert.Equal(t, StatusFailed, report.Results[1].Status)
}

func TestOrchestrator_AdvisoryFailureContinues(t *testing.T) {
	var ran []string
	logs := logging.NewBufferedExporter()
	metrics := telemetry.NewMetrics()
	o := NewOrchestrator(OrchestratorConfig{
		Logger:  logging.New(logging.Config{Quiet: true, Exporter: logs}),
		Metrics: metrics,
	})
	o.AddStep(recordStep("install", Advisory, &ran, errors.New("npm exploded")))
	o.AddStep(recordStep("start", Blocking, &ran, nil))

	report, err := o.Run(context.Background(), &State{})
	require.NoError(t, err)
	assert.Equal(t, []string{"install", "start"}, ran)

	warnings := report.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "install", warnings[0].Name)
	assert.EqualError(t, warnings[0].Err, "npm exploded")
	assert.Contains(t, logs.Messages(), "advisory setup step failed, continuing")

	assert.Equal(t, 2, testutil.CollectAndCount(metrics.StepDuration, "chill_setup_step_duration_seconds"))
}

func TestOrchestrator_AdvisoryFailureIsRecordedByHooks(t *testing.T) {
	var started []string
	var done []StepResult
	o := NewOrchestrator(OrchestratorConfig{
		OnStepStart: func(s Step) { started = append(started, s.Name) },
		OnStepDone:  func(r StepResult) { done = append(done, r) },
	})
	var ran []string
	o.AddStep(recordStep("summary", Advisory, &ran, errors.New("tty gone")))

	_, err := o.Run(context.Background(), &State{})
	require.NoError(t, err)
	assert.Equal(t, []string{"summary"}, started)
	require.Len(t, done, 1)
	assert.Equal(t, StatusAdvisoryFailed, done[0].Status)
	assert.Equal(t, Advisory, done[0].Criticality)
}

func TestOrchestrator_SkippedStep(t *testing.T) {
	var ran []string
	o := NewOrchestrator(OrchestratorConfig{})
	o.AddStep(recordStep("install", Advisory, &ran, fmt.Errorf("%w: flag", ErrSkipped)))
	o.AddStep(recordStep("db", Blocking, &ran, ErrSkipped))
	o.AddStep(recordStep("summary", Advisory, &ran, nil))

	report, err := o.Run(context.Background(), &State{})
	require.NoError(t, err)
	assert.Len(t, ran, 3)

	res, ok := report.Result("db")
	require.True(t, ok)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.NoError(t, res.Err)
	assert.Empty(t, report.Warnings())

	_, ok = report.Result("missing")
	assert.False(t, ok)
}

func TestOrchestrator_StepTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	o := NewOrchestrator(OrchestratorConfig{})
	o.AddStep(Step{Name: "slow", Criticality: Advisory, Timeout: 20 * time.Millisecond,
		Run: func(ctx context.Context, s *State) error {
			<-release
			return nil
		}})
	o.AddStep(Step{Name: "hung", Criticality: Blocking, Timeout: 20 * time.Millisecond,
		Run: func(ctx context.Context, s *State) error {
			<-release
			return nil
		}})

	report, err := o.Run(context.Background(), &State{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")

	require.Len(t, report.Results, 2)
	assert.Equal(t, StatusAdvisoryFailed, report.Results[0].Status, "advisory timeout does not abort")
	assert.Equal(t, StatusFailed, report.Results[1].Status)
}

func TestOrchestrator_CancelledRunStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ran []string
	o := NewOrchestrator(OrchestratorConfig{})
	o.AddStep(Step{Name: "first", Criticality: Advisory, Run: func(ctx context.Context, s *State) error {
		ran = append(ran, "first")
		cancel()
		return ctx.Err()
	}})
	o.AddStep(recordStep("second", Blocking, &ran, nil))

	report, err := o.Run(ctx, &State{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"first"}, ran)

	// An advisory step cut short by cancellation is a failure, not a warning.
	require.Len(t, report.Results, 1)
	assert.Equal(t, StatusFailed, report.Results[0].Status)
}

func TestOrchestrator_StepsShareState(t *testing.T) {
	o := NewOrchestrator(OrchestratorConfig{})
	o.AddStep(Step{Name: "write", Run: func(ctx context.Context, s *State) error {
		s.CreatedEnvFiles = append(s.CreatedEnvFiles, ".env")
		return nil
	}})
	o.AddStep(Step{Name: "read", Run: func(ctx context.Context, s *State) error {
		if len(s.CreatedEnvFiles) != 1 {
			return errors.New("state not shared")
		}
		return nil
	}})

	state := &State{}
	_, err := o.Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, []string{".env"}, state.CreatedEnvFiles)
}

func TestCriticality_String(t *testing.T) {
	assert.Equal(t, "blocking", Blocking.String())
	assert.Equal(t, "advisory", Advisory.String())
}
