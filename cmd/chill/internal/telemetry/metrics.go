// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Step outcomes recorded on the step duration histogram.
const (
	OutcomeOK       = "ok"
	OutcomeAdvisory = "advisory_failed"
	OutcomeFailed   = "failed"
)

// Metrics holds the setup run's counters on a private registry. A CLI run
// is short-lived, so there is no scrape endpoint; the registry is dumped to
// a node-exporter textfile when the operator asks for it.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	PortReassignments *prometheus.CounterVec
	StartAttempts     *prometheus.CounterVec
	StepDuration      *prometheus.HistogramVec
	ValidationRounds  *prometheus.CounterVec
}

// NewMetrics creates a Metrics with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PortReassignments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chill_port_reassignments_total",
			Help: "Ports moved off their requested value, by service",
		}, []string{"service"}),
		StartAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chill_stack_start_attempts_total",
			Help: "Container stack start attempts by outcome",
		}, []string{"outcome"}),
		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chill_setup_step_duration_seconds",
			Help:    "Duration of each setup step",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"step", "outcome"}),
		ValidationRounds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chill_env_validation_rounds_total",
			Help: "Environment validation rounds by phase",
		}, []string{"phase"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// PortReassigned counts one port moved for service.
func (m *Metrics) PortReassigned(service string) {
	if m == nil {
		return
	}
	m.PortReassignments.WithLabelValues(service).Inc()
}

// StartAttempt counts one stack start attempt.
func (m *Metrics) StartAttempt(ok bool) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeFailed
	}
	m.StartAttempts.WithLabelValues(outcome).Inc()
}

// ObserveStep records a step's duration in seconds.
func (m *Metrics) ObserveStep(step, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.StepDuration.WithLabelValues(step, outcome).Observe(seconds)
}

// ValidationRound counts one validation pass for phase ("required" or
// "optional").
func (m *Metrics) ValidationRound(phase string) {
	if m == nil {
		return
	}
	m.ValidationRounds.WithLabelValues(phase).Inc()
}

// WriteToTextfile writes all metrics in the text exposition format.
func (m *Metrics) WriteToTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
