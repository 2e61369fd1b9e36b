// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lifecycle brings the local container stack up on a collision-free
// port allocation, retrying a bounded number of times with a fresh
// allocation after each failed start.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/t3chill/chill/cmd/chill/internal/ports"
	"github.com/t3chill/chill/cmd/chill/internal/telemetry"
	"github.com/t3chill/chill/pkg/logging"
)

// Defaults.
const (
	DefaultMaxRetries   = 3
	DefaultStartTimeout = 120 * time.Second
	DefaultStopTimeout  = 60 * time.Second
)

// ErrNilDependency is returned by NewManager when a dependency is nil.
var ErrNilDependency = errors.New("required dependency is nil")

// =============================================================================
// Dependencies
// =============================================================================

// Stack controls the container stack.
type Stack interface {
	Running(ctx context.Context) bool
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Allocator produces port allocations.
type Allocator interface {
	Allocate(ctx context.Context, requested ports.Allocation, forceRescan bool) (ports.Allocation, error)
	Conflicts(ctx context.Context, alloc ports.Allocation) []ports.Conflict
}

// Reconciler writes an allocation into the project's configuration and
// reads it back.
type Reconciler interface {
	Apply(alloc ports.Allocation) error
	ReadAllocation() (ports.Allocation, error)
}

// Config configures a Manager.
type Config struct {
	// MaxRetries is the number of start attempts. Default: 3.
	MaxRetries int

	// StartTimeout bounds each start attempt. Default: 120s.
	StartTimeout time.Duration

	// StopTimeout bounds the best-effort stop after a failed start.
	// Default: 60s.
	StopTimeout time.Duration

	// BackOff paces retries. Default: exponential from 2s. Use
	// &backoff.ZeroBackOff{} to retry immediately.
	BackOff backoff.BackOff

	// Defaults is the allocation requested on the first attempt.
	// Default: ports.DefaultAllocation().
	Defaults ports.Allocation

	// Logger. Default: discard.
	Logger *logging.Logger

	// Metrics. Nil records nothing.
	Metrics *telemetry.Metrics
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 15 * time.Second
	return b
}

// =============================================================================
// Manager
// =============================================================================

// Manager drives the stack from Unchecked to Running or Started.
//
// # Thread Safety
//
// EnsureRunning calls are serialized. State and Attempts may be read
// concurrently.
type Manager struct {
	stack      Stack
	allocator  Allocator
	reconciler Reconciler
	config     Config
	logger     *logging.Logger

	run      sync.Mutex
	mu       sync.RWMutex
	state    State
	attempts []Attempt
}

// NewManager creates a Manager.
func NewManager(stack Stack, allocator Allocator, reconciler Reconciler, config Config) (*Manager, error) {
	if stack == nil {
		return nil, fmt.Errorf("%w: stack", ErrNilDependency)
	}
	if allocator == nil {
		return nil, fmt.Errorf("%w: allocator", ErrNilDependency)
	}
	if reconciler == nil {
		return nil, fmt.Errorf("%w: reconciler", ErrNilDependency)
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.StartTimeout <= 0 {
		config.StartTimeout = DefaultStartTimeout
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = DefaultStopTimeout
	}
	if config.BackOff == nil {
		config.BackOff = defaultBackOff()
	}
	if config.Defaults == nil {
		config.Defaults = ports.DefaultAllocation()
	}
	if config.Logger == nil {
		config.Logger = logging.Nop()
	}
	return &Manager{
		stack:      stack,
		allocator:  allocator,
		reconciler: reconciler,
		config:     config,
		logger:     config.Logger,
	}, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Attempts returns a copy of the start attempts of the last EnsureRunning.
func (m *Manager) Attempts() []Attempt {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Attempt, len(m.attempts))
	copy(out, m.attempts)
	return out
}

func (m *Manager) transition(to State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !canTransition(m.state, to) {
		panic(fmt.Sprintf("%v: %s → %s", ErrInvalidTransition, m.state, to))
	}
	m.logger.Debug("lifecycle transition", "from", m.state.String(), "to", to.String())
	m.state = to
}

func (m *Manager) record(a Attempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, a)
}

func (m *Manager) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateUnchecked
	m.attempts = nil
}

// EnsureRunning makes sure the stack is up and returns the allocation it
// is running on.
//
// # Description
//
// If the stack is already running, the allocation is read back from the
// service config and returned without calling Start or Stop. Otherwise a
// fresh allocation is computed, written to every owned file, and the stack
// is started. A failed or timed-out start is followed by a best-effort
// stop, a forced rescan from the allocation just tried, a rewrite of the
// files, and a new attempt. At most MaxRetries starts are made.
//
// # Outputs
//
//   - ports.Allocation: the allocation the stack is serving on. It is the
//     one last written to the service config.
//   - error: PortExhausted or ConfigWriteFailed from allocation and
//     reconciliation, *StartError when every attempt failed, or the
//     context error on cancellation.
//
// # Limitations
//
//   - Assumes a single chill process per project directory.
func (m *Manager) EnsureRunning(ctx context.Context) (alloc ports.Allocation, err error) {
	m.run.Lock()
	defer m.run.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lifecycle panic: %v", r)
			alloc = nil
		}
	}()

	ctx, span := telemetry.Tracer().Start(ctx, "lifecycle.EnsureRunning")
	defer span.End()

	m.reset()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Phase 1: already running means nothing to do
	if m.stack.Running(ctx) {
		m.transition(StateRunning)
		current, err := m.reconciler.ReadAllocation()
		if err != nil {
			return nil, err
		}
		m.logger.Info("container stack already running", "ports", current.String())
		span.SetAttributes(attribute.Bool("already_running", true))
		return current, nil
	}
	m.transition(StateStopped)

	// Phase 2: initial allocation
	alloc, err = m.allocator.Allocate(ctx, m.config.Defaults, false)
	if err != nil {
		return nil, err
	}
	if err := m.reconciler.Apply(alloc); err != nil {
		return nil, err
	}

	// Phase 3: bounded start loop
	m.config.BackOff.Reset()
	var lastErr error
	for n := 1; n <= m.config.MaxRetries; n++ {
		if n > 1 {
			if err := m.wait(ctx); err != nil {
				return nil, err
			}
			if alloc, err = m.reallocate(ctx, alloc); err != nil {
				return nil, err
			}
		}

		if conflicts := m.allocator.Conflicts(ctx, alloc); len(conflicts) > 0 {
			m.logger.Warn("allocated ports taken before start, rescanning", "conflicts", fmt.Sprint(conflicts))
			if alloc, err = m.reallocate(ctx, alloc); err != nil {
				return nil, err
			}
		}

		m.transition(StateStarting)
		startErr := m.startOnce(ctx, n, alloc)
		if startErr == nil {
			m.transition(StateStarted)
			return alloc, nil
		}
		m.transition(StateFailed)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = startErr
		m.stopQuietly(ctx)
	}

	span.SetStatus(codes.Error, "start attempts exhausted")
	return nil, &StartError{Attempts: m.Attempts(), Cause: lastErr}
}

// reallocate moves every service above prev and rewrites the owned files.
func (m *Manager) reallocate(ctx context.Context, prev ports.Allocation) (ports.Allocation, error) {
	next, err := m.allocator.Allocate(ctx, prev, true)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.reconciler.Apply(next); err != nil {
		return nil, err
	}
	m.logger.Info("retrying with new ports", "previous", prev.String(), "ports", next.String())
	return next, nil
}

// startOnce runs one start bounded by StartTimeout. The Start call runs in
// its own goroutine so a controller that ignores its context cannot hold
// the loop past the timeout.
func (m *Manager) startOnce(ctx context.Context, n int, alloc ports.Allocation) error {
	ctx, span := telemetry.Tracer().Start(ctx, "lifecycle.start")
	defer span.End()
	span.SetAttributes(
		attribute.Int("attempt", n),
		attribute.String("ports", alloc.String()),
	)

	m.logger.Info("starting container stack", "attempt", n, "max_attempts", m.config.MaxRetries, "ports", alloc.String())

	startCtx, cancel := context.WithTimeout(ctx, m.config.StartTimeout)
	defer cancel()

	begin := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- m.stack.Start(startCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-startCtx.Done():
		err = fmt.Errorf("start timed out after %v: %w", m.config.StartTimeout, startCtx.Err())
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	elapsed := time.Since(begin)
	m.record(Attempt{Number: n, Allocation: alloc.Clone(), Err: err, Duration: elapsed})
	m.config.Metrics.StartAttempt(err == nil)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start failed")
		m.logger.Warn("container stack start failed", "attempt", n, "duration", elapsed.String(), "error", err)
		return err
	}
	m.logger.Info("container stack started", "attempt", n, "duration", elapsed.String())
	return nil
}

// stopQuietly tears down a half-started stack. Failures are logged only.
func (m *Manager) stopQuietly(ctx context.Context) {
	stopCtx, cancel := context.WithTimeout(ctx, m.config.StopTimeout)
	defer cancel()
	if err := m.stack.Stop(stopCtx); err != nil {
		m.logger.Debug("cleanup stop failed", "error", err)
	}
}

func (m *Manager) wait(ctx context.Context) error {
	d := m.config.BackOff.NextBackOff()
	if d <= 0 {
		return ctx.Err()
	}
	m.logger.Debug("waiting before retry", "delay", d.String())
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Stop stops the stack. A stack that is not running is left alone.
func (m *Manager) Stop(ctx context.Context) error {
	m.run.Lock()
	defer m.run.Unlock()

	if !m.stack.Running(ctx) {
		m.logger.Info("container stack not running")
		return nil
	}
	stopCtx, cancel := context.WithTimeout(ctx, m.config.StopTimeout)
	defer cancel()
	return m.stack.Stop(stopCtx)
}
