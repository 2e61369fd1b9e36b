// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stack controls the local Supabase container stack through its CLI.
package stack

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/t3chill/chill/cmd/chill/internal/infra/process"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("required dependency is nil")

// Controller starts, stops and inspects the container stack of one project.
type Controller interface {
	// Running reports whether the stack is up. An inconclusive status
	// check counts as not running.
	Running(ctx context.Context) bool

	// Start brings the stack up using the ports in the project's service
	// config. It returns when the stack is ready or the command failed.
	Start(ctx context.Context) error

	// Stop tears the stack down.
	Stop(ctx context.Context) error

	// Status returns the stack CLI's status report.
	Status(ctx context.Context) (string, error)
}

// SupabaseCLI drives `npx supabase` in the project directory.
type SupabaseCLI struct {
	dir  string
	proc process.Manager
	bin  string
	args []string
}

// NewSupabaseCLI creates a controller for the project at dir.
func NewSupabaseCLI(dir string, proc process.Manager) (*SupabaseCLI, error) {
	if proc == nil {
		return nil, fmt.Errorf("%w: process manager", ErrNilDependency)
	}
	return &SupabaseCLI{
		dir:  dir,
		proc: proc,
		bin:  "npx",
		args: []string{"supabase"},
	}, nil
}

func (s *SupabaseCLI) run(ctx context.Context, sub string) ([]byte, error) {
	args := append(append([]string{}, s.args...), sub)
	return s.proc.Run(ctx, s.dir, s.bin, args...)
}

// Running checks `supabase status`, which exits non-zero when the stack is
// down.
func (s *SupabaseCLI) Running(ctx context.Context) bool {
	_, err := s.run(ctx, "status")
	return err == nil
}

// Start runs `supabase start`.
func (s *SupabaseCLI) Start(ctx context.Context) error {
	if _, err := s.run(ctx, "start"); err != nil {
		return fmt.Errorf("start stack: %w", err)
	}
	return nil
}

// Stop runs `supabase stop`.
func (s *SupabaseCLI) Stop(ctx context.Context) error {
	if _, err := s.run(ctx, "stop"); err != nil {
		return fmt.Errorf("stop stack: %w", err)
	}
	return nil
}

// Status returns the trimmed output of `supabase status`.
func (s *SupabaseCLI) Status(ctx context.Context) (string, error) {
	out, err := s.run(ctx, "status")
	if err != nil {
		return "", fmt.Errorf("stack status: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockController is a test double. Nil funcs succeed; RunningFunc nil
// reports a stopped stack.
type MockController struct {
	RunningFunc func(ctx context.Context) bool
	StartFunc   func(ctx context.Context) error
	StopFunc    func(ctx context.Context) error
	StatusFunc  func(ctx context.Context) (string, error)

	mu     sync.Mutex
	starts int
	stops  int
}

// Running delegates to RunningFunc.
func (m *MockController) Running(ctx context.Context) bool {
	if m.RunningFunc == nil {
		return false
	}
	return m.RunningFunc(ctx)
}

// Start counts the call and delegates to StartFunc.
func (m *MockController) Start(ctx context.Context) error {
	m.mu.Lock()
	m.starts++
	m.mu.Unlock()
	if m.StartFunc == nil {
		return nil
	}
	return m.StartFunc(ctx)
}

// Stop counts the call and delegates to StopFunc.
func (m *MockController) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.stops++
	m.mu.Unlock()
	if m.StopFunc == nil {
		return nil
	}
	return m.StopFunc(ctx)
}

// Status delegates to StatusFunc.
func (m *MockController) Status(ctx context.Context) (string, error) {
	if m.StatusFunc == nil {
		return "", nil
	}
	return m.StatusFunc(ctx)
}

// Starts returns how many times Start was called.
func (m *MockController) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// Stops returns how many times Stop was called.
func (m *MockController) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

var (
	_ Controller = (*SupabaseCLI)(nil)
	_ Controller = (*MockController)(nil)
)
