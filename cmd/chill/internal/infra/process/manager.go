// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// =============================================================================
// Interface
// =============================================================================

// Manager runs external commands.
type Manager interface {
	// Run executes name with args in dir and returns stdout. On failure the
	// error is a *CommandError carrying the exit code and stderr. The
	// process is killed when ctx is done.
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)

	// RunAttached executes the command with its output streamed to stdout
	// and stderr. Used for long installs whose progress the operator
	// should see.
	RunAttached(ctx context.Context, dir string, stdout, stderr io.Writer, name string, args ...string) error

	// LookPath reports where name is installed.
	LookPath(name string) (string, error)
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultManager runs real processes with os/exec.
type DefaultManager struct{}

// NewDefaultManager creates a DefaultManager.
func NewDefaultManager() *DefaultManager {
	return &DefaultManager{}
}

// Run executes the command and captures its output.
func (m *DefaultManager) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), wrapRunError(ctx, err, name, args, stderr.String())
	}
	return stdout.Bytes(), nil
}

// RunAttached executes the command with streamed output.
func (m *DefaultManager) RunAttached(ctx context.Context, dir string, stdout, stderr io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = stdout

	var tail bytes.Buffer
	if stderr != nil {
		cmd.Stderr = io.MultiWriter(stderr, &tail)
	} else {
		cmd.Stderr = &tail
	}

	if err := cmd.Run(); err != nil {
		return wrapRunError(ctx, err, name, args, tail.String())
	}
	return nil
}

// LookPath wraps exec.LookPath.
func (m *DefaultManager) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func wrapRunError(ctx context.Context, err error, name string, args []string, stderr string) error {
	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = errors.Join(ctxErr, err)
	}
	return NewCommandError(strings.Join(append([]string{name}, args...), " "), exitCode, stderr, err)
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockManager is a test double with injectable behavior and call recording.
type MockManager struct {
	RunFunc         func(ctx context.Context, dir, name string, args ...string) ([]byte, error)
	RunAttachedFunc func(ctx context.Context, dir string, stdout, stderr io.Writer, name string, args ...string) error
	LookPathFunc    func(name string) (string, error)

	// Calls records every invocation in order.
	Calls []Call

	mu sync.Mutex
}

// Call is one recorded MockManager invocation.
type Call struct {
	Method string
	Dir    string
	Name   string
	Args   []string
}

// CommandLine returns "name arg1 arg2".
func (c Call) CommandLine() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

func (m *MockManager) record(c Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, c)
}

// Run records the call and delegates to RunFunc.
func (m *MockManager) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	m.record(Call{Method: "Run", Dir: dir, Name: name, Args: args})
	if m.RunFunc == nil {
		panic("MockManager.RunFunc not set")
	}
	return m.RunFunc(ctx, dir, name, args...)
}

// RunAttached records the call and delegates to RunAttachedFunc, falling
// back to RunFunc with the output copied to stdout.
func (m *MockManager) RunAttached(ctx context.Context, dir string, stdout, stderr io.Writer, name string, args ...string) error {
	m.record(Call{Method: "RunAttached", Dir: dir, Name: name, Args: args})
	if m.RunAttachedFunc != nil {
		return m.RunAttachedFunc(ctx, dir, stdout, stderr, name, args...)
	}
	if m.RunFunc == nil {
		panic("MockManager.RunAttachedFunc not set")
	}
	out, err := m.RunFunc(ctx, dir, name, args...)
	if stdout != nil {
		_, _ = stdout.Write(out)
	}
	return err
}

// LookPath records the call and delegates to LookPathFunc. Without a
// LookPathFunc every binary is reported under /usr/bin.
func (m *MockManager) LookPath(name string) (string, error) {
	m.record(Call{Method: "LookPath", Name: name})
	if m.LookPathFunc == nil {
		return "/usr/bin/" + name, nil
	}
	return m.LookPathFunc(name)
}

// GetCalls returns a copy of the recorded calls.
func (m *MockManager) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.Calls))
	copy(out, m.Calls)
	return out
}

// CountCalls returns how many recorded calls have a command line starting
// with prefix.
func (m *MockManager) CountCalls(prefix string) int {
	n := 0
	for _, c := range m.GetCalls() {
		if strings.HasPrefix(c.CommandLine(), prefix) {
			n++
		}
	}
	return n
}

// Compile-time interface checks.
var (
	_ Manager = (*DefaultManager)(nil)
	_ Manager = (*MockManager)(nil)
)
