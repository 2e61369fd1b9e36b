// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lifecycle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/t3chill/chill/cmd/chill/internal/ports"
)

// State is the position of the container stack in its lifecycle.
//
//	Unchecked ──► Running
//	    │
//	    └──────► Stopped ──► Starting ──► Started
//	                            ▲   │
//	                            │   ▼
//	                            └─ Failed   (at most MaxRetries starts)
type State int

const (
	StateUnchecked State = iota
	StateRunning
	StateStopped
	StateStarting
	StateStarted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnchecked:
		return "unchecked"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Up reports whether the stack is serving.
func (s State) Up() bool {
	return s == StateRunning || s == StateStarted
}

// validTransitions lists the states reachable from each state.
var validTransitions = map[State][]State{
	StateUnchecked: {StateRunning, StateStopped},
	StateStopped:   {StateStarting},
	StateStarting:  {StateStarted, StateFailed},
	StateFailed:    {StateStarting},
}

func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is a programming error in the lifecycle loop.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// ErrContainerStartFailed is matched by StartError after every start
// attempt has failed.
var ErrContainerStartFailed = errors.New("container start failed")

// Attempt records one start attempt.
type Attempt struct {
	Number     int
	Allocation ports.Allocation
	Err        error
	Duration   time.Duration
}

// StartError is returned when the stack could not be started within the
// retry budget.
type StartError struct {
	Attempts []Attempt
	Cause    error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("%v: %d attempts failed: %v", ErrContainerStartFailed, len(e.Attempts), e.Cause)
}

// Is matches ErrContainerStartFailed.
func (e *StartError) Is(target error) bool {
	return target == ErrContainerStartFailed
}

// Unwrap returns the last start failure.
func (e *StartError) Unwrap() error {
	return e.Cause
}

// Suggestions lists the usual remedies, naming the ports of the last
// attempt.
func (e *StartError) Suggestions() []string {
	var portList string
	if n := len(e.Attempts); n > 0 {
		alloc := e.Attempts[n-1].Allocation
		var parts []string
		for _, svc := range alloc.Services() {
			parts = append(parts, fmt.Sprintf("%d", alloc[svc]))
		}
		portList = " " + strings.Join(parts, ", ")
	}
	return []string{
		"Ensure Docker Desktop is running",
		"Check if ports" + portList + " are available",
		"Try: npx supabase stop && npx supabase start",
		"Check Docker logs for more details",
	}
}
