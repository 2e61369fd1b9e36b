// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ports

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"syscall"
)

// ErrPortExhausted is matched by every ExhaustedError.
var ErrPortExhausted = errors.New("port exhausted")

// ExhaustedError reports a scan that found no free port.
type ExhaustedError struct {
	Start    int
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("could not find an available port starting from %d (tried %d ports)", e.Start, e.Attempts)
}

// Is makes errors.Is(err, ErrPortExhausted) true.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrPortExhausted
}

// Suggestions implements remedy.Suggester.
func (e *ExhaustedError) Suggestions() []string {
	return []string{
		fmt.Sprintf("Free up ports near %d (lsof -i :%d shows the owner)", e.Start, e.Start),
		"Stop other local Supabase projects: npx supabase stop --all",
	}
}

// =============================================================================
// Prober
// =============================================================================

// Prober reports whether a local TCP port can be bound.
//
// Implementations must not fail: any inability to decide is resolved by
// the implementation's own policy.
type Prober interface {
	IsAvailable(ctx context.Context, port int) bool
}

// ProbePolicy decides what an inconclusive probe means.
type ProbePolicy int

const (
	// PolicyOptimistic treats an inconclusive probe as free. The stack start
	// is the authoritative check.
	PolicyOptimistic ProbePolicy = iota

	// PolicyStrict treats an inconclusive probe as busy.
	PolicyStrict
)

// String returns "optimistic" or "strict".
func (p ProbePolicy) String() string {
	if p == PolicyStrict {
		return "strict"
	}
	return "optimistic"
}

// ParseProbePolicy maps config values to a policy.
func ParseProbePolicy(s string) (ProbePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "optimistic":
		return PolicyOptimistic, nil
	case "strict", "pessimistic":
		return PolicyStrict, nil
	default:
		return PolicyOptimistic, fmt.Errorf("unknown probe policy %q", s)
	}
}

// TCPProber probes by binding host:port and releasing it immediately.
type TCPProber struct {
	Host   string
	Policy ProbePolicy

	listen func(ctx context.Context, network, address string) (net.Listener, error)
}

// NewTCPProber creates a prober for host ("" means all interfaces).
func NewTCPProber(host string, policy ProbePolicy) *TCPProber {
	var lc net.ListenConfig
	return &TCPProber{
		Host:   host,
		Policy: policy,
		listen: lc.Listen,
	}
}

// IsAvailable binds the port. Address-in-use means busy; any other bind
// failure is resolved by Policy.
func (p *TCPProber) IsAvailable(ctx context.Context, port int) bool {
	if port < 1 || port > MaxPort {
		return false
	}
	if ctx.Err() != nil {
		return p.Policy == PolicyOptimistic
	}

	listen := p.listen
	if listen == nil {
		var lc net.ListenConfig
		listen = lc.Listen
	}

	ln, err := listen(ctx, "tcp", net.JoinHostPort(p.Host, strconv.Itoa(port)))
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return false
		}
		return p.Policy == PolicyOptimistic
	}
	_ = ln.Close()
	return true
}

// FindNextAvailable scans start, start+1, ... and returns the first port the
// prober reports free. At most maxAttempts ports are probed.
func FindNextAvailable(ctx context.Context, prober Prober, start, maxAttempts int) (int, error) {
	return scan(ctx, prober, start, maxAttempts, nil)
}

// scan is FindNextAvailable with a skip predicate. Skipped ports are not
// probed and do not count as attempts.
func scan(ctx context.Context, prober Prober, start, maxAttempts int, skip func(int) bool) (int, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	tried := 0
	for port := start; port <= MaxPort && tried < maxAttempts; port++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if port < 1 || (skip != nil && skip(port)) {
			continue
		}
		tried++
		if prober.IsAvailable(ctx, port) {
			return port, nil
		}
	}
	return 0, &ExhaustedError{Start: start, Attempts: tried}
}

var _ Prober = (*TCPProber)(nil)
