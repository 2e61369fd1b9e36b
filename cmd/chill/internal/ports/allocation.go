// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package ports finds free local TCP ports for the backing-services stack.

# Overview

Two pieces live here:

  - Prober answers "is this port free on this host". TCPProber binds the
    port to find out; FindNextAvailable scans upward from a start port.
  - Allocator turns a {service → default port} table into a collision-free
    Allocation, keeping defaults where possible and scanning past busy or
    already-claimed ports otherwise.

# Example

	alloc := ports.NewAllocator(ports.NewTCPProber("127.0.0.1", ports.PolicyOptimistic), ports.AllocatorConfig{})
	a, err := alloc.Allocate(ctx, ports.DefaultAllocation(), false)
	if err != nil {
	    return err // wraps ErrPortExhausted
	}
	fmt.Println(a.Port(ports.API))

# Limitations

A port reported free can be taken by another process before the stack
binds it. Callers re-check with Allocator.Conflicts right before starting.
*/
package ports

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Service names a member of the backing-services stack.
type Service string

const (
	API            Service = "api"
	Database       Service = "db"
	Studio         Service = "studio"
	Inbucket       Service = "inbucket"
	Analytics      Service = "analytics"
	ShadowDatabase Service = "shadow_db"
)

// Order is the fixed order in which services are allocated. Reassignment
// logs read top-to-bottom in this order.
var Order = []Service{API, Database, Studio, Inbucket, Analytics, ShadowDatabase}

// Default ports used by a fresh Supabase project.
const (
	DefaultAPIPort       = 54321
	DefaultDatabasePort  = 54322
	DefaultShadowPort    = 54320
	DefaultStudioPort    = 54323
	DefaultInbucketPort  = 54324
	DefaultAnalyticsPort = 54327
)

// MaxPort is the highest valid TCP port.
const MaxPort = 65535

// ErrInvalidAllocation is returned by Allocation.Validate.
var ErrInvalidAllocation = errors.New("invalid port allocation")

// Allocation maps each service to the TCP port it should bind.
type Allocation map[Service]int

// DefaultAllocation returns the default port table.
func DefaultAllocation() Allocation {
	return Allocation{
		API:            DefaultAPIPort,
		Database:       DefaultDatabasePort,
		Studio:         DefaultStudioPort,
		Inbucket:       DefaultInbucketPort,
		Analytics:      DefaultAnalyticsPort,
		ShadowDatabase: DefaultShadowPort,
	}
}

// Port returns the port for s, or 0 when s is not allocated.
func (a Allocation) Port(s Service) int {
	return a[s]
}

// Clone returns an independent copy.
func (a Allocation) Clone() Allocation {
	out := make(Allocation, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Equal reports whether both allocations assign the same ports.
func (a Allocation) Equal(b Allocation) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// Services returns the allocated services in Order, followed by any
// unknown service names sorted alphabetically.
func (a Allocation) Services() []Service {
	out := make([]Service, 0, len(a))
	known := make(map[Service]bool, len(Order))
	for _, s := range Order {
		known[s] = true
		if _, ok := a[s]; ok {
			out = append(out, s)
		}
	}
	var extra []Service
	for s := range a {
		if !known[s] {
			extra = append(extra, s)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

// Validate checks that every port is in range and no two services share a
// port.
func (a Allocation) Validate() error {
	owner := make(map[int]Service, len(a))
	for _, s := range a.Services() {
		p := a[s]
		if p < 1 || p > MaxPort {
			return fmt.Errorf("%w: %s port %d out of range", ErrInvalidAllocation, s, p)
		}
		if prev, dup := owner[p]; dup {
			return fmt.Errorf("%w: %s and %s both use port %d", ErrInvalidAllocation, prev, s, p)
		}
		owner[p] = s
	}
	return nil
}

// String renders "api=54321 db=54322 ..." in Order.
func (a Allocation) String() string {
	parts := make([]string, 0, len(a))
	for _, s := range a.Services() {
		parts = append(parts, fmt.Sprintf("%s=%d", s, a[s]))
	}
	return strings.Join(parts, " ")
}
