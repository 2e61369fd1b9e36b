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
	"fmt"

	"github.com/t3chill/chill/pkg/logging"
)

// DefaultScanLimit bounds the forward scan for a single service.
const DefaultScanLimit = 10

// AllocatorConfig configures an Allocator.
type AllocatorConfig struct {
	// ScanLimit is the number of ports probed per service before giving up.
	// Default: DefaultScanLimit.
	ScanLimit int

	// Logger receives the reassignment diff. Default: discard.
	Logger *logging.Logger

	// Notify, when set, is called once per reassigned service with the
	// human-readable diff ("api: 54321 → 54323").
	Notify func(r Reassignment)
}

// Reassignment records a service that could not keep its requested port.
type Reassignment struct {
	Service   Service
	Requested int
	Assigned  int
}

// String renders "service: requested → assigned".
func (r Reassignment) String() string {
	return fmt.Sprintf("%s: %d → %d", r.Service, r.Requested, r.Assigned)
}

// Conflict is a service whose allocated port is no longer free.
type Conflict struct {
	Service Service
	Port    int
}

// String renders "service: port".
func (c Conflict) String() string {
	return fmt.Sprintf("%s: %d", c.Service, c.Port)
}

// Allocator produces collision-free allocations.
type Allocator struct {
	prober Prober
	config AllocatorConfig
}

// NewAllocator creates an Allocator backed by prober.
func NewAllocator(prober Prober, config AllocatorConfig) *Allocator {
	if config.ScanLimit <= 0 {
		config.ScanLimit = DefaultScanLimit
	}
	if config.Logger == nil {
		config.Logger = logging.Nop()
	}
	return &Allocator{prober: prober, config: config}
}

// Allocate assigns a port to every service in requested.
//
// The pass runs in two phases over Order. First every service whose
// requested port is free and not yet claimed keeps it. Then each remaining
// service scans upward from requested+1, skipping ports claimed so far, and
// claims the first free one. A PortExhausted failure for any service fails
// the whole allocation.
//
// With forceRescan the first phase is skipped and every service moves above
// its requested port, so passing the previously tried allocation yields a
// different one.
func (a *Allocator) Allocate(ctx context.Context, requested Allocation, forceRescan bool) (Allocation, error) {
	services := requested.Services()
	result := make(Allocation, len(requested))
	claimed := make(map[int]bool, len(requested))
	isClaimed := func(p int) bool { return claimed[p] }

	var pending []Service
	for _, svc := range services {
		want := requested[svc]
		if !forceRescan && !claimed[want] && a.prober.IsAvailable(ctx, want) {
			result[svc] = want
			claimed[want] = true
			continue
		}
		pending = append(pending, svc)
	}

	var moved []Reassignment
	for _, svc := range pending {
		want := requested[svc]
		got, err := scan(ctx, a.prober, want+1, a.config.ScanLimit, isClaimed)
		if err != nil {
			a.config.Logger.Error("port allocation failed", "service", string(svc), "requested", want, "error", err)
			return nil, fmt.Errorf("allocate %s: %w", svc, err)
		}
		result[svc] = got
		claimed[got] = true
		moved = append(moved, Reassignment{Service: svc, Requested: want, Assigned: got})
	}

	for _, r := range moved {
		a.config.Logger.Info("port reassigned",
			"service", string(r.Service),
			"requested", r.Requested,
			"assigned", r.Assigned,
			"diff", r.String(),
		)
		if a.config.Notify != nil {
			a.config.Notify(r)
		}
	}
	if len(moved) > 0 {
		a.config.Logger.Info("port conflicts resolved", "reassigned", len(moved), "forced", forceRescan)
	}

	return result, nil
}

// Conflicts re-probes every port in alloc and returns those that are no
// longer free, in Order.
func (a *Allocator) Conflicts(ctx context.Context, alloc Allocation) []Conflict {
	var conflicts []Conflict
	for _, svc := range alloc.Services() {
		if !a.prober.IsAvailable(ctx, alloc[svc]) {
			conflicts = append(conflicts, Conflict{Service: svc, Port: alloc[svc]})
		}
	}
	return conflicts
}
