// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/t3chill/chill/cmd/chill/internal/infra/stack"
	"github.com/t3chill/chill/cmd/chill/internal/ports"
	"github.com/t3chill/chill/cmd/chill/internal/reconcile"
	"github.com/t3chill/chill/cmd/chill/internal/setup"
	"github.com/t3chill/chill/pkg/ux"
)

func runPorts(cmd *cobra.Command, a *app, dir string) error {
	ctx := cmd.Context()

	rec := reconcile.New(dir, reconcile.Config{Defaults: a.cfg.Allocation(), Logger: a.logger})
	alloc, err := rec.ReadAllocation()
	if err != nil {
		return err
	}

	ux.Title("Port allocation")
	for _, svc := range ports.Order {
		if port, ok := alloc[svc]; ok {
			ux.KeyValue(string(svc), strconv.Itoa(port))
		}
	}

	st, err := stack.NewSupabaseCLI(dir, a.proc)
	if err != nil {
		return err
	}
	// A running stack holds its own ports, so probing them says nothing.
	if st.Running(ctx) {
		ux.Success("Supabase stack is running on these ports")
		setup.PrintURLs(alloc)
		return nil
	}

	policy, err := ports.ParseProbePolicy(a.cfg.Probe.Policy)
	if err != nil {
		return err
	}
	allocator := ports.NewAllocator(ports.NewTCPProber(a.cfg.Probe.Host, policy), ports.AllocatorConfig{Logger: a.logger})
	conflicts := allocator.Conflicts(ctx, alloc)
	if len(conflicts) == 0 {
		ux.Success("All ports are free")
		return nil
	}
	items := make([]string, len(conflicts))
	for i, c := range conflicts {
		items[i] = c.String()
	}
	ux.Warning(fmt.Sprintf("%d port(s) in use by another process; setup will move them:", len(conflicts)))
	ux.List(items)
	return nil
}

func runStatus(cmd *cobra.Command, a *app, dir string) error {
	st, err := stack.NewSupabaseCLI(dir, a.proc)
	if err != nil {
		return err
	}
	out, err := st.Status(cmd.Context())
	if err != nil {
		ux.Warning("Supabase stack is not running")
		return err
	}
	fmt.Fprintln(ux.Stdout(), strings.TrimRight(out, "\n"))
	return nil
}

func runStop(cmd *cobra.Command, a *app, dir string) error {
	ctx := cmd.Context()
	st, err := stack.NewSupabaseCLI(dir, a.proc)
	if err != nil {
		return err
	}
	if !st.Running(ctx) {
		ux.Info("Supabase stack is not running")
		return nil
	}
	return ux.WithSpinner("Stopping Supabase containers", func() error {
		return st.Stop(ctx)
	})
}
