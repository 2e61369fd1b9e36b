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
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

type createFlags struct {
	yes         bool
	skipInstall bool
	skipSetup   bool
	template    string
	watch       bool
}

type setupFlags struct {
	skipInstall bool
	watch       bool
	metricsFile string
	traceFile   string
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chill",
		Short: "Create and run T3 Chill projects locally",
		Long: `chill scaffolds a T3 Chill project (Next.js, Supabase, tRPC, Prisma,
Stripe) and brings up its local Supabase stack, resolving port conflicts
and checking the environment files before handing over.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.chill/chill.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&a.logJSON, "log-json", false, "write JSON logs to stderr")
	rootCmd.PersistentFlags().StringVar(&a.personality, "personality", "", "output style: full, standard, minimal, machine")

	// --- Project ---
	var cf createFlags
	createCmd := &cobra.Command{
		Use:   "create [project-name]",
		Short: "Create a new project from the template and set it up",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd, a, args, cf)
		},
	}
	createCmd.Flags().BoolVarP(&cf.yes, "yes", "y", false, "skip prompts and use defaults")
	createCmd.Flags().BoolVar(&cf.skipInstall, "skip-install", false, "skip installing dependencies")
	createCmd.Flags().BoolVar(&cf.skipSetup, "skip-setup", false, "skip database and container setup")
	createCmd.Flags().StringVar(&cf.template, "template", "", "template directory (default: bundled template)")
	createCmd.Flags().BoolVar(&cf.watch, "watch", false, "wait for environment file changes instead of a keypress")

	var sf setupFlags
	setupCmd := &cobra.Command{
		Use:   "setup [dir]",
		Short: "Bring up the local environment of an existing project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(cmd, a, projectDir(args), sf)
		},
	}
	setupCmd.Flags().BoolVar(&sf.skipInstall, "skip-install", false, "skip installing dependencies")
	setupCmd.Flags().BoolVar(&sf.watch, "watch", false, "wait for environment file changes instead of a keypress")
	setupCmd.Flags().StringVar(&sf.metricsFile, "metrics-file", "", "write setup metrics in Prometheus text format to this file")
	setupCmd.Flags().StringVar(&sf.traceFile, "trace-file", "", "write setup trace spans as JSON to this file")

	// --- Stack ---
	portsCmd := &cobra.Command{
		Use:   "ports [dir]",
		Short: "Show the project's port allocation and any conflicts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPorts(cmd, a, projectDir(args))
		},
	}
	statusCmd := &cobra.Command{
		Use:   "status [dir]",
		Short: "Show the status of the project's Supabase stack",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, a, projectDir(args))
		},
	}
	stopCmd := &cobra.Command{
		Use:   "stop [dir]",
		Short: "Stop the project's Supabase stack",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd, a, projectDir(args))
		},
	}

	// --- Host ---
	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that Node.js and Docker are ready",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, a)
		},
	}

	rootCmd.AddCommand(createCmd, setupCmd, portsCmd, statusCmd, stopCmd, doctorCmd)
	return rootCmd
}

func projectDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}
