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
	"errors"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/t3chill/chill/cmd/chill/internal/prereq"
	"github.com/t3chill/chill/cmd/chill/internal/project"
	"github.com/t3chill/chill/pkg/ux"
	"github.com/t3chill/chill/pkg/validation"
)

func runCreate(cmd *cobra.Command, a *app, args []string, f createFlags) error {
	ctx := cmd.Context()

	if err := checkPrerequisites(cmd, a); err != nil {
		return err
	}

	name, err := resolveProjectName(args, f.yes)
	if err != nil {
		return err
	}
	tmpl, err := project.FindTemplate(f.template)
	if err != nil {
		return err
	}

	ux.Step("📁 Creating project...")
	p, err := project.Create(ctx, name, tmpl, ".", a.logger)
	if err != nil {
		return err
	}
	ux.Success("Project created successfully!")
	ux.Muted("  Location: " + p.Path)

	if f.skipSetup {
		ux.Info("Next steps:")
		ux.List([]string{"cd " + p.Name, "npm install", "chill setup", "npm run dev"})
		ux.Muted("Setup was skipped. Run chill setup inside the project when ready.")
		return nil
	}

	_, err = setupProject(ctx, a, p.Path, f.skipInstall, f.watch)
	return err
}

// resolveProjectName returns the name argument, the default under --yes or
// without a terminal, or asks for one.
func resolveProjectName(args []string, yes bool) (string, error) {
	if len(args) > 0 {
		if err := validation.ValidateProjectName(args[0]); err != nil {
			return "", err
		}
		return args[0], nil
	}
	if yes || !ux.IsTerminal(os.Stdin.Fd()) {
		return project.DefaultName, nil
	}

	name := project.DefaultName
	err := huh.NewInput().
		Title("Enter a name for your project").
		Value(&name).
		Validate(validateNewProjectName).
		Run()
	if err != nil {
		return "", err
	}
	return name, nil
}

// validateNewProjectName reports the first broken naming rule, or an
// existing directory, in the form shown under the input.
func validateNewProjectName(name string) error {
	if err := validation.ValidateProjectName(name); err != nil {
		var pe *validation.ProjectNameError
		if errors.As(err, &pe) {
			return errors.New(pe.First())
		}
		return err
	}
	if _, err := os.Stat(name); err == nil {
		return errors.New("Directory already exists")
	}
	return nil
}

func checkPrerequisites(cmd *cobra.Command, a *app) error {
	checker, err := prereq.NewChecker(a.proc, prereq.Config{Logger: a.logger})
	if err != nil {
		return err
	}
	ux.Step("🔍 Checking prerequisites...")
	report, err := checker.Require(cmd.Context())
	if report != nil {
		report.Print()
	}
	return err
}
