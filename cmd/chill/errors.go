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
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/t3chill/chill/cmd/chill/internal/remedy"
	"github.com/t3chill/chill/cmd/chill/internal/setup"
	"github.com/t3chill/chill/cmd/chill/internal/terminal"
	"github.com/t3chill/chill/pkg/ux"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
)

// exitCode prints the outcome of a command and returns the process exit
// code. An interrupt is a normal exit.
func exitCode(ctx context.Context, err error) int {
	if err == nil {
		return exitOK
	}
	if interrupted(ctx, err) {
		fmt.Fprintln(ux.Stdout(), "\n👋 Goodbye!")
		return exitOK
	}
	reportError(err)
	return exitFailure
}

func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, terminal.ErrInterrupted) ||
		errors.Is(err, huh.ErrUserAborted)
}

// reportError shows the causal chain, the remediation hints found along it,
// and how to re-run a failed setup.
func reportError(err error) {
	title := "Error"
	var stepErr *setup.StepError
	if errors.As(err, &stepErr) {
		title = "Setup failed: " + stepErr.Step
	}
	ux.ErrorBox(title, err.Error())

	if hints := remedy.Collect(err); len(hints) > 0 {
		ux.Info("💡 Troubleshooting suggestions:")
		ux.List(hints)
	}

	if stepErr != nil {
		ux.Info("🔄 You can try running the setup again with:")
		ux.List([]string{
			"chill setup (inside the project directory)",
			"npm run dev (to start development)",
		})
	}
}
