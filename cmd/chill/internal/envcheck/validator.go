// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package envcheck verifies that a project's environment files define every
// variable the app needs, and loops with the operator until they do.
package envcheck

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/t3chill/chill/cmd/chill/internal/reconcile"
	"github.com/t3chill/chill/cmd/chill/internal/telemetry"
	"github.com/t3chill/chill/pkg/logging"
	"github.com/t3chill/chill/pkg/ux"
)

var (
	// ErrEnvironmentIncomplete means required variables are still missing
	// or hold placeholders.
	ErrEnvironmentIncomplete = errors.New("environment incomplete")

	// ErrOptionalConfigIncomplete means optional billing variables are
	// missing and the operator did not accept degraded mode.
	ErrOptionalConfigIncomplete = errors.New("optional config incomplete")

	// ErrNilDependency is returned by NewValidator when the prompter is nil.
	ErrNilDependency = errors.New("required dependency is nil")
)

// Prompts shown to the operator.
const (
	PromptRequiredRetry = "Please update your environment files and press any key to retry..."
	PromptOptionalSkip  = "Do you want to continue without Stripe? (Y/n)"
	PromptOptionalRetry = "Please add your Stripe environment variables and press any key to retry..."
)

// Prompter is the interactive capability the validation loops need.
type Prompter interface {
	// PromptContinue shows msg and blocks until the operator is ready.
	PromptContinue(ctx context.Context, msg string) error

	// PromptYesNo asks a yes/no question; an empty or unrecognised answer
	// yields defaultYes.
	PromptYesNo(ctx context.Context, msg string, defaultYes bool) (bool, error)
}

// IncompleteError carries the issues left when validation stopped.
type IncompleteError struct {
	Optional bool
	Result   Result
}

func (e *IncompleteError) sentinel() error {
	if e.Optional {
		return ErrOptionalConfigIncomplete
	}
	return ErrEnvironmentIncomplete
}

func (e *IncompleteError) Error() string {
	issues := e.Result.Strings()
	if len(issues) == 0 {
		return e.sentinel().Error()
	}
	return fmt.Sprintf("%v: %s", e.sentinel(), strings.Join(issues, ", "))
}

// Is matches the phase's sentinel.
func (e *IncompleteError) Is(target error) bool {
	return target == e.sentinel()
}

// Suggestions tells the operator how to finish.
func (e *IncompleteError) Suggestions() []string {
	if e.Optional {
		return []string{
			"Add the Stripe keys to .env.local to enable billing",
			"Or re-run setup and answer Y to continue without Stripe",
		}
	}
	return []string{
		"Update .env and .env.local with the values listed above",
		"LOCAL_ANON_KEY: copy the anon key from `npx supabase status`",
		"NODE_ENV: set to 'development' for local development",
	}
}

// Outcome is the result of a completed ValidateAll.
type Outcome struct {
	// OptionalSkipped is true when the operator chose to run without the
	// optional billing integration.
	OptionalSkipped bool

	// Optional is the last optional check.
	Optional Result
}

// Config configures a Validator.
type Config struct {
	// Rules. Default: DefaultRules().
	Rules *Rules

	// Logger. Default: discard.
	Logger *logging.Logger

	// Metrics counts validation rounds. Nil records nothing.
	Metrics *telemetry.Metrics
}

// Validator checks one project's environment files.
type Validator struct {
	root     string
	rules    Rules
	prompter Prompter
	logger   *logging.Logger
	metrics  *telemetry.Metrics
}

// NewValidator creates a Validator for the project at projectPath.
func NewValidator(projectPath string, prompter Prompter, config Config) (*Validator, error) {
	if prompter == nil {
		return nil, fmt.Errorf("%w: prompter", ErrNilDependency)
	}
	rules := DefaultRules()
	if config.Rules != nil {
		rules = *config.Rules
	}
	if config.Logger == nil {
		config.Logger = logging.Nop()
	}
	return &Validator{
		root:     projectPath,
		rules:    rules,
		prompter: prompter,
		logger:   config.Logger,
		metrics:  config.Metrics,
	}, nil
}

// CheckRequired reports missing and placeholder required variables.
func (v *Validator) CheckRequired() (Result, error) {
	return v.check(v.rules.Required)
}

// CheckOptional reports missing and placeholder optional variables.
func (v *Validator) CheckOptional() (Result, error) {
	return v.check(v.rules.Optional)
}

func (v *Validator) check(reqs []Requirement) (Result, error) {
	var res Result
	files := make(map[string]envFile)
	for _, req := range reqs {
		f, ok := files[req.File]
		if !ok {
			parsed, err := readEnv(filepath.Join(v.root, req.File))
			if err != nil {
				return Result{}, fmt.Errorf("read %s: %w", req.File, err)
			}
			f = parsed
			files[req.File] = f
		}
		for _, key := range req.Keys {
			value, present := f.values[key]
			switch {
			case !present:
				res.Missing = append(res.Missing, Issue{Key: key, File: req.File, Kind: KindMissing})
			case v.isPlaceholder(value):
				res.Placeholders = append(res.Placeholders, Issue{Key: key, File: req.File, Kind: KindPlaceholder})
			}
		}
	}
	return res, nil
}

func (v *Validator) isPlaceholder(value string) bool {
	for _, p := range v.rules.Placeholders {
		if strings.Contains(value, p) {
			return true
		}
	}
	return false
}

// ValidateAll runs the required loop and then the optional loop.
//
// The required loop shows every issue at once, waits for a keypress, and
// rechecks, with no attempt limit. The optional loop asks whether to go on
// without billing: yes ends in degraded mode, no waits for a keypress and
// rechecks. A prompter error (including interrupt) stops the loop; the
// returned error matches both the prompt failure and the phase's
// incomplete sentinel.
func (v *Validator) ValidateAll(ctx context.Context) (Outcome, error) {
	ux.Step("Validating environment variables...")
	if err := v.validateRequired(ctx); err != nil {
		return Outcome{}, err
	}
	return v.validateOptional(ctx)
}

func (v *Validator) validateRequired(ctx context.Context) error {
	for round := 1; ; round++ {
		res, err := v.CheckRequired()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrEnvironmentIncomplete, err)
		}
		v.metrics.ValidationRound("required")
		if res.Clean() {
			v.logger.Info("required environment validated", "rounds", round)
			ux.Success("Required environment variables validated")
			return nil
		}

		v.logger.Warn("required environment incomplete", "round", round, "issues", strings.Join(res.Strings(), ", "))
		v.reportRequired(res)

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", &IncompleteError{Result: res}, err)
		}
		if err := v.prompter.PromptContinue(ctx, PromptRequiredRetry); err != nil {
			return fmt.Errorf("%w: %w", &IncompleteError{Result: res}, err)
		}
	}
}

func (v *Validator) validateOptional(ctx context.Context) (Outcome, error) {
	for round := 1; ; round++ {
		res, err := v.CheckOptional()
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: %w", ErrOptionalConfigIncomplete, err)
		}
		v.metrics.ValidationRound("optional")
		if res.Clean() {
			ux.Success("Stripe environment variables found")
			return Outcome{Optional: res}, nil
		}

		v.logger.Info("optional environment incomplete", "round", round, "issues", strings.Join(res.Strings(), ", "))
		v.reportOptional(res)

		if err := ctx.Err(); err != nil {
			return Outcome{}, fmt.Errorf("%w: %w", &IncompleteError{Optional: true, Result: res}, err)
		}
		skip, err := v.prompter.PromptYesNo(ctx, PromptOptionalSkip, true)
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: %w", &IncompleteError{Optional: true, Result: res}, err)
		}
		if skip {
			v.logger.Warn("continuing without optional billing configuration")
			ux.Info("Continuing without Stripe integration")
			return Outcome{OptionalSkipped: true, Optional: res}, nil
		}
		if err := v.prompter.PromptContinue(ctx, PromptOptionalRetry); err != nil {
			return Outcome{}, fmt.Errorf("%w: %w", &IncompleteError{Optional: true, Result: res}, err)
		}
	}
}

func (v *Validator) reportRequired(res Result) {
	ux.Error("Required environment variables need attention:")
	ux.List(res.Strings())
	ux.Info("These variables are required for the app to function:")
	ux.List([]string{
		"DATABASE_URL - Database connection string (in .env)",
		"DIRECT_URL - Direct database connection (in .env)",
		"NEXT_PUBLIC_SUPABASE_URL - Supabase project URL (in .env.local)",
		"NEXT_PUBLIC_SUPABASE_PUBLISHABLE_OR_ANON_KEY - Supabase anon key (in .env.local)",
		"NODE_ENV - Environment mode (in .env.local)",
	})
	if len(res.Placeholders) > 0 {
		ux.Info("For placeholder values:")
		ux.List([]string{
			"LOCAL_ANON_KEY - Get from Supabase container status above",
			"NEXT_PUBLIC_SUPABASE_URL - Usually " + reconcile.APIURL(54321) + " for local",
			"NODE_ENV - Set to 'development' for local development",
		})
	}
}

func (v *Validator) reportOptional(res Result) {
	ux.Warning("Optional Stripe environment variables need attention:")
	ux.List(res.Strings())
	ux.Info("Stripe integration is optional and includes:")
	ux.List([]string{
		"Payment processing and subscriptions",
		"Protected content based on subscription status",
		"Webhook handling for real-time updates",
	})
	ux.Info("To set up Stripe (optional):")
	ux.List([]string{
		"1. Create a Stripe account at https://stripe.com",
		"2. Get your secret and publishable keys from the dashboard",
		"3. Create a product and get the price ID",
		"4. Set up webhooks and get the webhook secret",
		"5. Add all keys to your .env.local file",
	})
}

// Lint reports comment lines in .env. The ORM that loads .env rejects
// them. It returns the 1-based line numbers; a missing file has none.
func (v *Validator) Lint() ([]int, error) {
	f, err := readEnv(filepath.Join(v.root, reconcile.EnvFile))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", reconcile.EnvFile, err)
	}
	if len(f.comments) > 0 {
		v.logger.Warn("comment lines in env file", "file", reconcile.EnvFile, "lines", fmt.Sprint(f.comments))
		ux.Warning(fmt.Sprintf("%s contains comments (lines %v); Prisma cannot parse them. Remove them to avoid errors.",
			reconcile.EnvFile, f.comments))
	}
	return f.comments, nil
}
