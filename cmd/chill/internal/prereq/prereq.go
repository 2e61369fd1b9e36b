// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prereq checks the host tools a scaffolded project needs: a recent
// Node.js and a running Docker daemon.
package prereq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/mod/semver"
	"golang.org/x/sync/errgroup"

	"github.com/t3chill/chill/cmd/chill/internal/infra/process"
	"github.com/t3chill/chill/pkg/logging"
	"github.com/t3chill/chill/pkg/ux"
)

// DefaultMinNodeVersion is the oldest supported Node.js release.
const DefaultMinNodeVersion = "v18.0.0"

// DefaultTimeout bounds each probe command.
const DefaultTimeout = 10 * time.Second

// Check names.
const (
	CheckNode          = "Node.js"
	CheckDockerInstall = "Docker installed"
	CheckDockerRunning = "Docker running"
)

var (
	// ErrPrerequisitesMissing is returned by Require when a check fails.
	ErrPrerequisitesMissing = errors.New("prerequisites not met")

	// ErrNilDependency is returned by NewChecker when proc is nil.
	ErrNilDependency = errors.New("required dependency is nil")
)

// Result is the outcome of one check.
type Result struct {
	Name    string
	OK      bool
	Skipped bool

	// Detail is shown next to the check name, e.g. the detected version.
	Detail string

	// Issues explains a failure and how to fix it.
	Issues []string
}

// Report holds the results in a fixed order.
type Report struct {
	Results []Result
}

// OK reports whether every check passed or was skipped.
func (r *Report) OK() bool {
	for _, res := range r.Results {
		if !res.OK && !res.Skipped {
			return false
		}
	}
	return true
}

// Issues returns every failed check's issues.
func (r *Report) Issues() []string {
	var out []string
	for _, res := range r.Results {
		if !res.OK && !res.Skipped {
			out = append(out, res.Issues...)
		}
	}
	return out
}

// Print renders the report.
func (r *Report) Print() {
	for _, res := range r.Results {
		line := res.Name
		if res.Detail != "" {
			line += ": " + res.Detail
		}
		switch {
		case res.Skipped:
			ux.Muted(line + " (skipped)")
		case res.OK:
			ux.Success(line)
		default:
			ux.Error(line)
		}
	}
	if r.OK() {
		ux.Success("All prerequisites met!")
		return
	}
	ux.Warning("Prerequisite check failed. Please fix the following issues:")
	ux.List(r.Issues())
}

// MissingError carries the failed report.
type MissingError struct {
	Report *Report
}

func (e *MissingError) Error() string {
	var names []string
	for _, res := range e.Report.Results {
		if !res.OK && !res.Skipped {
			names = append(names, res.Name)
		}
	}
	return fmt.Sprintf("%s: %s", ErrPrerequisitesMissing, strings.Join(names, ", "))
}

// Is matches ErrPrerequisitesMissing.
func (e *MissingError) Is(target error) bool {
	return target == ErrPrerequisitesMissing
}

// Suggestions returns the failed checks' issues.
func (e *MissingError) Suggestions() []string {
	return e.Report.Issues()
}

// Config configures a Checker.
type Config struct {
	// MinNodeVersion is a semver string with or without the leading "v".
	// Default: DefaultMinNodeVersion.
	MinNodeVersion string

	// Timeout bounds each probe command. Default: DefaultTimeout.
	Timeout time.Duration

	Logger *logging.Logger
}

// Checker runs the prerequisite probes.
type Checker struct {
	proc    process.Manager
	minNode string
	timeout time.Duration
	logger  *logging.Logger
}

// NewChecker creates a Checker.
func NewChecker(proc process.Manager, config Config) (*Checker, error) {
	if proc == nil {
		return nil, fmt.Errorf("%w: process manager", ErrNilDependency)
	}
	minNode := canonical(config.MinNodeVersion)
	if config.MinNodeVersion == "" {
		minNode = DefaultMinNodeVersion
	}
	if !semver.IsValid(minNode) {
		return nil, fmt.Errorf("invalid minimum node version %q", config.MinNodeVersion)
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = logging.Nop()
	}
	return &Checker{proc: proc, minNode: minNode, timeout: config.Timeout, logger: config.Logger}, nil
}

// Check runs the probes concurrently. Probe failures are results, not
// errors; the error is only set when ctx ends first.
func (c *Checker) Check(ctx context.Context) (*Report, error) {
	results := make([]Result, 3)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		results[0] = c.checkNode(gctx)
		return gctx.Err()
	})
	g.Go(func() error {
		results[1] = c.checkDockerInstalled()
		return nil
	})
	g.Go(func() error {
		results[2] = c.checkDockerRunning(gctx)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// A daemon probe without a docker binary says nothing new.
	if !results[1].OK {
		results[2] = Result{Name: CheckDockerRunning, Skipped: true}
	}

	report := &Report{Results: results}
	c.logger.Info("prerequisites checked", "ok", report.OK(), "issues", len(report.Issues()))
	return report, nil
}

// Require runs Check and returns a *MissingError when a probe failed.
func (c *Checker) Require(ctx context.Context) (*Report, error) {
	report, err := c.Check(ctx)
	if err != nil {
		return nil, err
	}
	if !report.OK() {
		return report, &MissingError{Report: report}
	}
	return report, nil
}

func (c *Checker) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.proc.Run(ctx, "", name, args...)
}

func (c *Checker) checkNode(ctx context.Context) Result {
	res := Result{Name: CheckNode}
	out, err := c.run(ctx, "node", "--version")
	if err != nil {
		res.Detail = "not found"
		res.Issues = []string{
			"Node.js is not installed or not on PATH.",
			fmt.Sprintf("Install Node.js %s or higher from https://nodejs.org/", semver.Major(c.minNode)),
		}
		return res
	}
	version := strings.TrimSpace(string(out))
	res.Detail = version
	if !NodeVersionOK(version, c.minNode) {
		res.Issues = []string{
			fmt.Sprintf("Node.js version is too old (%s). Please install Node.js %s or higher.", version, semver.Major(c.minNode)),
			"Download from: https://nodejs.org/",
		}
		return res
	}
	res.OK = true
	return res
}

func (c *Checker) checkDockerInstalled() Result {
	res := Result{Name: CheckDockerInstall}
	path, err := c.proc.LookPath("docker")
	if err != nil {
		res.Issues = []string{
			"Docker is not installed.",
			"Please install Docker Desktop from: https://docker.com",
			"After installation, ensure Docker Desktop is running.",
		}
		return res
	}
	res.OK = true
	res.Detail = path
	return res
}

func (c *Checker) checkDockerRunning(ctx context.Context) Result {
	res := Result{Name: CheckDockerRunning}
	if _, err := c.run(ctx, "docker", "info"); err != nil {
		c.logger.Debug("docker info failed", "error", err)
		res.Issues = []string{
			"Docker is installed but not running.",
			"Please start Docker Desktop and try again.",
		}
		return res
	}
	res.OK = true
	return res
}

// NodeVersionOK reports whether version is at least min. Both may omit the
// leading "v"; an unparsable version is never OK.
func NodeVersionOK(version, min string) bool {
	v, m := canonical(version), canonical(min)
	if !semver.IsValid(v) || !semver.IsValid(m) {
		return false
	}
	return semver.Compare(v, m) >= 0
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
