// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package database prepares the project database through the app's Prisma
// npm scripts.
package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/t3chill/chill/cmd/chill/internal/infra/process"
	"github.com/t3chill/chill/pkg/logging"
)

var (
	// ErrGenerateFailed wraps a failed client generation.
	ErrGenerateFailed = errors.New("prisma client generation failed")

	// ErrResetFailed wraps a failed database reset.
	ErrResetFailed = errors.New("database reset failed")

	// ErrNilDependency is returned by NewMigrator when the process manager
	// is nil.
	ErrNilDependency = errors.New("required dependency is nil")
)

// MigrationsDir is the migrations directory relative to the project root.
var MigrationsDir = filepath.Join("prisma", "migrations")

// Migrator runs the Prisma scripts of one project.
type Migrator struct {
	dir    string
	proc   process.Manager
	logger *logging.Logger
}

// NewMigrator creates a Migrator for the project at dir.
func NewMigrator(dir string, proc process.Manager, logger *logging.Logger) (*Migrator, error) {
	if proc == nil {
		return nil, fmt.Errorf("%w: process manager", ErrNilDependency)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Migrator{dir: dir, proc: proc, logger: logger}, nil
}

// Generate runs `npm run prisma:generate`.
func (m *Migrator) Generate(ctx context.Context) error {
	if _, err := m.proc.Run(ctx, m.dir, "npm", "run", "prisma:generate"); err != nil {
		return &Error{Cause: fmt.Errorf("%w: %w", ErrGenerateFailed, err), hints: []string{
			"Try running: npm run prisma:generate manually",
			"Make sure the Prisma schema is valid",
		}}
	}
	m.logger.Info("prisma client generated")
	return nil
}

// HasMigrations reports whether any migration directory holds a
// migration.sql.
func (m *Migrator) HasMigrations() (bool, error) {
	matches, err := filepath.Glob(filepath.Join(m.dir, MigrationsDir, "*", "migration.sql"))
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// Reset runs `npm run prisma:reset -- --force`, which drops the database
// and replays every migration.
func (m *Migrator) Reset(ctx context.Context) error {
	if _, err := m.proc.Run(ctx, m.dir, "npm", "run", "prisma:reset", "--", "--force"); err != nil {
		return &Error{Cause: fmt.Errorf("%w: %w", ErrResetFailed, err), hints: []string{
			"Ensure the database is not locked by another process",
			"Check if Supabase containers are running properly",
			"Manual commands to try: npm run prisma:generate && npm run prisma:reset -- --force",
		}}
	}
	m.logger.Info("database reset")
	return nil
}

// Error is a database step failure with remediation hints.
type Error struct {
	Cause error
	hints []string
}

func (e *Error) Error() string { return e.Cause.Error() }

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Cause }

// Suggestions returns remediation hints.
func (e *Error) Suggestions() []string { return e.hints }
