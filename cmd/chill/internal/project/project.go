// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package project creates a new project directory from the bundled template.
package project

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/t3chill/chill/pkg/logging"
	"github.com/t3chill/chill/pkg/validation"
)

// DefaultName is used when the user accepts the default or passes --yes.
const DefaultName = "my-t3-chill-app"

// TemplateEnv overrides the template search.
const TemplateEnv = "CHILL_TEMPLATE"

var (
	// ErrTemplateNotFound means no candidate template directory exists.
	ErrTemplateNotFound = errors.New("template files not found")

	// ErrTargetExists means the project directory exists and is not empty.
	ErrTargetExists = errors.New("directory already exists")

	// ErrCopyFailed wraps a failed template copy.
	ErrCopyFailed = errors.New("failed to copy template files")
)

// skipNames are never copied out of a template.
var skipNames = map[string]bool{
	"node_modules": true,
	".git":         true,
}

// Error is a project creation failure with remediation hints.
type Error struct {
	Cause error
	hints []string
}

func (e *Error) Error() string { return e.Cause.Error() }

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Cause }

// Suggestions returns remediation hints.
func (e *Error) Suggestions() []string { return e.hints }

// Project is a created project.
type Project struct {
	Name     string
	Path     string
	Template string
}

// TemplateCandidates lists where a template is looked for, in order: next
// to the executable, one level above it, then the working directory.
func TemplateCandidates(exeDir, cwd string) []string {
	return []string{
		filepath.Join(exeDir, "template"),
		filepath.Join(exeDir, "..", "template"),
		filepath.Join(cwd, "template"),
		filepath.Join(cwd, "cli", "template"),
	}
}

// FindTemplate returns the template directory. explicit, then $CHILL_TEMPLATE,
// then TemplateCandidates are tried.
func FindTemplate(explicit string) (string, error) {
	if explicit == "" {
		explicit = os.Getenv(TemplateEnv)
	}
	if explicit != "" {
		if isDir(explicit) {
			return filepath.Abs(explicit)
		}
		return "", &Error{
			Cause: fmt.Errorf("%w: %s", ErrTemplateNotFound, explicit),
			hints: []string{"Check the --template path", "Unset " + TemplateEnv + " to use the bundled template"},
		}
	}

	var exeDir string
	if exe, err := os.Executable(); err == nil {
		exeDir = filepath.Dir(exe)
	}
	cwd, _ := os.Getwd()
	for _, candidate := range TemplateCandidates(exeDir, cwd) {
		if isDir(candidate) {
			return filepath.Abs(candidate)
		}
	}
	return "", &Error{Cause: ErrTemplateNotFound, hints: []string{
		"Pass the template directory with --template",
		"Check if you're in the correct directory",
		"Verify template directory exists",
	}}
}

// Create validates name and copies template into parent/name.
func Create(ctx context.Context, name, template, parent string, logger *logging.Logger) (*Project, error) {
	if err := validation.ValidateProjectName(name); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}
	target, err := filepath.Abs(filepath.Join(parent, name))
	if err != nil {
		return nil, err
	}
	if err := Materialize(ctx, template, target); err != nil {
		return nil, err
	}
	logger.Info("project created", "name", name, "path", target, "template", template)
	return &Project{Name: name, Path: target, Template: template}, nil
}

// Materialize copies the template tree into target. target must not exist
// or must be an empty directory. File modes are preserved; symlinks are
// recreated, not followed.
func Materialize(ctx context.Context, template, target string) error {
	if !isDir(template) {
		return &Error{Cause: fmt.Errorf("%w: %s", ErrTemplateNotFound, template)}
	}
	if err := checkTarget(target); err != nil {
		return err
	}

	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(template, path)
		if err != nil {
			return err
		}
		if rel != "." && skipNames[d.Name()] {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		dst := filepath.Join(target, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(dst, info.Mode().Perm()|0o700)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, dst)
		case d.Type().IsRegular():
			return copyFile(path, dst, info.Mode().Perm())
		default:
			return nil
		}
	}

	if err := filepath.WalkDir(template, walkFn); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &Error{Cause: fmt.Errorf("%w: %w", ErrCopyFailed, err), hints: []string{
			"Check file permissions",
			"Ensure sufficient disk space",
			"Verify template directory is complete",
		}}
	}
	return nil
}

func checkTarget(target string) error {
	entries, err := os.ReadDir(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &Error{Cause: fmt.Errorf("%w: %s: %v", ErrTargetExists, target, err)}
	}
	if len(entries) == 0 {
		return nil
	}
	name := filepath.Base(target)
	return &Error{Cause: fmt.Errorf("%w: %s", ErrTargetExists, target), hints: []string{
		"Choose a different project name",
		"Remove the existing directory",
		fmt.Sprintf("Try: rm -rf %s (use with caution)", name),
	}}
}

func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
