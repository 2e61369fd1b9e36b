// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for user-provided names.
//
// Project names become directory names and npm package names and are
// passed to subprocesses, so they are restricted to a safe character set.
package validation

import (
	"errors"
	"regexp"
	"strings"
)

// MaxProjectNameLength is the npm package-name limit.
const MaxProjectNameLength = 214

// projectNamePattern allows letters, digits, hyphens and underscores.
var projectNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ProjectNameError lists every rule a name broke.
type ProjectNameError struct {
	Name     string
	Problems []string
}

func (e *ProjectNameError) Error() string {
	return "invalid project name: " + strings.Join(e.Problems, "; ")
}

// First returns the first broken rule, the one shown to interactive users.
func (e *ProjectNameError) First() string {
	if len(e.Problems) == 0 {
		return "Invalid project name"
	}
	return e.Problems[0]
}

// ValidateProjectName checks a project name.
//
// Valid names:
//   - are non-empty and contain no spaces
//   - use only letters, digits, hyphens and underscores
//   - are shorter than 214 characters
//   - do not start with a dot, hyphen or underscore
//
// Every broken rule is reported, in that order.
//
// Example:
//
//	if err := validation.ValidateProjectName(name); err != nil {
//	    return err
//	}
//	// Safe to use as a directory name
func ValidateProjectName(name string) error {
	var problems []string

	if strings.TrimSpace(name) == "" {
		problems = append(problems, "Project name cannot be empty")
	}
	if strings.Contains(name, " ") {
		problems = append(problems, "Project name cannot contain spaces")
	}
	if !projectNamePattern.MatchString(name) {
		problems = append(problems, "Project name can only contain letters, numbers, hyphens, and underscores")
	}
	if len(name) > MaxProjectNameLength {
		problems = append(problems, "Project name must be less than 214 characters")
	}
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "-") || strings.HasPrefix(name, "_") {
		problems = append(problems, "Project name cannot start with a dot, hyphen, or underscore")
	}

	if len(problems) > 0 {
		return &ProjectNameError{Name: name, Problems: problems}
	}
	return nil
}

// IsProjectNameError reports whether err came from ValidateProjectName.
func IsProjectNameError(err error) bool {
	var pe *ProjectNameError
	return errors.As(err, &pe)
}
