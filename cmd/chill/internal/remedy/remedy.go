// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package remedy lets errors carry operator-facing remediation hints.
package remedy

// Suggester is implemented by errors that know how the operator can fix
// them.
type Suggester interface {
	Suggestions() []string
}

// Collect walks the error chain (including joined errors) and returns every
// suggestion in chain order without duplicates.
func Collect(err error) []string {
	var out []string
	seen := make(map[string]bool)
	walk(err, func(e error) {
		s, ok := e.(Suggester)
		if !ok {
			return
		}
		for _, hint := range s.Suggestions() {
			if !seen[hint] {
				seen[hint] = true
				out = append(out, hint)
			}
		}
	})
	return out
}

func walk(err error, visit func(error)) {
	if err == nil {
		return
	}
	visit(err)
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			walk(inner, visit)
		}
	case interface{ Unwrap() error }:
		walk(u.Unwrap(), visit)
	}
}

// With attaches hints to err.
func With(err error, hints ...string) error {
	if err == nil {
		return nil
	}
	return &hinted{err: err, hints: hints}
}

type hinted struct {
	err   error
	hints []string
}

func (h *hinted) Error() string         { return h.err.Error() }
func (h *hinted) Unwrap() error         { return h.err }
func (h *hinted) Suggestions() []string { return h.hints }
