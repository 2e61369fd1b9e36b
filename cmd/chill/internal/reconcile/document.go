// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reconcile

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// tableHeader matches "[name]" and "[[name]]" lines. Group 1 is the inner
// name for plain tables; array tables never match a service section.
var tableHeader = regexp.MustCompile(`^\s*\[(\[)?\s*([^\[\]]+?)\s*\](\])?\s*(#.*)?$`)

// span is the line range [start, end) of one table, header included.
type span struct {
	name       string
	start, end int
}

// document is a TOML file held as lines so that edits keep comments and
// layout intact. Section identity is taken from table headers: a section
// runs from its header to the next header of any kind, so [db.pooler]
// closes [db].
type document struct {
	lines []string
}

func parseDocument(content []byte) *document {
	return &document{lines: strings.Split(string(content), "\n")}
}

func (d *document) bytes() []byte {
	return []byte(strings.Join(d.lines, "\n"))
}

func (d *document) spans() []span {
	var out []span
	for i, line := range d.lines {
		m := tableHeader.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if len(out) > 0 {
			out[len(out)-1].end = i
		}
		name := m[2]
		if m[1] != "" || m[3] != "" {
			name = "[" + name + "]"
		}
		out = append(out, span{name: name, start: i, end: len(d.lines)})
	}
	return out
}

func (d *document) section(name string) (span, bool) {
	for _, s := range d.spans() {
		if s.name == name {
			return s, true
		}
	}
	return span{}, false
}

func keyPattern(key, value string) *regexp.Regexp {
	return regexp.MustCompile(`^(\s*` + regexp.QuoteMeta(key) + `\s*=\s*)` + value + `(.*)$`)
}

// setInt replaces the integer value of key inside section. It reports
// whether the section and key were found and whether the line changed.
func (d *document) setInt(section, key string, value int) (found, changed bool) {
	s, ok := d.section(section)
	if !ok {
		return false, false
	}
	re := keyPattern(key, `(\d+)`)
	for i := s.start + 1; i < s.end; i++ {
		m := re.FindStringSubmatch(d.lines[i])
		if m == nil {
			continue
		}
		updated := m[1] + strconv.Itoa(value) + m[3]
		if updated != d.lines[i] {
			d.lines[i] = updated
			return true, true
		}
		return true, false
	}
	return false, false
}

// rewriteString passes the quoted value of key inside section through fn.
func (d *document) rewriteString(section, key string, fn func(string) string) (found, changed bool) {
	s, ok := d.section(section)
	if !ok {
		return false, false
	}
	re := keyPattern(key, `"([^"]*)"`)
	for i := s.start + 1; i < s.end; i++ {
		m := re.FindStringSubmatch(d.lines[i])
		if m == nil {
			continue
		}
		updated := m[1] + strconv.Quote(fn(m[2])) + m[3]
		if updated != d.lines[i] {
			d.lines[i] = updated
			return true, true
		}
		return true, false
	}
	return false, false
}

// lookupInt reads an integer key from a section without a full TOML parse.
// Used when the document does not parse as TOML.
func (d *document) lookupInt(section, key string) (int, bool) {
	s, ok := d.section(section)
	if !ok {
		return 0, false
	}
	re := keyPattern(key, `(\d+)`)
	for i := s.start + 1; i < s.end; i++ {
		if m := re.FindStringSubmatch(d.lines[i]); m != nil {
			n, err := strconv.Atoi(m[2])
			return n, err == nil
		}
	}
	return 0, false
}

// =============================================================================
// Structured view
// =============================================================================

// serviceConfig is the subset of supabase/config.toml the reconciler owns.
// Pointers distinguish an absent section or key from a zero value.
type serviceConfig struct {
	API       *portSection   `toml:"api"`
	DB        *dbSection     `toml:"db"`
	Studio    *studioSection `toml:"studio"`
	Inbucket  *portSection   `toml:"inbucket"`
	Analytics *portSection   `toml:"analytics"`
}

type portSection struct {
	Port *int `toml:"port"`
}

type dbSection struct {
	Port       *int `toml:"port"`
	ShadowPort *int `toml:"shadow_port"`
}

type studioSection struct {
	Port   *int    `toml:"port"`
	APIURL *string `toml:"api_url"`
}

func decodeServiceConfig(content []byte) (*serviceConfig, error) {
	var cfg serviceConfig
	if err := toml.Unmarshal(content, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
