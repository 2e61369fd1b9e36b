// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package reconcile keeps a project's configuration files in step with the
ports the backing-services stack actually binds.

# Owned Artifacts

	┌──────────────────────────┬──────────────────────────────────────────┐
	│ supabase/config.toml     │ [api|db|studio|inbucket|analytics].port, │
	│                          │ [db].shadow_port, [studio].api_url       │
	│ .env                     │ DATABASE_URL, DIRECT_URL                 │
	│ .env.local               │ NEXT_PUBLIC_SUPABASE_URL                 │
	│ .env.example             │ whole file                               │
	│ .env.local.example       │ whole file                               │
	└──────────────────────────┴──────────────────────────────────────────┘

Every write is a whole-file read-modify-write. Applying the same allocation
twice produces byte-identical files, and unchanged files are not rewritten,
so an interrupted setup can simply be run again.

# Limitations

There is no inter-process locking. One CLI invocation per project directory
is assumed.
*/
package reconcile

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/t3chill/chill/cmd/chill/internal/ports"
	"github.com/t3chill/chill/pkg/logging"
)

// ErrConfigWriteFailed is wrapped by every read or write failure on an
// owned file.
var ErrConfigWriteFailed = errors.New("config write failed")

// ServiceConfigPath is the service-config document, relative to the
// project root.
var ServiceConfigPath = filepath.Join("supabase", "config.toml")

// Config configures a Reconciler.
type Config struct {
	// Defaults supplies the fallback for sections that cannot be read back
	// and decides whether a port-less api_url needs a suffix.
	// Default: ports.DefaultAllocation().
	Defaults ports.Allocation

	// Logger. Default: discard.
	Logger *logging.Logger
}

// Reconciler owns all configuration file mutation for one project.
type Reconciler struct {
	root     string
	defaults ports.Allocation
	logger   *logging.Logger
}

// New creates a Reconciler rooted at projectPath.
func New(projectPath string, config Config) *Reconciler {
	if config.Defaults == nil {
		config.Defaults = ports.DefaultAllocation()
	}
	if config.Logger == nil {
		config.Logger = logging.Nop()
	}
	return &Reconciler{
		root:     projectPath,
		defaults: config.Defaults,
		logger:   config.Logger,
	}
}

// Root returns the project directory.
func (r *Reconciler) Root() string {
	return r.root
}

func (r *Reconciler) path(name string) string {
	return filepath.Join(r.root, name)
}

// Apply updates the service-config document and the environment files.
func (r *Reconciler) Apply(alloc ports.Allocation) error {
	if err := r.ApplyToServiceConfig(alloc); err != nil {
		return err
	}
	return r.ApplyToEnvironmentFiles(alloc)
}

// =============================================================================
// Service config document
// =============================================================================

// portKeys lists the (section, key) pair each service's port lives under.
var portKeys = []struct {
	service ports.Service
	section string
	key     string
}{
	{ports.API, "api", "port"},
	{ports.Database, "db", "port"},
	{ports.ShadowDatabase, "db", "shadow_port"},
	{ports.Studio, "studio", "port"},
	{ports.Inbucket, "inbucket", "port"},
	{ports.Analytics, "analytics", "port"},
}

// ApplyToServiceConfig rewrites the port keys of every allocated service,
// each strictly inside its own section, and points [studio].api_url at the
// allocated API port. The edited document is re-parsed and checked against
// alloc before it is written.
func (r *Reconciler) ApplyToServiceConfig(alloc ports.Allocation) error {
	if err := alloc.Validate(); err != nil {
		return err
	}

	path := r.path(ServiceConfigPath)
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrConfigWriteFailed, ServiceConfigPath, err)
	}

	doc := parseDocument(content)
	for _, pk := range portKeys {
		port, ok := alloc[pk.service]
		if !ok {
			continue
		}
		found, changed := doc.setInt(pk.section, pk.key, port)
		if !found {
			r.logger.Warn("service config key not found", "section", pk.section, "key", pk.key)
			continue
		}
		if changed {
			r.logger.Debug("service config port updated", "section", pk.section, "key", pk.key, "port", port)
		}
	}

	if apiPort, ok := alloc[ports.API]; ok {
		doc.rewriteString("studio", "api_url", func(v string) string {
			return r.withAPIPort(v, apiPort)
		})
	}

	updated := doc.bytes()
	if err := r.verify(content, updated, alloc); err != nil {
		return err
	}
	return r.writeIfChanged(ServiceConfigPath, content, updated)
}

// withAPIPort returns raw with its port replaced by port. A URL without a
// port only gains one when port differs from the default API port.
func (r *Reconciler) withAPIPort(raw string, port int) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	if u.Port() == "" && port == r.defaults[ports.API] {
		return raw
	}
	u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
	return u.String()
}

// verify re-parses the edited document and checks every section that
// exists carries the allocated port. A document that did not parse before
// the edit is only logged.
func (r *Reconciler) verify(before, after []byte, alloc ports.Allocation) error {
	if _, err := decodeServiceConfig(before); err != nil {
		r.logger.Warn("service config is not valid TOML, skipping verification", "error", err)
		return nil
	}
	cfg, err := decodeServiceConfig(after)
	if err != nil {
		return fmt.Errorf("%w: %s no longer parses after update: %v", ErrConfigWriteFailed, ServiceConfigPath, err)
	}
	live := cfg.allocation()
	for svc, want := range alloc {
		got, ok := live[svc]
		if ok && got != want {
			return fmt.Errorf("%w: %s %s port is %d after update, want %d", ErrConfigWriteFailed, ServiceConfigPath, svc, got, want)
		}
	}
	return nil
}

// allocation extracts every port present in the document.
func (c *serviceConfig) allocation() ports.Allocation {
	out := make(ports.Allocation)
	set := func(svc ports.Service, p *int) {
		if p != nil {
			out[svc] = *p
		}
	}
	if c.API != nil {
		set(ports.API, c.API.Port)
	}
	if c.DB != nil {
		set(ports.Database, c.DB.Port)
		set(ports.ShadowDatabase, c.DB.ShadowPort)
	}
	if c.Studio != nil {
		set(ports.Studio, c.Studio.Port)
	}
	if c.Inbucket != nil {
		set(ports.Inbucket, c.Inbucket.Port)
	}
	if c.Analytics != nil {
		set(ports.Analytics, c.Analytics.Port)
	}
	return out
}

// ReadAllocation returns the allocation encoded in the service-config
// document. Sections are read with a TOML parser; if the document does not
// parse, each section is scanned line by line instead. Anything still
// missing takes the default port.
func (r *Reconciler) ReadAllocation() (ports.Allocation, error) {
	content, err := os.ReadFile(r.path(ServiceConfigPath))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrConfigWriteFailed, ServiceConfigPath, err)
	}

	found := make(ports.Allocation)
	if cfg, err := decodeServiceConfig(content); err == nil {
		found = cfg.allocation()
	} else {
		r.logger.Warn("service config is not valid TOML, scanning sections", "error", err)
		doc := parseDocument(content)
		for _, pk := range portKeys {
			if p, ok := doc.lookupInt(pk.section, pk.key); ok {
				found[pk.service] = p
			}
		}
	}

	alloc := r.defaults.Clone()
	for _, svc := range alloc.Services() {
		if p, ok := found[svc]; ok && p > 0 && p <= ports.MaxPort {
			alloc[svc] = p
			continue
		}
		r.logger.Warn("port not found in service config, using default", "service", string(svc), "port", alloc[svc])
	}
	return alloc, nil
}

// =============================================================================
// File helpers
// =============================================================================

// writeIfChanged writes updated over name unless it equals before. The
// existing file mode is kept.
func (r *Reconciler) writeIfChanged(name string, before, updated []byte) error {
	if string(before) == string(updated) {
		r.logger.Debug("file already up to date", "file", name)
		return nil
	}
	if err := writeFile(r.path(name), updated, 0644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrConfigWriteFailed, name, err)
	}
	r.logger.Info("file updated", "file", name)
	return nil
}

// writeFile writes data to path, keeping the mode of an existing file and
// using mode for a new one.
func writeFile(path string, data []byte, mode fs.FileMode) error {
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	return os.WriteFile(path, data, mode)
}
