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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/t3chill/chill/cmd/chill/internal/ports"
)

// Environment file names, relative to the project root.
const (
	EnvFile             = ".env"
	EnvLocalFile        = ".env.local"
	EnvExampleFile      = ".env.example"
	EnvLocalExampleFile = ".env.local.example"
)

// LocalHost is the address the generated URLs point at.
const LocalHost = "127.0.0.1"

// Placeholder sentinels written into the example templates.
const (
	PlaceholderAnonKey              = "[LOCAL_ANON_KEY]"
	PlaceholderStripeSecretKey      = "[STRIPE_SECRET_KEY]"
	PlaceholderStripePublishableKey = "[NEXT_PUBLIC_STRIPE_PUBLISHABLE_KEY]"
	PlaceholderStripePriceID        = "[NEXT_PUBLIC_STRIPE_PRICE_ID]"
	PlaceholderStripeWebhookSecret  = "[STRIPE_WEBHOOK_SECRET]"
)

// DatabaseURL is the Postgres connection string for the local database.
func DatabaseURL(port int) string {
	return fmt.Sprintf("postgresql://postgres:postgres@%s:%d/postgres", LocalHost, port)
}

// APIURL is the base URL of the local API gateway.
func APIURL(port int) string {
	return "http://" + LocalHost + ":" + strconv.Itoa(port)
}

type envValue struct {
	key   string
	value string
}

// ownedEnvValues returns, per environment file, the keys derived from alloc.
func ownedEnvValues(alloc ports.Allocation) map[string][]envValue {
	out := make(map[string][]envValue)
	if db, ok := alloc[ports.Database]; ok {
		out[EnvFile] = []envValue{
			{"DATABASE_URL", DatabaseURL(db)},
			{"DIRECT_URL", DatabaseURL(db)},
		}
	}
	if api, ok := alloc[ports.API]; ok {
		out[EnvLocalFile] = []envValue{
			{"NEXT_PUBLIC_SUPABASE_URL", APIURL(api)},
		}
	}
	return out
}

// setEnvValues rewrites every line that starts with KEY= to KEY="value".
// Lines are matched whole, so a key never matches inside a comment or
// another key's value. Keys that are absent are left absent.
func setEnvValues(content string, values []envValue) string {
	for _, v := range values {
		re := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(v.key) + `=[^\r\n]*`)
		content = re.ReplaceAllLiteralString(content, v.key+"="+strconv.Quote(v.value))
	}
	return content
}

// ApplyToEnvironmentFiles rewrites the reconciler-owned keys in .env and
// .env.local. A missing file is skipped; it is created from its example
// later in setup.
func (r *Reconciler) ApplyToEnvironmentFiles(alloc ports.Allocation) error {
	owned := ownedEnvValues(alloc)
	for _, name := range []string{EnvFile, EnvLocalFile} {
		values := owned[name]
		if len(values) == 0 {
			continue
		}
		content, err := os.ReadFile(r.path(name))
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Debug("environment file absent, skipping", "file", name)
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: read %s: %v", ErrConfigWriteFailed, name, err)
		}
		updated := setEnvValues(string(content), values)
		if err := r.writeIfChanged(name, content, []byte(updated)); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Templates
// =============================================================================

func envExample(alloc ports.Allocation) string {
	db := alloc[ports.Database]
	return "DATABASE_URL=" + strconv.Quote(DatabaseURL(db)) + "\n" +
		"DIRECT_URL=" + strconv.Quote(DatabaseURL(db)) + "\n"
}

func envLocalExample(alloc ports.Allocation) string {
	var b strings.Builder
	api := alloc[ports.API]
	fmt.Fprintf(&b, "# Supabase Configuration (Generated with API port: %d)\n", api)
	fmt.Fprintf(&b, "NEXT_PUBLIC_SUPABASE_URL=%q\n", APIURL(api))
	fmt.Fprintf(&b, "NEXT_PUBLIC_SUPABASE_PUBLISHABLE_OR_ANON_KEY=%q\n", PlaceholderAnonKey)
	b.WriteString("\n# Environment\n")
	b.WriteString("NODE_ENV=\"development\"\n")
	b.WriteString("\n# Stripe Configuration (Optional)\n")
	fmt.Fprintf(&b, "STRIPE_SECRET_KEY=%q\n", PlaceholderStripeSecretKey)
	fmt.Fprintf(&b, "NEXT_PUBLIC_STRIPE_PUBLISHABLE_KEY=%q\n", PlaceholderStripePublishableKey)
	fmt.Fprintf(&b, "NEXT_PUBLIC_STRIPE_PRICE_ID=%q\n", PlaceholderStripePriceID)
	fmt.Fprintf(&b, "STRIPE_WEBHOOK_SECRET=%q\n", PlaceholderStripeWebhookSecret)
	return b.String()
}

// RegenerateTemplates rewrites .env.example and .env.local.example from
// alloc. .env.example carries no comments because the ORM reading .env
// cannot parse them, and .env is copied from it.
func (r *Reconciler) RegenerateTemplates(alloc ports.Allocation) error {
	if _, ok := alloc[ports.Database]; !ok {
		return fmt.Errorf("%w: allocation has no %s port", ErrConfigWriteFailed, ports.Database)
	}
	if _, ok := alloc[ports.API]; !ok {
		return fmt.Errorf("%w: allocation has no %s port", ErrConfigWriteFailed, ports.API)
	}

	templates := []struct {
		name    string
		content string
	}{
		{EnvExampleFile, envExample(alloc)},
		{EnvLocalExampleFile, envLocalExample(alloc)},
	}
	for _, t := range templates {
		before, err := os.ReadFile(r.path(t.name))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: read %s: %v", ErrConfigWriteFailed, t.name, err)
		}
		if err := r.writeIfChanged(t.name, before, []byte(t.content)); err != nil {
			return err
		}
	}
	return nil
}

// EnsureEnvironmentFiles creates .env and .env.local from their examples
// when they do not exist yet. Existing files are never overwritten. It
// returns the names of the files it created.
func (r *Reconciler) EnsureEnvironmentFiles() ([]string, error) {
	var created []string
	for _, pair := range [][2]string{{EnvFile, EnvExampleFile}, {EnvLocalFile, EnvLocalExampleFile}} {
		target, example := pair[0], pair[1]

		if _, err := os.Stat(r.path(target)); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return created, fmt.Errorf("%w: stat %s: %v", ErrConfigWriteFailed, target, err)
		}

		content, err := os.ReadFile(r.path(example))
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("example file missing, cannot create environment file", "file", target, "example", example)
			continue
		}
		if err != nil {
			return created, fmt.Errorf("%w: read %s: %v", ErrConfigWriteFailed, example, err)
		}
		if err := os.WriteFile(r.path(target), content, 0600); err != nil {
			return created, fmt.Errorf("%w: write %s: %v", ErrConfigWriteFailed, target, err)
		}
		r.logger.Info("environment file created from example", "file", target, "example", example)
		created = append(created, target)
	}
	return created, nil
}
