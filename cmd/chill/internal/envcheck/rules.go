// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package envcheck

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/t3chill/chill/cmd/chill/internal/reconcile"
)

// Kind classifies an Issue.
type Kind int

const (
	KindMissing Kind = iota
	KindPlaceholder
)

// Issue is one environment variable that needs attention.
type Issue struct {
	Key  string
	File string
	Kind Kind
}

// String renders "KEY (in .env)" or "KEY (has placeholder value)".
func (i Issue) String() string {
	if i.Kind == KindPlaceholder {
		return i.Key + " (has placeholder value)"
	}
	return fmt.Sprintf("%s (in %s)", i.Key, i.File)
}

// Result is the outcome of one check.
type Result struct {
	Missing      []Issue
	Placeholders []Issue
}

// Clean reports whether nothing needs attention.
func (r Result) Clean() bool {
	return len(r.Missing) == 0 && len(r.Placeholders) == 0
}

// Issues returns missing keys followed by placeholder keys.
func (r Result) Issues() []Issue {
	out := make([]Issue, 0, len(r.Missing)+len(r.Placeholders))
	out = append(out, r.Missing...)
	return append(out, r.Placeholders...)
}

// Strings renders every issue.
func (r Result) Strings() []string {
	var out []string
	for _, i := range r.Issues() {
		out = append(out, i.String())
	}
	return out
}

// Requirement names keys that must appear in one file.
type Requirement struct {
	File string
	Keys []string
}

// Rules is the validation rule set.
type Rules struct {
	Required []Requirement
	Optional []Requirement

	// Placeholders are sentinel tokens; a value containing one is unset.
	Placeholders []string
}

// DefaultRules returns the rules for the scaffolded app.
func DefaultRules() Rules {
	return Rules{
		Required: []Requirement{
			{File: reconcile.EnvFile, Keys: []string{"DATABASE_URL", "DIRECT_URL"}},
			{File: reconcile.EnvLocalFile, Keys: []string{
				"NEXT_PUBLIC_SUPABASE_URL",
				"NEXT_PUBLIC_SUPABASE_PUBLISHABLE_OR_ANON_KEY",
				"NODE_ENV",
			}},
		},
		Optional: []Requirement{
			{File: reconcile.EnvLocalFile, Keys: []string{
				"STRIPE_SECRET_KEY",
				"NEXT_PUBLIC_STRIPE_PUBLISHABLE_KEY",
				"NEXT_PUBLIC_STRIPE_PRICE_ID",
				"STRIPE_WEBHOOK_SECRET",
			}},
		},
		Placeholders: []string{
			reconcile.PlaceholderAnonKey,
			"[NEXT_PUBLIC_SUPABASE_URL]",
			"[NODE_ENV]",
			reconcile.PlaceholderStripeSecretKey,
			reconcile.PlaceholderStripePublishableKey,
			reconcile.PlaceholderStripePriceID,
			reconcile.PlaceholderStripeWebhookSecret,
		},
	}
}

// =============================================================================
// Env File Parsing
// =============================================================================

// envFile is the parsed form of a dotenv file. Only KEY=value lines at the
// start of a line count; comments and indented lines do not define keys.
type envFile struct {
	values   map[string]string
	comments []int
}

func parseEnv(content []byte) envFile {
	f := envFile{values: make(map[string]string)}
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.HasPrefix(strings.TrimSpace(text), "#") {
			f.comments = append(f.comments, line)
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		if !ok || key == "" || key != strings.TrimSpace(key) {
			continue
		}
		if _, seen := f.values[key]; !seen {
			f.values[key] = unquote(strings.TrimSpace(value))
		}
	}
	return f
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// readEnv parses path. A missing file parses as empty.
func readEnv(path string) (envFile, error) {
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return envFile{values: map[string]string{}}, nil
	}
	if err != nil {
		return envFile{}, err
	}
	return parseEnv(content), nil
}
