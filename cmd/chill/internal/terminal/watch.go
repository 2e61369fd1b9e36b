// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package terminal

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/t3chill/chill/cmd/chill/internal/envcheck"
	"github.com/t3chill/chill/cmd/chill/internal/reconcile"
	"github.com/t3chill/chill/pkg/logging"
	"github.com/t3chill/chill/pkg/ux"
)

// DefaultSettle is how long the watched files must stay quiet after a
// change before the prompt returns. Editors often write in several steps.
const DefaultSettle = 300 * time.Millisecond

// WatchPrompter answers PromptContinue when an environment file changes,
// so an operator can fix files in an editor without returning to the
// terminal. Yes/no questions take their default.
type WatchPrompter struct {
	dir    string
	files  map[string]bool
	settle time.Duration
	out    io.Writer
	logger *logging.Logger
}

// NewWatchPrompter watches .env and .env.local in projectPath.
func NewWatchPrompter(projectPath string, out io.Writer, logger *logging.Logger) *WatchPrompter {
	if logger == nil {
		logger = logging.Nop()
	}
	return &WatchPrompter{
		dir: projectPath,
		files: map[string]bool{
			reconcile.EnvFile:      true,
			reconcile.EnvLocalFile: true,
		},
		settle: DefaultSettle,
		out:    out,
		logger: logger,
	}
}

func (w *WatchPrompter) writer() io.Writer {
	if w.out != nil {
		return w.out
	}
	return ux.Stdout()
}

// PromptContinue blocks until a watched file is written, created or
// renamed into place, then waits for the writes to settle.
//
// The directory is watched rather than the files, so editors that replace
// files via rename are seen and files that do not exist yet can appear.
func (w *WatchPrompter) PromptContinue(ctx context.Context, msg string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	fmt.Fprintf(w.writer(), "\n%s %s\n", ux.IconPending.Render(), msg)
	fmt.Fprintf(w.writer(), "  %s\n", ux.Styles.Muted.Render("Watching .env and .env.local; save a change to re-check."))

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return ErrNoInput
			}
			if !w.files[filepath.Base(ev.Name)] {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("environment file changed", "file", filepath.Base(ev.Name), "op", ev.Op.String())
			settle = time.After(w.settle)

		case err, ok := <-watcher.Errors:
			if !ok {
				return ErrNoInput
			}
			w.logger.Warn("file watcher error", "error", err)

		case <-settle:
			return nil
		}
	}
}

// PromptYesNo prints msg and returns defaultYes.
func (w *WatchPrompter) PromptYesNo(ctx context.Context, msg string, defaultYes bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	answer := "n"
	if defaultYes {
		answer = "y"
	}
	fmt.Fprintf(w.writer(), "\n? %s %s\n", msg, ux.Styles.Muted.Render("(watch mode: "+answer+")"))
	return defaultYes, nil
}

var _ envcheck.Prompter = (*WatchPrompter)(nil)
