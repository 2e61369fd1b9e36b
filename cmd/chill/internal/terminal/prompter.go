// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package terminal implements operator prompts: single keypresses on a TTY,
// line input when stdin is piped, and a file-watch mode that waits for the
// environment files to change instead of a key.
package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/t3chill/chill/cmd/chill/internal/envcheck"
	"github.com/t3chill/chill/pkg/ux"
)

var (
	// ErrInterrupted is returned when the operator presses Ctrl+C while the
	// terminal is in raw mode.
	ErrInterrupted = errors.New("interrupted by user")

	// ErrNoInput is returned when stdin is closed, so no answer can come.
	ErrNoInput = errors.New("no input available")
)

const ctrlC = 0x03

// KeyPrompter reads answers from a terminal or a piped reader.
//
// On a TTY each prompt switches the terminal to raw mode, reads a single
// keypress, and restores the terminal before returning, including when ctx
// is cancelled. Otherwise it reads whole lines.
type KeyPrompter struct {
	in  io.Reader
	fd  int
	tty bool
	out io.Writer

	mu     sync.Mutex
	reader *bufio.Reader
}

// NewKeyPrompter creates a prompter over in. A nil out writes to ux.Stdout.
func NewKeyPrompter(in *os.File, out io.Writer) *KeyPrompter {
	fd := int(in.Fd())
	return &KeyPrompter{
		in:  in,
		fd:  fd,
		tty: isatty.IsTerminal(in.Fd()) || isatty.IsCygwinTerminal(in.Fd()),
		out: out,
	}
}

// NewReaderPrompter creates a line-mode prompter over r.
func NewReaderPrompter(r io.Reader, out io.Writer) *KeyPrompter {
	return &KeyPrompter{in: r, fd: -1, out: out}
}

func (p *KeyPrompter) writer() io.Writer {
	if p.out != nil {
		return p.out
	}
	return ux.Stdout()
}

// PromptContinue shows msg and waits for any key (or a line).
func (p *KeyPrompter) PromptContinue(ctx context.Context, msg string) error {
	fmt.Fprintf(p.writer(), "\n%s %s\n", ux.IconPending.Render(), ux.Styles.Warning.Render(msg))
	_, err := p.read(ctx)
	return err
}

// PromptYesNo shows msg and reads y/yes or n/no. Anything else, including
// Enter, yields defaultYes.
func (p *KeyPrompter) PromptYesNo(ctx context.Context, msg string, defaultYes bool) (bool, error) {
	fmt.Fprintf(p.writer(), "\n%s %s ", ux.Styles.Warning.Render("?"), msg)
	answer, err := p.read(ctx)
	if err != nil {
		return false, err
	}
	fmt.Fprintln(p.writer())
	return ParseYesNo(answer, defaultYes), nil
}

// ParseYesNo interprets an answer.
func ParseYesNo(answer string, defaultYes bool) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return defaultYes
	}
}

type readResult struct {
	s   string
	err error
}

func (p *KeyPrompter) read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.tty {
		return p.readKey(ctx)
	}
	return p.readLine(ctx)
}

// readKey reads one raw keypress. The terminal state is restored on every
// exit path.
func (p *KeyPrompter) readKey(ctx context.Context) (string, error) {
	state, err := term.MakeRaw(p.fd)
	if err != nil {
		// Raw mode unavailable, e.g. a dumb terminal.
		return p.readLine(ctx)
	}
	defer func() { _ = term.Restore(p.fd, state) }()

	ch := make(chan readResult, 1)
	go func() {
		buf := make([]byte, 16)
		n, err := p.in.Read(buf)
		ch <- readResult{s: string(buf[:n]), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if len(r.s) > 0 && r.s[0] == ctrlC {
			return "", ErrInterrupted
		}
		if r.err != nil && r.s == "" {
			return "", fmt.Errorf("%w: %v", ErrNoInput, r.err)
		}
		return r.s, nil
	}
}

func (p *KeyPrompter) readLine(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.reader == nil {
		p.reader = bufio.NewReader(p.in)
	}
	reader := p.reader
	p.mu.Unlock()

	ch := make(chan readResult, 1)
	go func() {
		line, err := reader.ReadString('\n')
		ch <- readResult{s: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil && r.s == "" {
			if errors.Is(r.err, io.EOF) {
				return "", ErrNoInput
			}
			return "", fmt.Errorf("%w: %v", ErrNoInput, r.err)
		}
		return strings.TrimRight(r.s, "\r\n"), nil
	}
}

var _ envcheck.Prompter = (*KeyPrompter)(nil)
