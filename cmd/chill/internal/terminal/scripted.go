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
	"sync"

	"github.com/t3chill/chill/cmd/chill/internal/envcheck"
)

// ScriptedPrompter replays canned answers. It is used for non-interactive
// runs (`--yes`) and in tests.
type ScriptedPrompter struct {
	// OnContinue runs on every PromptContinue with the 1-based call count.
	// Tests use it to fix files between validation rounds. Nil returns nil.
	OnContinue func(n int) error

	// Answers are consumed by PromptYesNo in order; once exhausted the
	// default is returned.
	Answers []bool

	mu        sync.Mutex
	continues int
	questions int
	messages  []string
}

// PromptContinue records msg and calls OnContinue.
func (s *ScriptedPrompter) PromptContinue(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.continues++
	n := s.continues
	s.messages = append(s.messages, msg)
	fn := s.OnContinue
	s.mu.Unlock()

	if fn == nil {
		return nil
	}
	return fn(n)
}

// PromptYesNo returns the next scripted answer.
func (s *ScriptedPrompter) PromptYesNo(ctx context.Context, msg string, defaultYes bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	i := s.questions
	s.questions++
	if i < len(s.Answers) {
		return s.Answers[i], nil
	}
	return defaultYes, nil
}

// Continues returns the number of PromptContinue calls.
func (s *ScriptedPrompter) Continues() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.continues
}

// Questions returns the number of PromptYesNo calls.
func (s *ScriptedPrompter) Questions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questions
}

// Messages returns every prompt shown, in order.
func (s *ScriptedPrompter) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

var _ envcheck.Prompter = (*ScriptedPrompter)(nil)
