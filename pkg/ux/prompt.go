// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/huh"
)

// ErrPromptAborted is returned when the user cancels a prompt (Ctrl+C).
var ErrPromptAborted = errors.New("prompt aborted")

// Prompter asks the operator yes/no questions.
//
// # Description
//
// Destructive or surprising operations (rollback) ask for confirmation.
// Implementations decide how: a terminal form, a fixed answer for
// --yes and CI, or a scripted mock for tests.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Prompter interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// =============================================================================
// Terminal Prompter
// =============================================================================

// FormPrompter renders a huh confirm form on the terminal.
type FormPrompter struct {
	// Affirmative and Negative label the two buttons.
	Affirmative string
	Negative    string
}

// NewFormPrompter creates a FormPrompter with Yes/No buttons.
func NewFormPrompter() *FormPrompter {
	return &FormPrompter{Affirmative: "Yes", Negative: "No"}
}

// Confirm implements Prompter.
func (p *FormPrompter) Confirm(ctx context.Context, question string) (bool, error) {
	var answer bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(question).
				Affirmative(p.Affirmative).
				Negative(p.Negative).
				Value(&answer),
		),
	).WithAccessible(GetPersonality().Level == PersonalityMinimal)

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, ErrPromptAborted
		}
		return false, err
	}
	return answer, nil
}

// =============================================================================
// Fixed Prompter
// =============================================================================

// FixedPrompter answers every question with the same value. It backs
// --yes (Answer true) and non-interactive sessions (Answer false).
type FixedPrompter struct {
	Answer bool
}

// Confirm implements Prompter.
func (p FixedPrompter) Confirm(ctx context.Context, _ string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.Answer, nil
}

// NewPrompter picks a prompter for the current session.
//
// assumeYes wins over everything. Otherwise an interactive terminal gets
// the form, and anything else gets a FixedPrompter answering defaultAnswer.
func NewPrompter(assumeYes, defaultAnswer bool) Prompter {
	if assumeYes {
		return FixedPrompter{Answer: true}
	}
	if IsInteractive() {
		return NewFormPrompter()
	}
	return FixedPrompter{Answer: defaultAnswer}
}

// =============================================================================
// Mock Prompter
// =============================================================================

// MockPrompter is a test double that records questions.
type MockPrompter struct {
	ConfirmFunc func(ctx context.Context, question string) (bool, error)

	mu        sync.Mutex
	Questions []string
}

// Confirm implements Prompter.
func (m *MockPrompter) Confirm(ctx context.Context, question string) (bool, error) {
	m.mu.Lock()
	m.Questions = append(m.Questions, question)
	m.mu.Unlock()

	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, question)
	}
	return true, nil
}

var (
	_ Prompter = (*FormPrompter)(nil)
	_ Prompter = FixedPrompter{}
	_ Prompter = (*MockPrompter)(nil)
)
