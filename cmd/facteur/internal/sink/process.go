// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
)

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// ProcessRunner executes external processes for the Real sink.
//
// # Description
//
// Abstracts os/exec so that workflows can be tested against scripted
// git/composer/php behavior without those tools installed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
type ProcessRunner interface {
	// Run executes cmd and waits for it to exit.
	//
	// # Outputs
	//
	//   - Output: Captured streams and exit code. Populated even on failure.
	//   - error: Non-nil if the process could not start, exited non-zero,
	//     or ctx was cancelled.
	Run(ctx context.Context, cmd Command) (Output, error)
}

// Output is what a finished process produced.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// ExecRunner implements ProcessRunner using os/exec.
type ExecRunner struct{}

// NewExecRunner creates the production ProcessRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes a command synchronously and captures its output.
func (r *ExecRunner) Run(ctx context.Context, c Command) (Output, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: 0}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, err
		}
		out.ExitCode = -1
		return out, fmt.Errorf("start %s: %w", c.Name, err)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockRunner is a test double for ProcessRunner.
//
// # Examples
//
//	mock := &MockRunner{
//	    RunFunc: func(ctx context.Context, cmd Command) (Output, error) {
//	        if cmd.Name == "git" {
//	            return Output{}, os.MkdirAll(cmd.Args[len(cmd.Args)-1], 0755)
//	        }
//	        return Output{}, nil
//	    },
//	}
type MockRunner struct {
	// RunFunc is called when Run is invoked. Nil means success with no output.
	RunFunc func(ctx context.Context, cmd Command) (Output, error)

	// Calls records all invocations for verification
	Calls []Command

	// mu protects Calls for concurrent access
	mu sync.Mutex
}

// Run delegates to RunFunc and records the call.
func (m *MockRunner) Run(ctx context.Context, cmd Command) (Output, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, cmd)
	m.mu.Unlock()

	if m.RunFunc == nil {
		return Output{}, nil
	}
	return m.RunFunc(ctx, cmd)
}

// GetCalls returns a copy of all recorded calls.
func (m *MockRunner) GetCalls() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Command, len(m.Calls))
	copy(result, m.Calls)
	return result
}

// Compile-time interface checks
var (
	_ ProcessRunner = (*ExecRunner)(nil)
	_ ProcessRunner = (*MockRunner)(nil)
)
