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
	"errors"
	"fmt"
	"strings"
)

// CommandError wraps an external command failure with its captured output.
//
// # Description
//
// Returned by RunExternal when the process could not start or exited
// non-zero. The output is kept for diagnostics only; nothing parses it.
//
// # Example
//
//	var cmdErr *CommandError
//	if errors.As(err, &cmdErr) {
//	    fmt.Println(cmdErr.Stderr) // "fatal: repository not found"
//	}
type CommandError struct {
	// Command is the rendered command line.
	Command string

	// ExitCode is the process exit code (-1 if it never ran).
	ExitCode int

	// Stdout and Stderr are the captured streams, trimmed.
	Stdout string
	Stderr string

	// Wrapped is the underlying error.
	Wrapped error
}

// Error returns "<command> (exit N): <stderr or cause>".
func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s (exit %d): %s", e.Command, e.ExitCode, lastLine(e.Stderr))
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s (exit %d): %v", e.Command, e.ExitCode, e.Wrapped)
	}
	return fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Wrapped
}

// NewCommandError creates a CommandError. Output is trimmed.
func NewCommandError(cmd string, exitCode int, stdout, stderr string, wrapped error) *CommandError {
	return &CommandError{
		Command:  cmd,
		ExitCode: exitCode,
		Stdout:   strings.TrimSpace(stdout),
		Stderr:   strings.TrimSpace(stderr),
		Wrapped:  wrapped,
	}
}

// ExtractStderr returns the stderr of the first CommandError in err's
// chain, or "".
func ExtractStderr(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Stderr
	}
	return ""
}

// lastLine keeps error strings to one line; tools like composer print
// pages of progress before the actual failure.
func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
