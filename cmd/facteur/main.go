// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command facteur manages zero-downtime releases of a Laravel
// application: init, deploy and rollback against a base directory
// holding releases/, shared/ and a current symlink.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/facteur/pkg/ux"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the command line and returns the process exit code.
func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetArgs(args)
	bindContext(ctx, rootCmd)
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	code := exitCode(err)
	var reported *workflowError
	if !errors.As(err, &reported) {
		ux.Error(err.Error())
	}
	if code == exitUsage {
		ux.Muted("Run 'facteur --help' for usage.")
	}
	return code
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if personalityFlag != "" {
			ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityFlag))
		} else {
			ux.InitPersonality()
		}
	}
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})
}

// bindContext gives cmd and all its subcommands ctx. Cobra only hands
// the root context to a subcommand that has none yet.
func bindContext(ctx context.Context, cmd *cobra.Command) {
	cmd.SetContext(ctx)
	for _, sub := range cmd.Commands() {
		bindContext(ctx, sub)
	}
}

// =============================================================================
// Exit Codes
// =============================================================================

// usageError marks bad arguments or configuration (exit 2).
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// workflowError marks a failed workflow whose failure has already been
// printed (exit 1).
type workflowError struct {
	err error
}

func (e *workflowError) Error() string { return e.err.Error() }
func (e *workflowError) Unwrap() error { return e.err }

// exitCode maps a command error to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var usage *usageError
	if errors.As(err, &usage) {
		return exitUsage
	}
	return exitFailure
}

// exactArgs is cobra.ExactArgs with a usage exit code.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

// maxArgs is cobra.MaximumNArgs with a usage exit code.
func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}
