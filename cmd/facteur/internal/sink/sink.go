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
Package sink mediates every effect a workflow has on the host.

Workflows never touch the filesystem or spawn processes directly. They call
an ActionSink, and the caller decides which one: Real performs the effect,
Simulated prints what would have happened. Swapping the sink is the whole
dry-run mechanism, so a workflow behaves identically in both modes up to
the point where the effect would land.

# Failure Contract

Every method either applies its effect completely or returns an error and
leaves the source untouched. MoveDir and ReplaceSymlink rely on rename(2)
being atomic within one filesystem.
*/
package sink

import (
	"context"
	"errors"
	"strings"
)

// ErrLinksUnsupported is returned when the backing filesystem cannot
// create symlinks.
var ErrLinksUnsupported = errors.New("filesystem does not support symlinks")

// ActionSink performs (or describes) one primitive effect per call.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use, although workflows call
// them strictly sequentially.
type ActionSink interface {
	// MakeDir creates path and any missing parents. An existing directory
	// is success.
	MakeDir(path string) error

	// RunExternal runs a command to completion. A non-zero exit is a
	// *CommandError carrying the captured output.
	RunExternal(ctx context.Context, cmd Command) error

	// CopyFile copies src to dst, replacing dst.
	CopyFile(src, dst string) error

	// MoveDir renames src to dst.
	MoveDir(src, dst string) error

	// RemoveFile removes a file or symlink.
	RemoveFile(path string) error

	// RemoveDirAll removes path and everything below it. A missing path
	// is success.
	RemoveDirAll(path string) error

	// CreateSymlink creates link pointing at target. link must not exist.
	CreateSymlink(target, link string) error

	// ReplaceSymlink points link at target in one observable step, whether
	// or not link already exists.
	ReplaceSymlink(target, link string) error
}

// Command describes an external process invocation.
type Command struct {
	// Name is the executable, resolved through PATH.
	Name string

	// Args are passed verbatim, without shell interpretation.
	Args []string

	// Dir is the working directory. Empty means the caller's.
	Dir string
}

// String renders the command the way an operator would type it.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Name))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.ContainsAny(s, " \t\n'\"$`\\") {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return s
}
