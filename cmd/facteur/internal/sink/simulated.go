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
	"context"
	"fmt"
	"io"
	"sync"
)

// Action is one effect a Simulated sink was asked to perform.
type Action struct {
	// Op is the ActionSink method name, e.g. "MakeDir".
	Op string

	// Description is the shell-like rendering, e.g. "mkdir -p /srv/app".
	Description string
}

// Simulated describes effects instead of performing them.
//
// # Description
//
// Each call appends an Action and, when an output writer is set, prints
// "<[Pretend] description>" on its own line. Every call succeeds.
//
// # Thread Safety
//
// Safe for concurrent use.
type Simulated struct {
	out io.Writer

	mu      sync.Mutex
	actions []Action
}

// NewSimulated creates a Simulated sink printing to out. out may be nil.
func NewSimulated(out io.Writer) *Simulated {
	return &Simulated{out: out}
}

// Actions returns a copy of the recorded actions.
func (s *Simulated) Actions() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Action, len(s.actions))
	copy(result, s.actions)
	return result
}

func (s *Simulated) record(op, format string, args ...any) {
	desc := fmt.Sprintf(format, args...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, Action{Op: op, Description: desc})
	if s.out != nil {
		fmt.Fprintf(s.out, "<[Pretend] %s>\n", desc)
	}
}

// MakeDir implements ActionSink.
func (s *Simulated) MakeDir(path string) error {
	s.record("MakeDir", "mkdir -p %s", path)
	return nil
}

// RunExternal implements ActionSink.
func (s *Simulated) RunExternal(_ context.Context, cmd Command) error {
	if cmd.Dir != "" {
		s.record("RunExternal", "(cd %s && %s)", cmd.Dir, cmd.String())
		return nil
	}
	s.record("RunExternal", "%s", cmd.String())
	return nil
}

// CopyFile implements ActionSink.
func (s *Simulated) CopyFile(src, dst string) error {
	s.record("CopyFile", "cp %s %s", src, dst)
	return nil
}

// MoveDir implements ActionSink.
func (s *Simulated) MoveDir(src, dst string) error {
	s.record("MoveDir", "mv %s %s", src, dst)
	return nil
}

// RemoveFile implements ActionSink.
func (s *Simulated) RemoveFile(path string) error {
	s.record("RemoveFile", "rm %s", path)
	return nil
}

// RemoveDirAll implements ActionSink.
func (s *Simulated) RemoveDirAll(path string) error {
	s.record("RemoveDirAll", "rm -rf %s", path)
	return nil
}

// CreateSymlink implements ActionSink.
func (s *Simulated) CreateSymlink(target, link string) error {
	s.record("CreateSymlink", "ln -s %s %s", target, link)
	return nil
}

// ReplaceSymlink implements ActionSink.
func (s *Simulated) ReplaceSymlink(target, link string) error {
	s.record("ReplaceSymlink", "ln -sfn %s %s", target, link)
	return nil
}

// Compile-time interface check
var _ ActionSink = (*Simulated)(nil)
