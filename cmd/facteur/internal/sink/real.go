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
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Real performs effects against an afero filesystem and a ProcessRunner.
//
// # Description
//
// Production code uses afero.NewOsFs and ExecRunner. Symlink operations
// need a filesystem implementing afero.Linker; OsFs does.
type Real struct {
	fs     afero.Fs
	runner ProcessRunner
	logger *slog.Logger
}

// RealOption configures a Real sink.
type RealOption func(*Real)

// WithFs overrides the filesystem (default afero.NewOsFs()).
func WithFs(fsys afero.Fs) RealOption {
	return func(r *Real) { r.fs = fsys }
}

// WithRunner overrides the process runner (default ExecRunner).
func WithRunner(runner ProcessRunner) RealOption {
	return func(r *Real) { r.runner = runner }
}

// WithLogger sets the logger used for captured command output.
func WithLogger(logger *slog.Logger) RealOption {
	return func(r *Real) { r.logger = logger }
}

// NewReal creates a Real sink.
func NewReal(opts ...RealOption) *Real {
	r := &Real{
		fs:     afero.NewOsFs(),
		runner: NewExecRunner(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Fs returns the filesystem the sink writes to.
func (r *Real) Fs() afero.Fs { return r.fs }

// MakeDir implements ActionSink.
func (r *Real) MakeDir(path string) error {
	if err := r.fs.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

// RunExternal implements ActionSink.
func (r *Real) RunExternal(ctx context.Context, cmd Command) error {
	rendered := cmd.String()
	out, err := r.runner.Run(ctx, cmd)

	r.logger.Debug("command finished",
		"command", rendered,
		"dir", cmd.Dir,
		"exit_code", out.ExitCode,
		"stdout", string(out.Stdout),
		"stderr", string(out.Stderr),
	)

	if err != nil {
		return NewCommandError(rendered, out.ExitCode, string(out.Stdout), string(out.Stderr), err)
	}
	return nil
}

// CopyFile implements ActionSink.
//
// The copy lands in a temporary sibling first and is renamed over dst, so
// a failed copy never leaves a truncated dst behind.
func (r *Real) CopyFile(src, dst string) error {
	in, err := r.fs.Open(src)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if info.IsDir() {
		return fmt.Errorf("copy %s: is a directory", src)
	}

	tmp := tempSibling(dst)
	out, err := r.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("copy to %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = r.fs.Remove(tmp)
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		_ = r.fs.Remove(tmp)
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := r.fs.Rename(tmp, dst); err != nil {
		_ = r.fs.Remove(tmp)
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return nil
}

// MoveDir implements ActionSink.
func (r *Real) MoveDir(src, dst string) error {
	if err := r.fs.Rename(src, dst); err != nil {
		return fmt.Errorf("move %s to %s: %w", src, dst, err)
	}
	return nil
}

// RemoveFile implements ActionSink.
func (r *Real) RemoveFile(path string) error {
	if err := r.fs.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// RemoveDirAll implements ActionSink.
func (r *Real) RemoveDirAll(path string) error {
	if err := r.fs.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// CreateSymlink implements ActionSink.
func (r *Real) CreateSymlink(target, link string) error {
	linker, ok := r.fs.(afero.Linker)
	if !ok {
		return ErrLinksUnsupported
	}
	if err := linker.SymlinkIfPossible(target, link); err != nil {
		return fmt.Errorf("symlink %s -> %s: %w", link, target, err)
	}
	return nil
}

// ReplaceSymlink implements ActionSink.
//
// A new link is created under a temporary name and renamed over link.
// Readers see either the old target or the new one, never a missing link.
func (r *Real) ReplaceSymlink(target, link string) error {
	tmp := tempSibling(link)
	if err := r.CreateSymlink(target, tmp); err != nil {
		return err
	}
	if err := r.fs.Rename(tmp, link); err != nil {
		if rmErr := r.RemoveFile(tmp); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			r.logger.Warn("stale temporary link left behind", "path", tmp, "error", rmErr)
		}
		return fmt.Errorf("switch %s -> %s: %w", link, target, err)
	}
	return nil
}

func tempSibling(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp-"+uuid.NewString()[:8])
}

// Compile-time interface check
var _ ActionSink = (*Real)(nil)
