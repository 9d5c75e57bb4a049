// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package releasetree models the on-disk layout of a deployment target.
//
// # Layout
//
//	<basedir>/
//	  releases/
//	    <YYYYMMDDHHMMSS>/     one per release
//	  shared/
//	    storage/              target of every release's storage symlink
//	  current -> <basedir>/releases/<id>
//
// A Tree only constructs paths and reads the filesystem. Every mutation goes
// through a sink.ActionSink so that simulated runs stay side-effect free.
package releasetree

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// ErrNoCurrent is returned when the current link is missing or does not
// point into the releases directory.
var ErrNoCurrent = errors.New("current release link is missing or invalid")

// ErrLinksUnsupported is returned by Current when the filesystem cannot
// read symlinks (afero.MemMapFs, for example).
var ErrLinksUnsupported = errors.New("filesystem does not support symlinks")

// Layout names the fixed entries of a target. Names are single path
// elements; ReleasesDir, SharedDir and CurrentLink live under the base
// directory, the rest under a release directory.
type Layout struct {
	ReleasesDir string
	SharedDir   string
	CurrentLink string
	StorageDir  string
	EnvFile     string
	EnvExample  string
}

// DefaultLayout returns the standard releases/shared/current layout.
func DefaultLayout() Layout {
	return Layout{
		ReleasesDir: "releases",
		SharedDir:   "shared",
		CurrentLink: "current",
		StorageDir:  "storage",
		EnvFile:     ".env",
		EnvExample:  ".env.example",
	}
}

// Tree is the path model for one deployment target.
//
// # Thread Safety
//
// Tree is immutable after construction and safe for concurrent reads.
type Tree struct {
	base   string
	layout Layout
	fs     afero.Fs
}

// New creates a Tree rooted at base.
//
// # Inputs
//
//   - base: Base directory. Callers pass the result of Canonicalize so that
//     every step of a workflow agrees on the same absolute path.
//   - layout: Entry names. Zero-value fields fall back to DefaultLayout.
//   - fsys: Filesystem used for reads. Nil means the OS filesystem.
func New(base string, layout Layout, fsys afero.Fs) *Tree {
	def := DefaultLayout()
	fill := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	fill(&layout.ReleasesDir, def.ReleasesDir)
	fill(&layout.SharedDir, def.SharedDir)
	fill(&layout.CurrentLink, def.CurrentLink)
	fill(&layout.StorageDir, def.StorageDir)
	fill(&layout.EnvFile, def.EnvFile)
	fill(&layout.EnvExample, def.EnvExample)

	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Tree{base: base, layout: layout, fs: fsys}
}

// Canonicalize resolves path to an absolute path with symlinks evaluated.
//
// A path that does not exist yet (a dry-run init, for instance) resolves
// to its cleaned absolute form.
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return abs, nil
		}
		return "", fmt.Errorf("resolve %s: %w", abs, err)
	}
	return resolved, nil
}

// WithBase returns a copy of the tree rooted at base.
func (t *Tree) WithBase(base string) *Tree {
	return &Tree{base: base, layout: t.layout, fs: t.fs}
}

// Basedir returns the base directory.
func (t *Tree) Basedir() string { return t.base }

// Layout returns the entry names in use.
func (t *Tree) Layout() Layout { return t.layout }

// ReleasesDir returns <base>/releases.
func (t *Tree) ReleasesDir() string { return filepath.Join(t.base, t.layout.ReleasesDir) }

// SharedDir returns <base>/shared.
func (t *Tree) SharedDir() string { return filepath.Join(t.base, t.layout.SharedDir) }

// SharedStorageDir returns <base>/shared/storage.
func (t *Tree) SharedStorageDir() string {
	return filepath.Join(t.SharedDir(), t.layout.StorageDir)
}

// CurrentLink returns <base>/current.
func (t *Tree) CurrentLink() string { return filepath.Join(t.base, t.layout.CurrentLink) }

// CurrentEnvFile returns <base>/current/.env.
func (t *Tree) CurrentEnvFile() string { return filepath.Join(t.CurrentLink(), t.layout.EnvFile) }

// ReleaseDir returns <base>/releases/<id>.
func (t *Tree) ReleaseDir(id string) string { return filepath.Join(t.ReleasesDir(), id) }

// ReleaseStorageDir returns <base>/releases/<id>/storage.
func (t *Tree) ReleaseStorageDir(id string) string {
	return filepath.Join(t.ReleaseDir(id), t.layout.StorageDir)
}

// ReleaseEnvFile returns <base>/releases/<id>/.env.
func (t *Tree) ReleaseEnvFile(id string) string {
	return filepath.Join(t.ReleaseDir(id), t.layout.EnvFile)
}

// ReleaseEnvExample returns <base>/releases/<id>/.env.example.
func (t *Tree) ReleaseEnvExample(id string) string {
	return filepath.Join(t.ReleaseDir(id), t.layout.EnvExample)
}

// Exists reports whether the base directory exists (as any file type).
func (t *Tree) Exists() (bool, error) {
	return afero.Exists(t.fs, t.base)
}

// ListReleases returns release ids, oldest first.
//
// # Description
//
// Lists the releases directory and keeps entries that are directories
// named like a release id. The result is sorted lexically, which is also
// chronological because ids are fixed-width timestamps.
//
// # Outputs
//
//   - []string: Ordered ids. Empty (not nil error) if the releases
//     directory is missing or empty.
//   - error: Non-nil only for read failures other than not-exist.
func (t *Tree) ListReleases() ([]string, error) {
	entries, err := afero.ReadDir(t.fs, t.ReleasesDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list releases: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || !IsReleaseID(e.Name()) {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// Current returns the id of the release the current link targets.
//
// # Outputs
//
//   - string: Release id.
//   - error: ErrNoCurrent if the link is absent, dangling or points
//     outside the releases directory; ErrLinksUnsupported on filesystems
//     without symlinks.
func (t *Tree) Current() (string, error) {
	reader, ok := t.fs.(afero.LinkReader)
	if !ok {
		return "", ErrLinksUnsupported
	}

	target, err := reader.ReadlinkIfPossible(t.CurrentLink())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNoCurrent
		}
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			// Exists but is not a symlink.
			return "", fmt.Errorf("%w: %v", ErrNoCurrent, err)
		}
		return "", fmt.Errorf("read current link: %w", err)
	}

	if !filepath.IsAbs(target) {
		target = filepath.Join(t.base, target)
	}
	target = filepath.Clean(target)

	if filepath.Dir(target) != t.ReleasesDir() {
		return "", fmt.Errorf("%w: %s points outside %s", ErrNoCurrent, target, t.ReleasesDir())
	}
	id := filepath.Base(target)

	info, err := t.fs.Stat(target)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a release directory", ErrNoCurrent, target)
	}
	return id, nil
}
