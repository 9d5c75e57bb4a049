// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retention decides which old releases to delete and deletes them.
package retention

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/AleutianAI/facteur/cmd/facteur/internal/releasetree"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/sink"
)

// DefaultKeep is the number of releases kept after a deploy.
const DefaultKeep = 3

// =============================================================================
// Policy
// =============================================================================

// Policy keeps the Keep most recent releases.
type Policy struct {
	// Keep is the number of newest releases that survive. Values below 1
	// are treated as 1 so the live release is never a candidate.
	Keep int
}

// DefaultPolicy returns a Policy keeping DefaultKeep releases.
func DefaultPolicy() Policy {
	return Policy{Keep: DefaultKeep}
}

// ReleasesToDelete returns every id except the Keep most recent.
//
// # Description
//
// ordered must be sorted oldest first (as returned by
// releasetree.Tree.ListReleases). The result preserves that order. With
// Keep or fewer releases the result is empty, so cleanup is always safe
// to call.
//
// # Example
//
//	Policy{Keep: 3}.ReleasesToDelete([]string{"a", "b", "c", "d", "e"})
//	// => ["a", "b"]
func (p Policy) ReleasesToDelete(ordered []string) []string {
	keep := p.Keep
	if keep < 1 {
		keep = 1
	}
	if len(ordered) <= keep {
		return []string{}
	}
	out := make([]string, len(ordered)-keep)
	copy(out, ordered[:len(ordered)-keep])
	return out
}

// =============================================================================
// Enforcer
// =============================================================================

// Report describes one cleanup pass.
type Report struct {
	// Removed lists ids whose directories were deleted.
	Removed []string

	// Failed lists ids whose deletion failed.
	Failed []string

	// Kept lists the surviving ids.
	Kept []string
}

// Enforcer applies a Policy through an ActionSink.
type Enforcer struct {
	policy Policy
	tree   *releasetree.Tree
	sink   sink.ActionSink
	logger *slog.Logger
}

// NewEnforcer creates an Enforcer. A nil logger means slog.Default().
func NewEnforcer(policy Policy, tree *releasetree.Tree, s sink.ActionSink, logger *slog.Logger) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enforcer{policy: policy, tree: tree, sink: s, logger: logger}
}

// Enforce removes the releases the policy selects from ordered.
//
// # Description
//
// Every selected release is attempted even when an earlier removal fails.
// Failures are collected into a *multierror.Error; the caller decides
// whether they matter (deploy treats them as warnings).
//
// # Outputs
//
//   - Report: What was removed, what failed, what survived.
//   - error: Aggregated removal failures, or nil.
func (e *Enforcer) Enforce(ordered []string) (Report, error) {
	doomed := e.policy.ReleasesToDelete(ordered)
	report := Report{
		Removed: make([]string, 0, len(doomed)),
		Kept:    append([]string(nil), ordered[len(doomed):]...),
	}

	var result *multierror.Error
	for _, id := range doomed {
		path := e.tree.ReleaseDir(id)
		e.logger.Info("Destroying old release", "release", id, "path", path)
		if err := e.sink.RemoveDirAll(path); err != nil {
			e.logger.Warn("Failed to destroy old release", "release", id, "error", err)
			report.Failed = append(report.Failed, id)
			result = multierror.Append(result, fmt.Errorf("remove %s: %w", id, err))
			continue
		}
		report.Removed = append(report.Removed, id)
	}
	if result != nil {
		result.ErrorFormat = joinErrors
	}
	return report, result.ErrorOrNil()
}

// joinErrors renders removal failures on one line. They end up in
// outcome warnings and notification text.
func joinErrors(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}
