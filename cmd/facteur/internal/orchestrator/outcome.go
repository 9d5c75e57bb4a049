// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import "time"

// Workflow names a top-level operation.
type Workflow string

const (
	WorkflowInit     Workflow = "init"
	WorkflowDeploy   Workflow = "deploy"
	WorkflowRollback Workflow = "rollback"
)

// Status is the overall result of a run.
type Status string

const (
	// StatusSuccess means every step succeeded.
	StatusSuccess Status = "success"

	// StatusDegraded means the run succeeded but a non-fatal step failed
	// (a migration or the cleanup of old releases).
	StatusDegraded Status = "degraded"

	// StatusFailed means a precondition or a fatal step failed.
	StatusFailed Status = "failed"
)

// Outcome describes one workflow run.
type Outcome struct {
	RunID    string
	Workflow Workflow
	Status   Status
	Basedir  string

	// ReleaseID is the release created (init, deploy) or switched to
	// (rollback).
	ReleaseID string

	// PreviousID is what current pointed at before a rollback.
	PreviousID string

	// Removed lists releases deleted by retention.
	Removed []string

	// Warnings holds non-fatal step failures as "step: error".
	Warnings []string

	// Steps lists every step label in execution order.
	Steps []string

	// Completed lists the steps that ran to completion.
	Completed []string

	// FailedStep names the fatal step, if any.
	FailedStep string

	// Error is the failure message, if any.
	Error string

	DryRun   bool
	Started  time.Time
	Duration time.Duration
}

// Succeeded reports whether the run succeeded, degraded or not.
func (o Outcome) Succeeded() bool {
	return o.Status != StatusFailed
}
