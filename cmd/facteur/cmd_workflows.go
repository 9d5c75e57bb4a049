// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/facteur/cmd/facteur/internal/orchestrator"
	"github.com/AleutianAI/facteur/pkg/ux"
)

// errRollbackDeclined is returned when the operator answers no.
var errRollbackDeclined = errors.New("rollback cancelled")

// initChecklist is printed after a successful init.
var initChecklist = []string{
	"edit your .env file and add your configuration data",
	"run `php artisan key:generate` in `current` dir",
	"setup nginx",
	"run your migrations",
	"chown your basedir with user you want to use",
}

var workflowTitles = map[orchestrator.Workflow]string{
	orchestrator.WorkflowInit:     "Initialization",
	orchestrator.WorkflowDeploy:   "Deployment",
	orchestrator.WorkflowRollback: "Rollback",
}

func runInit(cmd *cobra.Command, args []string) error {
	return runWorkflow(cmd, orchestrator.WorkflowInit, args)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	return runWorkflow(cmd, orchestrator.WorkflowDeploy, args)
}

func runRollback(cmd *cobra.Command, args []string) error {
	if !pretend {
		question := fmt.Sprintf("Switch %s back to the previous release?", args[0])
		ok, err := newPrompter(assumeYes, true).Confirm(cmd.Context(), question)
		if err != nil {
			return err
		}
		if !ok {
			return errRollbackDeclined
		}
	}
	return runWorkflow(cmd, orchestrator.WorkflowRollback, args)
}

// runWorkflow executes one workflow and prints its banners.
//
// # Outputs
//
//   - error: nil for success, degraded or not. A *workflowError when the
//     workflow failed, after the failure has been printed.
func runWorkflow(cmd *cobra.Command, workflow orchestrator.Workflow, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ux.Title(workflowTitles[workflow])
	if pretend {
		ux.WarningBox("Pretend mode", "Actions are printed, nothing will be changed.")
	}

	orch := a.newOrchestrator(pretend)

	var out orchestrator.Outcome
	switch workflow {
	case orchestrator.WorkflowInit:
		out, err = orch.Init(ctx, args[0], args[1])
	case orchestrator.WorkflowDeploy:
		out, err = orch.Deploy(ctx, args[0], args[1])
	case orchestrator.WorkflowRollback:
		out, err = orch.Rollback(ctx, args[0])
	default:
		return fmt.Errorf("unknown workflow %q", workflow)
	}

	a.afterRun(ctx, out)

	if err != nil {
		printFailure(out, err)
		return &workflowError{err: err}
	}
	printSuccess(out)
	return nil
}

func printFailure(out orchestrator.Outcome, err error) {
	if out.FailedStep != "" {
		ux.Error(fmt.Sprintf("%s failed at %q: %v", workflowTitles[out.Workflow], out.FailedStep, err))
	} else {
		ux.Error(fmt.Sprintf("%s failed: %v", workflowTitles[out.Workflow], err))
	}
	if errors.Is(err, orchestrator.ErrNotInitialized) {
		ux.Info("Run 'facteur init <dir> <git-url>' first.")
	}
}

func printSuccess(out orchestrator.Outcome) {
	for _, w := range out.Warnings {
		ux.Warning(w)
	}

	switch out.Workflow {
	case orchestrator.WorkflowInit:
		ux.Success("Initialization done: current -> " + out.ReleaseID)
		ux.Checklist("Next steps", initChecklist)
	case orchestrator.WorkflowDeploy:
		ux.Success("Deployment Success: current -> " + out.ReleaseID)
		if len(out.Removed) > 0 {
			ux.Muted(fmt.Sprintf("Removed %d old release(s)", len(out.Removed)))
		}
	case orchestrator.WorkflowRollback:
		if out.PreviousID != "" {
			ux.Success(fmt.Sprintf("Rollback done: current %s -> %s", out.PreviousID, out.ReleaseID))
		} else {
			ux.Success("Rollback done: current -> " + out.ReleaseID)
		}
	}
}
