// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator runs the init, deploy and rollback workflows.
//
// Each workflow checks its preconditions, then runs a fixed pipeline of
// steps against a release tree through an ActionSink. Every mutation goes
// through the sink, so swapping the Real sink for the Simulated one turns
// any workflow into a dry run without changing its logic.
//
// The current link is always switched by the last mutating step before
// cleanup. A fatal failure anywhere before it leaves the live release
// untouched.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/facteur/cmd/facteur/internal/notify"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/pipeline"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/releasetree"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/retention"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/sink"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/telemetry"
)

// Options configures an Orchestrator. Sink and Commands are required.
type Options struct {
	// Sink performs every mutation. Use *sink.Simulated for a dry run.
	Sink sink.ActionSink

	// Commands builds checkout, install and migrate invocations.
	Commands Commands

	// Layout names entries under the base directory.
	Layout releasetree.Layout

	// Fs is used for read-only inspection of the tree. Default: OS.
	Fs afero.Fs

	// Keep is the retention count. Default: retention.DefaultKeep
	Keep int

	// DryRun is recorded on outcomes. It does not change behavior; the
	// Sink does.
	DryRun bool

	Notifier notify.Notifier
	Metrics  telemetry.Metrics
	Logger   *slog.Logger
	Tracer   trace.Tracer

	// Clock supplies release ids. Default: time.Now
	Clock func() time.Time

	// NewRunID supplies run ids. Default: uuid.NewString
	NewRunID func() string

	// OnStepStart and OnStepDone report progress to a front end. err is
	// nil on success; nonFatal marks a failure the run survives.
	OnStepStart func(label string)
	OnStepDone  func(label string, err error, nonFatal bool)
}

// Orchestrator runs workflows. It holds no per-run state; one instance
// may run several workflows in sequence.
//
// # Thread Safety
//
// Runs must not overlap on the same target. Nothing here locks the
// filesystem.
type Orchestrator struct {
	opts     Options
	policy   retention.Policy
	template *releasetree.Tree
}

// New creates an Orchestrator, filling defaults.
func New(opts Options) *Orchestrator {
	if opts.Keep <= 0 {
		opts.Keep = retention.DefaultKeep
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewNopMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	return &Orchestrator{
		opts:     opts,
		policy:   retention.Policy{Keep: opts.Keep},
		template: releasetree.New("", opts.Layout, opts.Fs),
	}
}

// run is the state shared by the steps of one workflow execution.
type run struct {
	o        *Orchestrator
	workflow Workflow
	id       string
	repo     string
	tree     *releasetree.Tree
	logger   *slog.Logger
	started  time.Time

	release  string
	previous string
	removed  []string
}

// begin resolves the base directory and prepares a run.
func (o *Orchestrator) begin(workflow Workflow, dir string) (*run, error) {
	r := &run{
		o:        o,
		workflow: workflow,
		id:       o.opts.NewRunID(),
		started:  o.opts.Clock(),
	}
	r.tree = o.template.WithBase(dir)
	r.logger = o.opts.Logger.With("run_id", r.id, "workflow", string(workflow))

	base, err := releasetree.Canonicalize(dir)
	if err != nil {
		return r, &PreconditionError{Workflow: workflow, Reason: "cannot resolve base directory", Err: err}
	}
	r.tree = r.tree.WithBase(base)
	r.logger = r.logger.With("basedir", base)
	return r, nil
}

func (o *Orchestrator) newPipeline(r *run) *pipeline.Pipeline {
	return pipeline.New(string(r.workflow), pipeline.Config{
		Logger: r.logger,
		Tracer: o.opts.Tracer,
		OnStepStart: func(step pipeline.Step) {
			if o.opts.OnStepStart != nil {
				o.opts.OnStepStart(step.Name)
			}
		},
		OnStepComplete: func(step pipeline.Step, d time.Duration) {
			o.opts.Metrics.RecordStep(string(r.workflow), step.Name, true, d)
			if o.opts.OnStepDone != nil {
				o.opts.OnStepDone(step.Name, nil, false)
			}
		},
		OnStepFail: func(step pipeline.Step, err error, d time.Duration) {
			o.opts.Metrics.RecordStep(string(r.workflow), step.Name, false, d)
			if o.opts.OnStepDone != nil {
				o.opts.OnStepDone(step.Name, err, false)
			}
		},
		OnStepWarn: func(step pipeline.Step, err error, d time.Duration) {
			o.opts.Metrics.RecordStep(string(r.workflow), step.Name, false, d)
			if o.opts.OnStepDone != nil {
				o.opts.OnStepDone(step.Name, err, true)
			}
		},
	})
}

// outcome snapshots the run into an Outcome.
func (r *run) outcome() Outcome {
	return Outcome{
		RunID:      r.id,
		Workflow:   r.workflow,
		Basedir:    r.tree.Basedir(),
		ReleaseID:  r.release,
		PreviousID: r.previous,
		Removed:    r.removed,
		DryRun:     r.o.opts.DryRun,
		Started:    r.started,
	}
}

// refuse ends a run whose preconditions do not hold.
func (o *Orchestrator) refuse(ctx context.Context, r *run, err error) (Outcome, error) {
	out := r.outcome()
	out.Status = StatusFailed
	out.Error = err.Error()
	r.logger.Error("Workflow refused", "error", err)
	o.report(ctx, r, out)
	return out, err
}

// finish converts a pipeline result into an Outcome and reports it.
func (o *Orchestrator) finish(ctx context.Context, r *run, p *pipeline.Pipeline, res pipeline.Result) (Outcome, error) {
	out := r.outcome()
	out.Steps = p.StepNames()
	out.Completed = res.CompletedSteps
	out.FailedStep = res.FailedStep
	out.Duration = res.Duration
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, w.String())
	}

	switch {
	case !res.Success:
		out.Status = StatusFailed
		out.Error = res.Err.Error()
	case res.Degraded:
		out.Status = StatusDegraded
	default:
		out.Status = StatusSuccess
	}

	r.logger.Info("Workflow finished",
		"status", string(out.Status),
		"release", out.ReleaseID,
		"duration", out.Duration,
		"warnings", len(out.Warnings))
	o.report(ctx, r, out)
	return out, res.Err
}

// report sends metrics and the notification. Neither can fail the run, and
// the notification outlives a cancelled run.
func (o *Orchestrator) report(ctx context.Context, r *run, out Outcome) {
	o.opts.Metrics.RecordRun(string(out.Workflow), string(out.Status), out.Duration)
	if !o.opts.DryRun {
		o.opts.Metrics.RecordRemoved(len(out.Removed))
		if ids, err := r.tree.ListReleases(); err == nil {
			o.opts.Metrics.RecordReleases(len(ids))
		}
	}

	event := notify.Event{
		Workflow:  string(out.Workflow),
		Basedir:   out.Basedir,
		ReleaseID: out.ReleaseID,
		Degraded:  out.Status == StatusDegraded,
		Warnings:  out.Warnings,
	}
	switch {
	case out.Status == StatusFailed:
		event.Kind = notify.KindFailure
		event.Detail = out.Error
	case out.Workflow == WorkflowRollback:
		event.Kind = notify.KindRollbackSuccess
	default:
		event.Kind = notify.KindSuccess
	}

	if err := o.opts.Notifier.Notify(context.WithoutCancel(ctx), event); err != nil {
		r.logger.Warn("Notification failed", "error", err)
	}
}
