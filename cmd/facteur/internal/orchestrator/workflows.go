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

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/AleutianAI/facteur/cmd/facteur/internal/pipeline"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/releasetree"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/retention"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/rollback"
)

// Step labels, in the order workflows use them.
const (
	StepCreateDirs     = "Creating base directories"
	StepResolveBase    = "Resolving base directory"
	StepCreateRelease  = "Creating release directory"
	StepCheckout       = "Checking out repository"
	StepInstall        = "Installing dependencies"
	StepEnvFromExample = "Creating environment file"
	StepEnvCopy        = "Copying environment file"
	StepSeedStorage    = "Moving storage to shared"
	StepLinkStorage    = "Linking shared storage"
	StepMigrate        = "Running migrations"
	StepSwitchCurrent  = "Switching current release"
	StepCleanup        = "Cleaning old releases"
	StepSelectPrevious = "Selecting previous release"
)

// =============================================================================
// Workflows
// =============================================================================

// Init creates a new deployment target at dir and publishes its first
// release from repo.
//
// # Description
//
// Refuses with ErrTargetAlreadyExists, before touching the disk, when dir
// exists. The first release's storage directory becomes the target's
// shared storage.
//
// # Outputs
//
//   - Outcome: Always populated.
//   - error: *PreconditionError or *pipeline.StepError.
func (o *Orchestrator) Init(ctx context.Context, dir, repo string) (Outcome, error) {
	r, err := o.begin(WorkflowInit, dir)
	if err != nil {
		return o.refuse(ctx, r, err)
	}
	r.repo = repo

	exists, err := r.tree.Exists()
	if err != nil {
		return o.refuse(ctx, r, &PreconditionError{Workflow: WorkflowInit, Reason: "cannot inspect base directory", Err: err})
	}
	if exists {
		return o.refuse(ctx, r, &PreconditionError{
			Workflow: WorkflowInit,
			Reason:   r.tree.Basedir(),
			Err:      ErrTargetAlreadyExists,
		})
	}

	p := o.newPipeline(r).Add(
		pipeline.Step{Name: StepCreateDirs, Run: r.createBaseDirs},
		pipeline.Step{Name: StepResolveBase, Run: r.resolveBase},
		pipeline.Step{Name: StepCreateRelease, Run: r.createRelease},
		pipeline.Step{Name: StepCheckout, Run: r.checkout},
		pipeline.Step{Name: StepInstall, Run: r.install},
		pipeline.Step{Name: StepEnvFromExample, Run: r.envFromExample, NonFatal: true},
		pipeline.Step{Name: StepSeedStorage, Run: r.seedSharedStorage},
		pipeline.Step{Name: StepSwitchCurrent, Run: r.switchCurrent},
	)
	return o.finish(ctx, r, p, p.Run(ctx))
}

// Deploy publishes a new release of repo on an initialized target.
//
// # Description
//
// The new release reuses the environment file of the live release and
// links its storage to shared storage. A failed migration or a failed
// cleanup degrades the outcome without failing it.
//
// # Outputs
//
//   - Outcome: Always populated.
//   - error: *PreconditionError or *pipeline.StepError. Nil for a
//     degraded success.
func (o *Orchestrator) Deploy(ctx context.Context, dir, repo string) (Outcome, error) {
	r, err := o.begin(WorkflowDeploy, dir)
	if err != nil {
		return o.refuse(ctx, r, err)
	}
	r.repo = repo

	if err := r.requireInitialized(); err != nil {
		return o.refuse(ctx, r, err)
	}

	p := o.newPipeline(r).Add(
		pipeline.Step{Name: StepResolveBase, Run: r.resolveBase},
		pipeline.Step{Name: StepCreateRelease, Run: r.createRelease},
		pipeline.Step{Name: StepCheckout, Run: r.checkout},
		pipeline.Step{Name: StepEnvCopy, Run: r.copyEnv, NonFatal: true},
		pipeline.Step{Name: StepInstall, Run: r.install},
		pipeline.Step{Name: StepLinkStorage, Run: r.linkSharedStorage},
		pipeline.Step{Name: StepMigrate, Run: r.migrate, NonFatal: true},
		pipeline.Step{Name: StepSwitchCurrent, Run: r.switchCurrent},
		pipeline.Step{Name: StepCleanup, Run: r.cleanup, NonFatal: true},
	)
	return o.finish(ctx, r, p, p.Run(ctx))
}

// Rollback points current at the release before the live one.
//
// # Description
//
// Nothing is deleted. Rolling back repeatedly walks further back; the
// oldest release cannot be rolled back from.
//
// # Outputs
//
//   - Outcome: ReleaseID is the new live release, PreviousID the old one.
//   - error: *PreconditionError wrapping rollback.ErrNoPreviousRelease
//     with fewer than two releases, or *pipeline.StepError.
func (o *Orchestrator) Rollback(ctx context.Context, dir string) (Outcome, error) {
	r, err := o.begin(WorkflowRollback, dir)
	if err != nil {
		return o.refuse(ctx, r, err)
	}

	exists, err := r.tree.Exists()
	if err != nil || !exists {
		return o.refuse(ctx, r, &PreconditionError{Workflow: WorkflowRollback, Reason: r.tree.Basedir(), Err: ErrNotInitialized})
	}
	ids, err := r.tree.ListReleases()
	if err != nil {
		return o.refuse(ctx, r, &PreconditionError{Workflow: WorkflowRollback, Reason: "cannot list releases", Err: err})
	}
	if len(ids) < 2 {
		return o.refuse(ctx, r, &PreconditionError{
			Workflow: WorkflowRollback,
			Reason:   fmt.Sprintf("%d release(s) on disk", len(ids)),
			Err:      rollback.ErrNoPreviousRelease,
		})
	}

	p := o.newPipeline(r).Add(
		pipeline.Step{Name: StepSelectPrevious, Run: r.selectPrevious},
		pipeline.Step{Name: StepSwitchCurrent, Run: r.switchCurrent},
	)
	return o.finish(ctx, r, p, p.Run(ctx))
}

// requireInitialized checks that the target has releases and a live one.
func (r *run) requireInitialized() error {
	refuse := func(reason string, err error) error {
		return &PreconditionError{Workflow: r.workflow, Reason: reason, Err: err}
	}

	exists, err := r.tree.Exists()
	if err != nil {
		return refuse("cannot inspect base directory", err)
	}
	if !exists {
		return refuse(r.tree.Basedir()+" does not exist", ErrNotInitialized)
	}
	ids, err := r.tree.ListReleases()
	if err != nil {
		return refuse("cannot list releases", err)
	}
	if len(ids) == 0 {
		return refuse("no releases", ErrNotInitialized)
	}
	if _, err := r.tree.Current(); err != nil {
		return refuse(err.Error(), ErrNotInitialized)
	}
	return nil
}

// =============================================================================
// Steps
// =============================================================================

func (r *run) createBaseDirs(context.Context) error {
	s := r.o.opts.Sink
	for _, dir := range []string{r.tree.Basedir(), r.tree.ReleasesDir(), r.tree.SharedDir()} {
		if err := s.MakeDir(dir); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func (r *run) resolveBase(context.Context) error {
	base, err := releasetree.Canonicalize(r.tree.Basedir())
	if err != nil {
		return err
	}
	r.tree = r.tree.WithBase(base)
	return nil
}

func (r *run) createRelease(context.Context) error {
	existing, err := r.tree.ListReleases()
	if err != nil {
		return err
	}
	r.release = releasetree.NextID(r.o.opts.Clock(), existing)
	r.logger = r.logger.With("release", r.release)

	dir := r.tree.ReleaseDir(r.release)
	if err := r.o.opts.Sink.MakeDir(dir); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

func (r *run) checkout(ctx context.Context) error {
	return r.o.opts.Sink.RunExternal(ctx, r.o.opts.Commands.Checkout(r.repo, r.tree.ReleaseDir(r.release)))
}

func (r *run) install(ctx context.Context) error {
	return r.o.opts.Sink.RunExternal(ctx, r.o.opts.Commands.Install(r.tree.ReleaseDir(r.release)))
}

func (r *run) migrate(ctx context.Context) error {
	return r.o.opts.Sink.RunExternal(ctx, r.o.opts.Commands.Migrate(r.tree.ReleaseDir(r.release)))
}

func (r *run) envFromExample(context.Context) error {
	return r.o.opts.Sink.CopyFile(r.tree.ReleaseEnvExample(r.release), r.tree.ReleaseEnvFile(r.release))
}

func (r *run) copyEnv(context.Context) error {
	return r.o.opts.Sink.CopyFile(r.tree.CurrentEnvFile(), r.tree.ReleaseEnvFile(r.release))
}

// seedSharedStorage moves the first release's storage into shared/ and
// links it back. A checkout without storage gets an empty shared dir.
func (r *run) seedSharedStorage(context.Context) error {
	s := r.o.opts.Sink
	shared := r.tree.SharedStorageDir()
	own := r.tree.ReleaseStorageDir(r.release)

	if err := s.MoveDir(own, shared); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("move storage: %w", err)
		}
		r.logger.Warn("Release has no storage directory, creating an empty one", "path", own)
		if err := s.MakeDir(shared); err != nil {
			return fmt.Errorf("create %s: %w", shared, err)
		}
	}
	if err := s.CreateSymlink(shared, own); err != nil {
		return fmt.Errorf("link storage: %w", err)
	}
	return nil
}

// linkSharedStorage replaces the checked-out storage with a link to the
// shared one.
func (r *run) linkSharedStorage(context.Context) error {
	s := r.o.opts.Sink
	own := r.tree.ReleaseStorageDir(r.release)
	if err := s.RemoveDirAll(own); err != nil {
		return fmt.Errorf("remove %s: %w", own, err)
	}
	if err := s.CreateSymlink(r.tree.SharedStorageDir(), own); err != nil {
		return fmt.Errorf("link storage: %w", err)
	}
	return nil
}

func (r *run) switchCurrent(context.Context) error {
	if err := r.o.opts.Sink.ReplaceSymlink(r.tree.ReleaseDir(r.release), r.tree.CurrentLink()); err != nil {
		return fmt.Errorf("switch current to %s: %w", r.release, err)
	}
	return nil
}

// cleanup enforces retention over the listed releases plus the new one,
// which a dry run never created.
func (r *run) cleanup(context.Context) error {
	listed, err := r.tree.ListReleases()
	if err != nil {
		return err
	}
	ordered := withRelease(listed, r.release)

	report, err := retention.NewEnforcer(r.o.policy, r.tree, r.o.opts.Sink, r.logger).Enforce(ordered)
	r.removed = report.Removed
	return err
}

func (r *run) selectPrevious(context.Context) error {
	ids, err := r.tree.ListReleases()
	if err != nil {
		return err
	}
	current, err := r.tree.Current()
	if err != nil {
		r.logger.Warn("Current link unreadable, assuming the newest release is live", "error", err)
		current = ""
	}

	target, err := rollback.Previous(ids, current)
	if err != nil {
		return err
	}
	r.previous = current
	r.release = target
	r.logger = r.logger.With("release", target)
	return nil
}

// withRelease returns ordered with id merged in, sorted and unique.
func withRelease(ordered []string, id string) []string {
	out := make([]string, 0, len(ordered)+1)
	for _, existing := range ordered {
		if existing != id {
			out = append(out, existing)
		}
	}
	out = append(out, id)
	sort.Strings(out)
	return out
}
