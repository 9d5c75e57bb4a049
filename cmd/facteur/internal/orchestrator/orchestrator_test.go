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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/facteur/cmd/facteur/config"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/notify"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/pipeline"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/releasetree"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/rollback"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/sink"
)

// =============================================================================
// Test Helpers
// =============================================================================

var fixedNow = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTools emulates git, composer and php. A checkout populates the
// release with a storage directory and an .env.example.
type fakeTools struct {
	mu          sync.Mutex
	failCommand string
	calls       []sink.Command
}

func (f *fakeTools) run(_ context.Context, cmd sink.Command) (sink.Output, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	fail := f.failCommand == cmd.Name
	f.mu.Unlock()

	if fail {
		return sink.Output{Stderr: []byte(cmd.Name + ": boom"), ExitCode: 1}, errors.New("exit status 1")
	}

	if cmd.Name == "git" {
		release := cmd.Args[len(cmd.Args)-1]
		if err := os.MkdirAll(filepath.Join(release, "storage", "logs"), 0o755); err != nil {
			return sink.Output{ExitCode: 1}, err
		}
		if err := os.WriteFile(filepath.Join(release, ".env.example"), []byte("APP_ENV=production\n"), 0o644); err != nil {
			return sink.Output{ExitCode: 1}, err
		}
	}
	return sink.Output{}, nil
}

func (f *fakeTools) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Name
	}
	return out
}

type harness struct {
	base     string
	tools    *fakeTools
	notifier *notify.Mock
	orch     *Orchestrator
	tree     *releasetree.Tree
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		base:     filepath.Join(root, "app"),
		tools:    &fakeTools{},
		notifier: &notify.Mock{},
	}
	runner := &sink.MockRunner{RunFunc: h.tools.run}

	runs := 0
	h.orch = New(Options{
		Sink:     sink.NewReal(sink.WithRunner(runner), sink.WithLogger(quietLogger())),
		Commands: NewTemplateCommands(config.DefaultConfig().Commands),
		Notifier: h.notifier,
		Logger:   quietLogger(),
		Clock:    func() time.Time { return fixedNow },
		NewRunID: func() string { runs++; return fmt.Sprintf("run-%d", runs) },
	})
	h.tree = releasetree.New(h.base, releasetree.DefaultLayout(), nil)
	return h
}

func (h *harness) simulated(out io.Writer) *Orchestrator {
	return New(Options{
		Sink:     sink.NewSimulated(out),
		Commands: NewTemplateCommands(config.DefaultConfig().Commands),
		Logger:   quietLogger(),
		Clock:    func() time.Time { return fixedNow },
		DryRun:   true,
	})
}

func (h *harness) releases(t *testing.T) []string {
	t.Helper()
	ids, err := h.tree.ListReleases()
	require.NoError(t, err)
	return ids
}

func (h *harness) current(t *testing.T) string {
	t.Helper()
	id, err := h.tree.Current()
	require.NoError(t, err)
	return id
}

func (h *harness) mustInit(t *testing.T) Outcome {
	t.Helper()
	out, err := h.orch.Init(context.Background(), h.base, "git://repo")
	require.NoError(t, err)
	return out
}

func (h *harness) mustDeploy(t *testing.T) Outcome {
	t.Helper()
	out, err := h.orch.Deploy(context.Background(), h.base, "git://repo")
	require.NoError(t, err)
	return out
}

// snapshot records every path under root with its type, size and link
// target.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	snap := map[string]string{}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return nil
			}
			return err
		}
		entry := fmt.Sprintf("%v %d", info.Mode(), info.Size())
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			entry += " -> " + target
		}
		snap[path] = entry
		return nil
	})
	require.NoError(t, err)
	return snap
}

// =============================================================================
// Init
// =============================================================================

func TestInit_CreatesLayout(t *testing.T) {
	h := newHarness(t)
	out := h.mustInit(t)

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, "run-1", out.RunID)
	assert.Equal(t, h.base, out.Basedir)
	assert.True(t, releasetree.IsReleaseID(out.ReleaseID))
	assert.Equal(t, releasetree.FormatID(fixedNow), out.ReleaseID)

	ids := h.releases(t)
	require.Equal(t, []string{out.ReleaseID}, ids)
	assert.Equal(t, out.ReleaseID, h.current(t))

	// Storage moved to shared and linked back.
	target, err := os.Readlink(h.tree.ReleaseStorageDir(out.ReleaseID))
	require.NoError(t, err)
	assert.Equal(t, h.tree.SharedStorageDir(), target)
	assert.DirExists(t, filepath.Join(h.tree.SharedStorageDir(), "logs"))

	env, err := os.ReadFile(h.tree.ReleaseEnvFile(out.ReleaseID))
	require.NoError(t, err)
	assert.Equal(t, "APP_ENV=production\n", string(env))

	assert.Equal(t, []string{"git", "composer"}, h.tools.names())

	events := h.notifier.GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, notify.KindSuccess, events[0].Kind)
	assert.Equal(t, "init", events[0].Workflow)
}

func TestInit_CurrentIsAbsoluteLinkToRelease(t *testing.T) {
	h := newHarness(t)
	out := h.mustInit(t)

	target, err := os.Readlink(h.tree.CurrentLink())
	require.NoError(t, err)
	assert.Equal(t, h.tree.ReleaseDir(out.ReleaseID), target)
}

func TestInit_RelativeDirIsCanonicalized(t *testing.T) {
	h := newHarness(t)
	t.Chdir(filepath.Dir(h.base))

	out, err := h.orch.Init(context.Background(), "app", "git://repo")
	require.NoError(t, err)
	assert.Equal(t, h.base, out.Basedir)
	assert.Equal(t, out.ReleaseID, h.current(t))
}

func TestInit_ExistingTargetRefused(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.MkdirAll(h.base, 0o755))

	out, err := h.orch.Init(context.Background(), h.base, "git://repo")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPreconditionFailed)
	assert.ErrorIs(t, err, ErrTargetAlreadyExists)

	var pe *PreconditionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, WorkflowInit, pe.Workflow)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Empty(t, h.tools.names())
	assert.NoDirExists(t, h.tree.ReleasesDir())
	assert.NoDirExists(t, h.tree.SharedDir())

	events := h.notifier.GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, notify.KindFailure, events[0].Kind)
}

func TestInit_CheckoutWithoutStorageCreatesSharedStorage(t *testing.T) {
	h := newHarness(t)
	runner := &sink.MockRunner{} // checkout produces nothing
	orch := New(Options{
		Sink:     sink.NewReal(sink.WithRunner(runner), sink.WithLogger(quietLogger())),
		Commands: NewTemplateCommands(config.DefaultConfig().Commands),
		Logger:   quietLogger(),
		Clock:    func() time.Time { return fixedNow },
	})

	out, err := orch.Init(context.Background(), h.base, "git://repo")
	require.NoError(t, err)

	// No .env.example: a warning, not a failure.
	assert.Equal(t, StatusDegraded, out.Status)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], StepEnvFromExample)

	assert.DirExists(t, h.tree.SharedStorageDir())
	target, err := os.Readlink(h.tree.ReleaseStorageDir(out.ReleaseID))
	require.NoError(t, err)
	assert.Equal(t, h.tree.SharedStorageDir(), target)
}

func TestInit_InstallFailureLeavesNoCurrent(t *testing.T) {
	h := newHarness(t)
	h.tools.failCommand = "composer"

	out, err := h.orch.Init(context.Background(), h.base, "git://repo")
	require.Error(t, err)

	var se *pipeline.StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StepInstall, se.Step)
	assert.Equal(t, StepInstall, out.FailedStep)

	var ce *sink.CommandError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.ExitCode)

	_, err = h.tree.Current()
	assert.ErrorIs(t, err, releasetree.ErrNoCurrent)
}

// =============================================================================
// Deploy
// =============================================================================

func TestDeploy_RetentionKeepsThree(t *testing.T) {
	h := newHarness(t)
	h.mustInit(t)

	for n := 1; n <= 5; n++ {
		out := h.mustDeploy(t)
		assert.Equal(t, StatusSuccess, out.Status, "deploy %d", n)

		ids := h.releases(t)
		want := n + 1
		if want > 3 {
			want = 3
		}
		assert.Len(t, ids, want, "deploy %d", n)
		assert.Equal(t, out.ReleaseID, ids[len(ids)-1], "deploy %d", n)
		assert.Equal(t, out.ReleaseID, h.current(t), "deploy %d", n)
	}
}

func TestDeploy_RemovedReported(t *testing.T) {
	h := newHarness(t)
	first := h.mustInit(t)
	h.mustDeploy(t)
	h.mustDeploy(t)

	out := h.mustDeploy(t)
	assert.Equal(t, []string{first.ReleaseID}, out.Removed)
	assert.NoDirExists(t, h.tree.ReleaseDir(first.ReleaseID))
}

func TestDeploy_TwoDeploysScenario(t *testing.T) {
	h := newHarness(t)
	initOut := h.mustInit(t)
	require.NoError(t, os.WriteFile(h.tree.ReleaseEnvFile(initOut.ReleaseID), []byte("APP_KEY=secret\n"), 0o644))

	first := h.mustDeploy(t)
	second := h.mustDeploy(t)

	ids := h.releases(t)
	assert.Equal(t, []string{initOut.ReleaseID, first.ReleaseID, second.ReleaseID}, ids)
	assert.True(t, sort.StringsAreSorted(ids))
	assert.Equal(t, second.ReleaseID, h.current(t))

	for _, id := range []string{first.ReleaseID, second.ReleaseID} {
		target, err := os.Readlink(h.tree.ReleaseStorageDir(id))
		require.NoError(t, err, id)
		assert.Equal(t, h.tree.SharedStorageDir(), target, id)

		env, err := os.ReadFile(h.tree.ReleaseEnvFile(id))
		require.NoError(t, err, id)
		assert.Equal(t, "APP_KEY=secret\n", string(env), id)
	}

	assert.Equal(t, []string{"git", "composer", "git", "composer", "php", "git", "composer", "php"}, h.tools.names())
}

func TestDeploy_MigrationFailureIsNonFatal(t *testing.T) {
	h := newHarness(t)
	h.mustInit(t)
	h.tools.failCommand = "php"

	out, err := h.orch.Deploy(context.Background(), h.base, "git://repo")
	require.NoError(t, err, "a failed migration must not fail the deploy")

	assert.Equal(t, StatusDegraded, out.Status)
	assert.True(t, out.Succeeded())
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], StepMigrate)
	assert.Equal(t, out.ReleaseID, h.current(t))

	events := h.notifier.GetEvents()
	last := events[len(events)-1]
	assert.Equal(t, notify.KindSuccess, last.Kind)
	assert.True(t, last.Degraded)
}

func TestDeploy_CheckoutFailureKeepsCurrent(t *testing.T) {
	h := newHarness(t)
	initOut := h.mustInit(t)
	h.tools.failCommand = "git"

	out, err := h.orch.Deploy(context.Background(), h.base, "git://repo")
	require.Error(t, err)

	var se *pipeline.StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StepCheckout, se.Step)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, []string{StepResolveBase, StepCreateRelease}, out.Completed)
	assert.Equal(t, initOut.ReleaseID, h.current(t))

	events := h.notifier.GetEvents()
	last := events[len(events)-1]
	assert.Equal(t, notify.KindFailure, last.Kind)
	assert.Contains(t, last.Detail, StepCheckout)
}

func TestDeploy_NotInitialized(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, h *harness)
	}{
		{"missing", func(*testing.T, *harness) {}},
		{"empty", func(t *testing.T, h *harness) {
			require.NoError(t, os.MkdirAll(h.tree.ReleasesDir(), 0o755))
		}},
		{"no current", func(t *testing.T, h *harness) {
			require.NoError(t, os.MkdirAll(h.tree.ReleaseDir("20240101000000"), 0o755))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(t, h)

			_, err := h.orch.Deploy(context.Background(), h.base, "git://repo")
			assert.ErrorIs(t, err, ErrPreconditionFailed)
			assert.ErrorIs(t, err, ErrNotInitialized)
			assert.Empty(t, h.tools.names())
		})
	}
}

func TestDeploy_NotificationFailureIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.mustInit(t)
	h.notifier.NotifyFunc = func(context.Context, notify.Event) error { return errors.New("slack down") }

	out, err := h.orch.Deploy(context.Background(), h.base, "git://repo")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, out.Status)
}

// busySink refuses to remove release directories.
type busySink struct {
	sink.ActionSink
	releasesDir string
}

func (s busySink) RemoveDirAll(path string) error {
	if filepath.Dir(path) == s.releasesDir {
		return errors.New("device or resource busy")
	}
	return s.ActionSink.RemoveDirAll(path)
}

func TestDeploy_CleanupFailureIsNonFatal(t *testing.T) {
	h := newHarness(t)
	h.mustInit(t)
	h.mustDeploy(t)
	h.mustDeploy(t)
	before := h.releases(t)
	require.Len(t, before, 3)

	realSink := sink.NewReal(sink.WithRunner(&sink.MockRunner{RunFunc: h.tools.run}), sink.WithLogger(quietLogger()))
	orch := New(Options{
		Sink:     busySink{ActionSink: realSink, releasesDir: h.tree.ReleasesDir()},
		Commands: NewTemplateCommands(config.DefaultConfig().Commands),
		Notifier: h.notifier,
		Logger:   quietLogger(),
		Clock:    func() time.Time { return fixedNow },
	})

	out, err := orch.Deploy(context.Background(), h.base, "git://repo")
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, out.Status)
	assert.Equal(t, out.ReleaseID, h.current(t))
	assert.Empty(t, out.Removed)
	assert.Len(t, h.releases(t), 4)

	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], StepCleanup)
	assert.Contains(t, out.Warnings[0], "device or resource busy")
	assert.NotContains(t, out.Warnings[0], "\n")

	events := h.notifier.GetEvents()
	last := events[len(events)-1]
	assert.Equal(t, notify.KindSuccess, last.Kind)
	assert.True(t, last.Degraded)
}

func TestDeploy_FailureNotifiedAfterCancel(t *testing.T) {
	h := newHarness(t)
	h.mustInit(t)
	before := h.current(t)

	var notifyCtxErr error
	h.notifier.NotifyFunc = func(ctx context.Context, _ notify.Event) error {
		notifyCtxErr = ctx.Err()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := h.orch.Deploy(ctx, h.base, "git://repo")
	require.Error(t, err)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, before, h.current(t))

	events := h.notifier.GetEvents()
	require.NotEmpty(t, events)
	assert.Equal(t, notify.KindFailure, events[len(events)-1].Kind)
	assert.NoError(t, notifyCtxErr)
}

// =============================================================================
// Rollback
// =============================================================================

func TestRollback_Scenario(t *testing.T) {
	h := newHarness(t)
	h.mustInit(t)
	first := h.mustDeploy(t)
	second := h.mustDeploy(t)
	before := h.releases(t)

	out, err := h.orch.Rollback(context.Background(), h.base)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, first.ReleaseID, out.ReleaseID)
	assert.Equal(t, second.ReleaseID, out.PreviousID)
	assert.Equal(t, first.ReleaseID, h.current(t))
	assert.Equal(t, before, h.releases(t))

	events := h.notifier.GetEvents()
	assert.Equal(t, notify.KindRollbackSuccess, events[len(events)-1].Kind)
}

func TestRollback_WalksBackThenStops(t *testing.T) {
	h := newHarness(t)
	initOut := h.mustInit(t)
	h.mustDeploy(t)
	h.mustDeploy(t)
	ctx := context.Background()

	_, err := h.orch.Rollback(ctx, h.base)
	require.NoError(t, err)
	_, err = h.orch.Rollback(ctx, h.base)
	require.NoError(t, err)
	assert.Equal(t, initOut.ReleaseID, h.current(t))

	out, err := h.orch.Rollback(ctx, h.base)
	assert.ErrorIs(t, err, rollback.ErrNoPreviousRelease)
	assert.Equal(t, StepSelectPrevious, out.FailedStep)
	assert.Equal(t, initOut.ReleaseID, h.current(t))
	assert.Len(t, h.releases(t), 3)
}

func TestRollback_FewerThanTwoReleases(t *testing.T) {
	h := newHarness(t)
	initOut := h.mustInit(t)

	out, err := h.orch.Rollback(context.Background(), h.base)
	require.Error(t, err)
	assert.ErrorIs(t, err, rollback.ErrNoPreviousRelease)
	assert.ErrorIs(t, err, ErrPreconditionFailed)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, initOut.ReleaseID, h.current(t))
}

func TestRollback_MissingTarget(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Rollback(context.Background(), h.base)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestRollback_ThenDeployRollsForward(t *testing.T) {
	h := newHarness(t)
	h.mustInit(t)
	h.mustDeploy(t)

	_, err := h.orch.Rollback(context.Background(), h.base)
	require.NoError(t, err)

	out := h.mustDeploy(t)
	assert.Equal(t, out.ReleaseID, h.current(t))
	assert.Len(t, h.releases(t), 3)
}

// =============================================================================
// Dry Run
// =============================================================================

func TestSimulated_InitTouchesNothing(t *testing.T) {
	h := newHarness(t)
	parent := filepath.Dir(h.base)
	before := snapshot(t, parent)

	var buf bytes.Buffer
	sim, err := h.simulated(&buf).Init(context.Background(), h.base, "git://repo")
	require.NoError(t, err)
	assert.Equal(t, before, snapshot(t, parent))
	assert.NoDirExists(t, h.base)
	assert.True(t, sim.DryRun)
	assert.Contains(t, buf.String(), "<[Pretend] mkdir -p "+h.base+">")
	assert.Contains(t, buf.String(), "<[Pretend] git clone git://repo ")

	realInit := h.mustInit(t)
	assert.Equal(t, realInit.Steps, sim.Steps)
	assert.Equal(t, realInit.Completed, sim.Completed)
	assert.Equal(t, realInit.ReleaseID, sim.ReleaseID)
}

func TestSimulated_DeployAndRollbackTouchNothing(t *testing.T) {
	h := newHarness(t)
	h.mustInit(t)
	h.mustDeploy(t)
	h.mustDeploy(t)
	ctx := context.Background()

	before := snapshot(t, h.base)
	calls := len(h.tools.names())

	var buf bytes.Buffer
	simOrch := h.simulated(&buf)
	simDeploy, err := simOrch.Deploy(ctx, h.base, "git://repo")
	require.NoError(t, err)
	simRollback, err := simOrch.Rollback(ctx, h.base)
	require.NoError(t, err)

	assert.Equal(t, before, snapshot(t, h.base))
	assert.Equal(t, calls, len(h.tools.names()))
	assert.Contains(t, buf.String(), "<[Pretend] rm -rf ")
	assert.Len(t, simDeploy.Removed, 1)

	realDeploy := h.mustDeploy(t)
	assert.Equal(t, realDeploy.Steps, simDeploy.Steps)
	assert.Equal(t, realDeploy.Completed, simDeploy.Completed)
	assert.Equal(t, realDeploy.ReleaseID, simDeploy.ReleaseID)
	assert.Equal(t, realDeploy.Removed, simDeploy.Removed)

	realRollback, err := h.orch.Rollback(ctx, h.base)
	require.NoError(t, err)
	assert.Equal(t, realRollback.Steps, simRollback.Steps)
}

// =============================================================================
// Progress and Metrics
// =============================================================================

type recordingMetrics struct {
	mu    sync.Mutex
	runs  []string
	steps []string
}

func (m *recordingMetrics) RecordRun(workflow, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, workflow+"/"+status)
}

func (m *recordingMetrics) RecordStep(_ string, step string, ok bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, fmt.Sprintf("%s=%v", step, ok))
}

func (m *recordingMetrics) RecordReleases(int) {}
func (m *recordingMetrics) RecordRemoved(int)  {}

func TestProgressCallbacksAndMetrics(t *testing.T) {
	h := newHarness(t)
	h.mustInit(t)
	h.tools.failCommand = "php"

	metrics := &recordingMetrics{}
	var started, done []string
	orch := New(Options{
		Sink:        sink.NewReal(sink.WithRunner(&sink.MockRunner{RunFunc: h.tools.run}), sink.WithLogger(quietLogger())),
		Commands:    NewTemplateCommands(config.DefaultConfig().Commands),
		Logger:      quietLogger(),
		Metrics:     metrics,
		OnStepStart: func(label string) { started = append(started, label) },
		OnStepDone: func(label string, err error, nonFatal bool) {
			done = append(done, fmt.Sprintf("%s:%v:%v", label, err == nil, nonFatal))
		},
	})

	out, err := orch.Deploy(context.Background(), h.base, "git://repo")
	require.NoError(t, err)

	assert.Equal(t, out.Steps, started)
	assert.Contains(t, done, StepMigrate+":false:true")
	assert.Contains(t, done, StepSwitchCurrent+":true:false")
	assert.Equal(t, []string{"deploy/degraded"}, metrics.runs)
	assert.Contains(t, metrics.steps, StepMigrate+"=false")
}

func TestWithRelease(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, withRelease([]string{"a", "c"}, "b"))
	assert.Equal(t, []string{"a", "b"}, withRelease([]string{"a", "b"}, "b"))
	assert.Equal(t, []string{"a"}, withRelease(nil, "a"))
}

func TestTemplateCommands(t *testing.T) {
	c := NewTemplateCommands(config.DefaultConfig().Commands)

	checkout := c.Checkout("git://repo", "/srv/app/releases/1")
	assert.Equal(t, "git", checkout.Name)
	assert.Equal(t, []string{"clone", "git://repo", "/srv/app/releases/1"}, checkout.Args)
	assert.Empty(t, checkout.Dir)

	install := c.Install("/srv/app/releases/1")
	assert.Equal(t, []string{"install", "-d", "/srv/app/releases/1", "--no-dev", "--prefer-dist"}, install.Args)

	migrate := c.Migrate("/srv/app/releases/1")
	assert.Equal(t, "php", migrate.Name)
	assert.Equal(t, "/srv/app/releases/1", migrate.Dir)
}

func TestPreconditionError(t *testing.T) {
	err := &PreconditionError{Workflow: WorkflowInit, Reason: "/srv/app", Err: ErrTargetAlreadyExists}
	assert.Equal(t, "init: precondition failed: /srv/app: target already exists", err.Error())
	assert.ErrorIs(t, err, ErrPreconditionFailed)
	assert.ErrorIs(t, err, ErrTargetAlreadyExists)
	assert.False(t, errors.Is(err, ErrNotInitialized))
}
