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
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/facteur/cmd/facteur/config"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/history"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/orchestrator"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/releasetree"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/sink"
	"github.com/AleutianAI/facteur/pkg/ux"
)

// =============================================================================
// Test Helpers
// =============================================================================

// cli runs the command line against a temporary configuration and fake
// git/composer/php tools.
type cli struct {
	t       *testing.T
	dir     string
	config  string
	history string
	runner  *sink.MockRunner
	out     *bytes.Buffer
	failOn  string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv("OTEL_TRACES_EXPORTER", "none")

	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	c := &cli{
		t:       t,
		dir:     root,
		config:  filepath.Join(root, "facteur.yaml"),
		history: filepath.Join(root, "history"),
		out:     &bytes.Buffer{},
	}
	c.writeConfig(fmt.Sprintf("history:\n  enabled: true\n  dir: %s\ntelemetry:\n  metrics_textfile: %s\n",
		c.history, filepath.Join(root, "facteur.prom")))

	c.runner = &sink.MockRunner{RunFunc: c.tool}

	prevRunner, prevStdout, prevPrompter := newRunner, stdout, newPrompter
	newRunner = func() sink.ProcessRunner { return c.runner }
	stdout = c.out
	ux.SetOutput(c.out, c.out)
	t.Cleanup(func() {
		newRunner, stdout, newPrompter = prevRunner, prevStdout, prevPrompter
		ux.SetOutput(nil, nil)
	})
	return c
}

func (c *cli) writeConfig(content string) {
	c.t.Helper()
	require.NoError(c.t, os.WriteFile(c.config, []byte(content), 0o644))
}

// tool emulates the external commands: git populates the release.
func (c *cli) tool(_ context.Context, cmd sink.Command) (sink.Output, error) {
	if cmd.Name == c.failOn {
		return sink.Output{Stderr: []byte("boom"), ExitCode: 1}, errors.New("exit status 1")
	}
	if cmd.Name == "git" {
		release := cmd.Args[len(cmd.Args)-1]
		if err := os.MkdirAll(filepath.Join(release, "storage", "app"), 0o755); err != nil {
			return sink.Output{ExitCode: 1}, err
		}
		if err := os.WriteFile(filepath.Join(release, ".env.example"), []byte("APP_ENV=production\n"), 0o644); err != nil {
			return sink.Output{ExitCode: 1}, err
		}
	}
	return sink.Output{}, nil
}

// run resets the global flags and executes one command line.
func (c *cli) run(args ...string) int {
	c.t.Helper()
	configPath, verbosity, pretend, personalityFlag = "", 0, false, ""
	assumeYes, serveAddr, historyLimit, historyAll = false, "", 20, false

	c.out.Reset()
	full := append([]string{"--config", c.config, "--personality", "machine"}, args...)
	return run(full)
}

func (c *cli) target() *releasetree.Tree {
	return releasetree.New(filepath.Join(c.dir, "app"), releasetree.DefaultLayout(), nil)
}

// =============================================================================
// Exit Codes
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"usage", &usageError{err: errors.New("bad")}, exitUsage},
		{"wrapped usage", fmt.Errorf("ctx: %w", usageErrorf("bad %s", "flag")), exitUsage},
		{"workflow", &workflowError{err: errors.New("step failed")}, exitFailure},
		{"plain", errors.New("boom"), exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestRun_BadArguments(t *testing.T) {
	c := newCLI(t)

	assert.Equal(t, exitUsage, c.run("init", "only-one-arg"))
	assert.Equal(t, exitUsage, c.run("rollback"))
	assert.Equal(t, exitUsage, c.run("deploy", "--no-such-flag", "a", "b"))
}

func TestRun_BadConfig(t *testing.T) {
	c := newCLI(t)
	c.writeConfig("keep_releases: 0\n")

	assert.Equal(t, exitUsage, c.run("releases", c.target().Basedir()))
	assert.Contains(t, c.out.String(), "invalid configuration")
}

// =============================================================================
// Workflows
// =============================================================================

func TestRun_InitDeployRollback(t *testing.T) {
	c := newCLI(t)
	base := c.target().Basedir()

	require.Equal(t, exitOK, c.run("init", base, "https://example.com/app.git"))
	assert.Contains(t, c.out.String(), "Initialization")
	assert.Contains(t, c.out.String(), "php artisan key:generate")

	first, err := c.target().Current()
	require.NoError(t, err)

	require.Equal(t, exitOK, c.run("deploy", base, "https://example.com/app.git"))
	assert.Contains(t, c.out.String(), "Deployment Success")

	second, err := c.target().Current()
	require.NoError(t, err)
	assert.Greater(t, second, first)

	require.Equal(t, exitOK, c.run("releases", base))
	assert.Contains(t, c.out.String(), first)
	assert.Contains(t, c.out.String(), second)

	require.Equal(t, exitOK, c.run("rollback", "--yes", base))
	assert.Contains(t, c.out.String(), "Rollback done")

	current, err := c.target().Current()
	require.NoError(t, err)
	assert.Equal(t, first, current)

	store, err := history.Open(history.Config{Dir: c.history})
	require.NoError(t, err)
	defer store.Close()
	records, err := store.List(context.Background(), history.Filter{Basedir: base})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "rollback", records[0].Workflow)
	assert.Equal(t, "deploy", records[1].Workflow)
	assert.Equal(t, "init", records[2].Workflow)

	assert.FileExists(t, filepath.Join(c.dir, "facteur.prom"))
}

func TestRun_RepeatedDeploysInOneProcess(t *testing.T) {
	c := newCLI(t)
	base := c.target().Basedir()
	require.Equal(t, exitOK, c.run("init", base, "repo"))

	for n := 1; n <= 3; n++ {
		require.Equal(t, exitOK, c.run("deploy", base, "repo"), "deploy %d: %s", n, c.out.String())
	}

	ids, err := c.target().ListReleases()
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestBindContext_ReplacesStaleContext(t *testing.T) {
	stale, cancel := context.WithCancel(context.Background())
	cancel()
	bindContext(stale, rootCmd)
	require.Error(t, deployCmd.Context().Err())

	bindContext(context.Background(), rootCmd)
	assert.NoError(t, deployCmd.Context().Err())
	assert.NoError(t, configSetWebhookCmd.Context().Err())
}

func TestRun_DeployWithoutInitFails(t *testing.T) {
	c := newCLI(t)

	assert.Equal(t, exitFailure, c.run("deploy", c.target().Basedir(), "repo"))
	assert.Contains(t, c.out.String(), "facteur init")
}

func TestRun_InstallFailure(t *testing.T) {
	c := newCLI(t)
	c.failOn = "composer"

	assert.Equal(t, exitFailure, c.run("init", c.target().Basedir(), "repo"))
	assert.Contains(t, c.out.String(), orchestrator.StepInstall)

	_, err := c.target().Current()
	assert.Error(t, err)
}

func TestRun_MigrationFailureIsDegraded(t *testing.T) {
	c := newCLI(t)
	base := c.target().Basedir()
	require.Equal(t, exitOK, c.run("init", base, "repo"))

	c.failOn = "php"
	assert.Equal(t, exitOK, c.run("deploy", base, "repo"))
	assert.Contains(t, c.out.String(), orchestrator.StepMigrate)
}

func TestRun_Pretend(t *testing.T) {
	c := newCLI(t)
	base := c.target().Basedir()

	require.Equal(t, exitOK, c.run("--pretend", "init", base, "repo"))
	assert.Contains(t, c.out.String(), "Pretend mode")
	assert.Contains(t, c.out.String(), "<[Pretend] ")
	assert.NoDirExists(t, base)
	assert.Empty(t, c.runner.GetCalls())
	assert.NoDirExists(t, c.history)
}

func TestRun_RollbackDeclined(t *testing.T) {
	c := newCLI(t)
	base := c.target().Basedir()
	require.Equal(t, exitOK, c.run("init", base, "repo"))
	require.Equal(t, exitOK, c.run("deploy", base, "repo"))
	before, err := c.target().Current()
	require.NoError(t, err)

	prompter := &ux.MockPrompter{ConfirmFunc: func(context.Context, string) (bool, error) { return false, nil }}
	newPrompter = func(bool, bool) ux.Prompter { return prompter }

	assert.Equal(t, exitFailure, c.run("rollback", base))
	require.Len(t, prompter.Questions, 1)
	assert.Contains(t, prompter.Questions[0], base)

	after, err := c.target().Current()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRun_RollbackNeedsTwoReleases(t *testing.T) {
	c := newCLI(t)
	base := c.target().Basedir()
	require.Equal(t, exitOK, c.run("init", base, "repo"))

	assert.Equal(t, exitFailure, c.run("rollback", "-y", base))
}

// =============================================================================
// Read-only Commands
// =============================================================================

func TestRun_History(t *testing.T) {
	c := newCLI(t)
	base := c.target().Basedir()
	require.Equal(t, exitOK, c.run("init", base, "repo"))

	require.Equal(t, exitOK, c.run("history", base))
	assert.Contains(t, c.out.String(), "init")
	assert.Contains(t, c.out.String(), "success")

	require.Equal(t, exitOK, c.run("history", "--all"))
	assert.Contains(t, c.out.String(), base)
}

func TestRun_HistoryDisabled(t *testing.T) {
	c := newCLI(t)
	c.writeConfig("history:\n  enabled: false\n")

	assert.Equal(t, exitUsage, c.run("history"))
}

func TestRun_Config(t *testing.T) {
	c := newCLI(t)
	c.writeConfig("keep_releases: 5\n")

	require.Equal(t, exitOK, c.run("config"))
	assert.Contains(t, c.out.String(), "keep_releases: 5")
	assert.Contains(t, c.out.String(), "releases_dir: releases")
}

func TestRun_SetWebhookRejectsBadURL(t *testing.T) {
	c := newCLI(t)
	assert.Equal(t, exitUsage, c.run("config", "set-webhook", "not a url"))
	assert.Equal(t, exitUsage, c.run("config", "set-webhook", "http://hooks.example.com/x"))
}

// =============================================================================
// Glue
// =============================================================================

func TestRecordFromOutcome(t *testing.T) {
	started := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	out := orchestrator.Outcome{
		RunID:      "run-1",
		Workflow:   orchestrator.WorkflowDeploy,
		Status:     orchestrator.StatusDegraded,
		Basedir:    "/srv/app",
		ReleaseID:  "20240315093000",
		Warnings:   []string{"Running migrations: exit 1"},
		Removed:    []string{"20240101000000"},
		FailedStep: "",
		Started:    started,
		Duration:   3 * time.Second,
	}

	assert.Equal(t, history.Record{
		RunID:     "run-1",
		Workflow:  "deploy",
		Status:    "degraded",
		Basedir:   "/srv/app",
		ReleaseID: "20240315093000",
		Warnings:  []string{"Running migrations: exit 1"},
		Removed:   []string{"20240101000000"},
		Started:   started,
		Duration:  3 * time.Second,
	}, recordFromOutcome(out))
}

func TestTelemetryConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")

	tc := telemetryConfig(config.TelemetryConfig{TraceExporter: "none"})
	assert.Equal(t, "stdout", tc.TraceExporter, "environment wins over the none default")

	tc = telemetryConfig(config.TelemetryConfig{TraceExporter: "otlp", OTLPEndpoint: "collector:4317", OTLPInsecure: true})
	assert.Equal(t, "otlp", tc.TraceExporter)
	assert.Equal(t, "collector:4317", tc.OTLPEndpoint)
	assert.True(t, tc.OTLPInsecure)
	assert.Equal(t, version, tc.ServiceVersion)
}

func TestLayout(t *testing.T) {
	got := layout(config.DefaultConfig().Layout)
	assert.Equal(t, releasetree.DefaultLayout(), got)
}

func TestCommandTree(t *testing.T) {
	var names []string
	for _, cmd := range rootCmd.Commands() {
		names = append(names, cmd.Name())
	}
	for _, want := range []string{"init", "deploy", "rollback", "releases", "history", "serve", "config"} {
		assert.Contains(t, names, want)
	}
	assert.True(t, strings.HasPrefix(initCmd.Use, "init <dir> <git-url>"))
	assert.NotNil(t, rollbackCmd.Flags().Lookup("yes"))
	assert.NotNil(t, rootCmd.PersistentFlags().ShorthandLookup("p"))
}
