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
	"context"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/facteur/cmd/facteur/config"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/history"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/notify"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/orchestrator"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/pipeline"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/releasetree"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/sink"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/telemetry"
	"github.com/AleutianAI/facteur/pkg/logging"
	"github.com/AleutianAI/facteur/pkg/ux"
)

// Seams replaced by tests.
var (
	stdout io.Writer = os.Stdout

	newRunner = func() sink.ProcessRunner { return sink.NewExecRunner() }

	newPrompter = ux.NewPrompter
)

// app holds what every command needs: configuration, logging, telemetry.
type app struct {
	cfg      *config.FacteurConfig
	log      *logging.Logger
	metrics  *telemetry.PrometheusMetrics
	shutdown func(context.Context) error
}

// newApp loads the configuration and starts logging and tracing.
//
// # Outputs
//
//   - *app: Call Close before returning from the command.
//   - error: A usageError for a bad configuration file.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, usageErrorf("load configuration: %w", err)
	}

	log := newLogger(cfg.Logging, verbosity)

	shutdown, err := telemetry.Init(ctx, telemetryConfig(cfg.Telemetry))
	if err != nil {
		_ = log.Close()
		return nil, usageErrorf("start telemetry: %w", err)
	}

	return &app{
		cfg:      cfg,
		log:      log,
		metrics:  telemetry.NewPrometheusMetrics(),
		shutdown: shutdown,
	}, nil
}

// Close flushes spans and closes the log file.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		a.log.Warn("Telemetry shutdown failed", "error", err)
	}
	_ = a.log.Close()
}

// newLogger writes to the log directory when one is configured. Console
// output is reserved for progress lines unless -v is given.
func newLogger(cfg config.LoggingConfig, verbosity int) *logging.Logger {
	level := logging.ParseLevel(cfg.Level)
	if verbosity > 0 {
		level = logging.LevelDebug
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Dir,
		Service: "facteur",
		JSON:    cfg.JSON,
		Quiet:   verbosity == 0,
		Output:  os.Stderr,
	})
}

// telemetryConfig overlays the file settings on the environment defaults.
func telemetryConfig(cfg config.TelemetryConfig) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version
	if cfg.TraceExporter != "" && cfg.TraceExporter != "none" {
		tc.TraceExporter = cfg.TraceExporter
	}
	if cfg.OTLPEndpoint != "" {
		tc.OTLPEndpoint = cfg.OTLPEndpoint
	}
	tc.OTLPInsecure = tc.OTLPInsecure || cfg.OTLPInsecure
	return tc
}

// layout converts the configured names.
func layout(cfg config.LayoutConfig) releasetree.Layout {
	return releasetree.Layout{
		ReleasesDir: cfg.ReleasesDir,
		SharedDir:   cfg.SharedDir,
		CurrentLink: cfg.CurrentLink,
		StorageDir:  cfg.StorageDir,
		EnvFile:     cfg.EnvFile,
		EnvExample:  cfg.EnvExample,
	}
}

// newTree returns the read-only path model of dir.
func (a *app) newTree(dir string) (*releasetree.Tree, error) {
	base, err := releasetree.Canonicalize(dir)
	if err != nil {
		return nil, usageErrorf("resolve %s: %w", dir, err)
	}
	return releasetree.New(base, layout(a.cfg.Layout), nil), nil
}

// newOrchestrator wires the collaborators of one workflow run. In pretend
// mode every mutation goes to a Simulated sink and nobody is notified.
func (a *app) newOrchestrator(dryRun bool) *orchestrator.Orchestrator {
	logger := a.log.Slog()

	var actions sink.ActionSink
	if dryRun {
		actions = sink.NewSimulated(stdout)
	} else {
		actions = sink.NewReal(sink.WithRunner(newRunner()), sink.WithLogger(logger))
	}

	return orchestrator.New(orchestrator.Options{
		Sink:        actions,
		Commands:    orchestrator.NewTemplateCommands(a.cfg.Commands),
		Layout:      layout(a.cfg.Layout),
		Keep:        a.cfg.KeepReleases,
		DryRun:      dryRun,
		Notifier:    a.newNotifier(dryRun),
		Metrics:     a.metrics,
		Logger:      logger,
		Tracer:      otel.Tracer(pipeline.TracerName),
		OnStepStart: progressStart(dryRun),
		OnStepDone:  progressDone(dryRun),
	})
}

// newNotifier always logs outcomes and adds Slack when it is configured.
func (a *app) newNotifier(dryRun bool) notify.Notifier {
	logged := notify.Log{Logger: a.log.Slog()}
	slack := a.cfg.Notify.Slack
	if dryRun || !slack.Enabled() {
		return logged
	}

	url, err := notify.ResolveWebhook(slack.WebhookURL, slack.UseKeyring)
	if err != nil {
		a.log.Warn("Slack notifications disabled", "error", err)
		ux.Warning("Slack notifications disabled: " + err.Error())
		return logged
	}

	return notify.Multi{logged, notify.NewSlack(notify.SlackConfig{
		WebhookURL: url,
		Channel:    slack.Channel,
		Username:   slack.Username,
		Timeout:    time.Duration(slack.TimeoutSeconds) * time.Second,
	})}
}

// progressStart prints step labels. Pretend lines from the Simulated sink
// follow each label, so the label gets a line of its own.
func progressStart(dryRun bool) func(string) {
	if dryRun {
		return func(label string) { ux.Info(label) }
	}
	return ux.StepStarted
}

func progressDone(dryRun bool) func(string, error, bool) {
	return func(label string, err error, nonFatal bool) {
		if dryRun {
			if err != nil {
				ux.Warning(label + ": " + err.Error())
			}
			return
		}
		ux.StepDone(err == nil)
	}
}

// afterRun persists what the run left behind: the metrics textfile and,
// for real runs, a history record. Failures are warnings.
func (a *app) afterRun(ctx context.Context, out orchestrator.Outcome) {
	if path := a.cfg.Telemetry.MetricsTextfile; path != "" {
		if err := a.metrics.WriteTextfile(logging.ExpandPath(path)); err != nil {
			a.log.Warn("Metrics textfile not written", "path", path, "error", err)
		}
	}

	if out.DryRun || !a.cfg.History.Enabled || out.RunID == "" {
		return
	}
	store, err := a.openHistory()
	if err != nil {
		a.log.Warn("Run history not recorded", "error", err)
		ux.Warning("Run history not recorded: " + err.Error())
		return
	}
	defer store.Close()

	if err := store.Record(context.WithoutCancel(ctx), recordFromOutcome(out)); err != nil {
		a.log.Warn("Run history not recorded", "error", err)
		ux.Warning("Run history not recorded: " + err.Error())
	}
}

func (a *app) historyConfig() history.Config {
	return history.Config{
		Dir:    logging.ExpandPath(a.cfg.History.Dir),
		Logger: a.log.Slog(),
	}
}

func (a *app) openHistory() (*history.Store, error) {
	return history.Open(a.historyConfig())
}

// recordFromOutcome maps a run outcome to its history record.
func recordFromOutcome(out orchestrator.Outcome) history.Record {
	return history.Record{
		RunID:      out.RunID,
		Workflow:   string(out.Workflow),
		Basedir:    out.Basedir,
		Status:     string(out.Status),
		ReleaseID:  out.ReleaseID,
		PreviousID: out.PreviousID,
		FailedStep: out.FailedStep,
		Error:      out.Error,
		Warnings:   out.Warnings,
		Removed:    out.Removed,
		Started:    out.Started,
		Duration:   out.Duration,
	}
}
