// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs an ordered list of named steps, stopping at the
// first failure.
//
// There is no compensation. A failed pipeline leaves completed steps in
// place; workflows order their steps so that the only externally visible
// mutation (the current switch) comes after everything that can fail.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for step spans.
const TracerName = "github.com/AleutianAI/facteur/pipeline"

// ErrNoRunFunc is returned for a step declared without a Run function.
var ErrNoRunFunc = errors.New("step has no run function")

// =============================================================================
// Step
// =============================================================================

// Step is one named unit of work.
//
// # Description
//
// Run closes over whatever workflow state it needs (release id, tree,
// sink). Steps communicate through that shared state, in declaration order.
//
// # Example
//
//	step := pipeline.Step{
//	    Name: "Installing dependencies",
//	    Run: func(ctx context.Context) error {
//	        return s.RunExternal(ctx, installCmd)
//	    },
//	}
type Step struct {
	// Name is the human-readable progress label.
	Name string

	// Run performs the step.
	Run func(ctx context.Context) error

	// NonFatal downgrades a failure to a warning. The pipeline continues
	// and the result is marked Degraded.
	NonFatal bool
}

// =============================================================================
// Errors and Results
// =============================================================================

// StepError reports the step that stopped a pipeline.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Warning is a non-fatal step failure.
type Warning struct {
	Step string
	Err  error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.Step, w.Err)
}

// Result is the outcome of Run.
type Result struct {
	// Success is true when no fatal step failed.
	Success bool

	// Degraded is true when Success holds but a NonFatal step failed.
	Degraded bool

	// CompletedSteps lists steps that ran to completion, including
	// non-fatal steps that failed.
	CompletedSteps []string

	// FailedStep names the fatal step that failed (empty on success).
	FailedStep string

	// Err is a *StepError on failure, nil otherwise.
	Err error

	// Warnings holds non-fatal step failures in order.
	Warnings []Warning

	// Duration is the total execution time.
	Duration time.Duration
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures callbacks and instrumentation.
type Config struct {
	// Logger receives step events. Default: slog.Default()
	Logger *slog.Logger

	// Tracer creates one span per step. Default: the global provider.
	Tracer trace.Tracer

	// OnStepStart is called before each step runs.
	OnStepStart func(step Step)

	// OnStepComplete is called after a step succeeds.
	OnStepComplete func(step Step, duration time.Duration)

	// OnStepFail is called when a fatal step fails.
	OnStepFail func(step Step, err error, duration time.Duration)

	// OnStepWarn is called when a NonFatal step fails.
	OnStepWarn func(step Step, err error, duration time.Duration)
}

// =============================================================================
// Pipeline
// =============================================================================

// Pipeline is an ordered list of steps.
//
// # Thread Safety
//
// Build the pipeline, then call Run from one goroutine. Run does not
// execute steps concurrently.
type Pipeline struct {
	name   string
	config Config
	steps  []Step
}

// New creates an empty pipeline.
//
// # Inputs
//
//   - name: Workflow name, used for the parent span and log lines.
//   - config: Callbacks and instrumentation. Zero value is valid.
func New(name string, config Config) *Pipeline {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Tracer == nil {
		config.Tracer = otel.Tracer(TracerName)
	}
	return &Pipeline{name: name, config: config}
}

// Add appends steps in execution order.
func (p *Pipeline) Add(steps ...Step) *Pipeline {
	p.steps = append(p.steps, steps...)
	return p
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Len returns the number of steps.
func (p *Pipeline) Len() int { return len(p.steps) }

// StepNames returns the step labels in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name
	}
	return names
}

// Run executes the steps in order.
//
// # Description
//
// Each step runs synchronously. The first fatal failure (or a cancelled
// context observed between steps) ends the run with a *StepError in
// Result.Err. Steps after it never run.
//
// # Outputs
//
//   - Result: Always populated, including on failure.
func (p *Pipeline) Run(ctx context.Context) Result {
	start := time.Now()
	result := Result{CompletedSteps: make([]string, 0, len(p.steps))}

	ctx, span := p.config.Tracer.Start(ctx, p.name,
		trace.WithAttributes(attribute.Int("facteur.pipeline.steps", len(p.steps))))
	defer span.End()

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.fail(&result, step, fmt.Errorf("cancelled: %w", err), 0)
			break
		}

		duration, err := p.runStep(ctx, step)
		if err != nil && step.NonFatal {
			result.Warnings = append(result.Warnings, Warning{Step: step.Name, Err: err})
			result.CompletedSteps = append(result.CompletedSteps, step.Name)
			p.config.Logger.Warn("Step failed (non-fatal)", "step", step.Name, "duration", duration, "error", err)
			if p.config.OnStepWarn != nil {
				p.config.OnStepWarn(step, err, duration)
			}
			continue
		}
		if err != nil {
			p.fail(&result, step, err, duration)
			break
		}

		result.CompletedSteps = append(result.CompletedSteps, step.Name)
		p.config.Logger.Info("Step completed", "step", step.Name, "duration", duration)
		if p.config.OnStepComplete != nil {
			p.config.OnStepComplete(step, duration)
		}
	}

	result.Duration = time.Since(start)
	if result.Err == nil {
		result.Success = true
		result.Degraded = len(result.Warnings) > 0
	} else {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.FailedStep)
	}
	span.SetAttributes(attribute.Bool("facteur.pipeline.degraded", result.Degraded))
	return result
}

func (p *Pipeline) runStep(ctx context.Context, step Step) (time.Duration, error) {
	if p.config.OnStepStart != nil {
		p.config.OnStepStart(step)
	}
	p.config.Logger.Debug("Executing step", "step", step.Name)

	ctx, span := p.config.Tracer.Start(ctx, step.Name,
		trace.WithAttributes(
			attribute.String("facteur.step", step.Name),
			attribute.Bool("facteur.step.non_fatal", step.NonFatal),
		))
	defer span.End()

	start := time.Now()
	var err error
	if step.Run == nil {
		err = ErrNoRunFunc
	} else {
		err = step.Run(ctx)
	}
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return duration, err
}

func (p *Pipeline) fail(result *Result, step Step, err error, duration time.Duration) {
	result.FailedStep = step.Name
	result.Err = &StepError{Step: step.Name, Err: err}
	p.config.Logger.Error("Step failed", "step", step.Name, "duration", duration, "error", err)
	if p.config.OnStepFail != nil {
		p.config.OnStepFail(step, err, duration)
	}
}
