// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package notify reports workflow outcomes to humans.
//
// A notification failure never changes a workflow's outcome. Callers log
// the error returned by Notify and move on.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Kind is the outcome being reported.
type Kind int

const (
	// KindSuccess reports a successful init or deploy.
	KindSuccess Kind = iota

	// KindFailure reports a workflow that stopped at a failing step.
	KindFailure

	// KindRollbackSuccess reports a completed rollback.
	KindRollbackSuccess
)

// String returns "success", "failure" or "rollback_success".
func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	case KindRollbackSuccess:
		return "rollback_success"
	default:
		return "unknown"
	}
}

// Event is one workflow outcome.
type Event struct {
	Kind Kind

	// Workflow is "init", "deploy" or "rollback".
	Workflow string

	Basedir   string
	ReleaseID string

	// Detail is the failure message for KindFailure.
	Detail string

	// Degraded marks a success with non-fatal step failures.
	Degraded bool
	Warnings []string
}

// Message renders the one-line summary sent to chat.
func (e Event) Message() string {
	switch e.Kind {
	case KindFailure:
		return fmt.Sprintf("%s failed: %s", workflowTitle(e.Workflow), e.Detail)
	case KindRollbackSuccess:
		return "Rollback success."
	default:
		msg := workflowTitle(e.Workflow) + " success."
		if e.Degraded {
			msg += " With warnings: " + strings.Join(e.Warnings, "; ")
		}
		return msg
	}
}

func workflowTitle(workflow string) string {
	switch workflow {
	case "init":
		return "Initialization"
	case "rollback":
		return "Rollback"
	default:
		return "Deployment"
	}
}

// Notifier delivers Events.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// =============================================================================
// Nop
// =============================================================================

// Nop discards events.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Event) error { return nil }

// =============================================================================
// Log
// =============================================================================

// Log writes events to a structured logger. Dry runs use it in place of
// chat delivery.
type Log struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (l Log) Notify(ctx context.Context, event Event) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		"kind", event.Kind.String(),
		"workflow", event.Workflow,
		"basedir", event.Basedir,
		"release", event.ReleaseID,
		"degraded", event.Degraded,
	}
	if event.Kind == KindFailure {
		logger.ErrorContext(ctx, event.Message(), attrs...)
		return nil
	}
	logger.InfoContext(ctx, event.Message(), attrs...)
	return nil
}

// =============================================================================
// Multi
// =============================================================================

// Multi fans an event out to several notifiers. Every notifier is tried;
// failures are aggregated.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, event Event) error {
	var result *multierror.Error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// =============================================================================
// Mock
// =============================================================================

// Mock records events for tests.
type Mock struct {
	NotifyFunc func(ctx context.Context, event Event) error

	mu     sync.Mutex
	Events []Event
}

// Notify implements Notifier.
func (m *Mock) Notify(ctx context.Context, event Event) error {
	m.mu.Lock()
	m.Events = append(m.Events, event)
	m.mu.Unlock()

	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, event)
	}
	return nil
}

// GetEvents returns a copy of the recorded events.
func (m *Mock) GetEvents() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.Events))
	copy(out, m.Events)
	return out
}

// Compile-time interface checks
var (
	_ Notifier = Nop{}
	_ Notifier = Log{}
	_ Notifier = Multi(nil)
	_ Notifier = (*Mock)(nil)
)
