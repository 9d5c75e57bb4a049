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
	"errors"
	"fmt"
)

var (
	// ErrPreconditionFailed matches every *PreconditionError.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrTargetAlreadyExists is returned by Init when the base directory
	// is already present.
	ErrTargetAlreadyExists = errors.New("target already exists")

	// ErrNotInitialized is returned by Deploy and Rollback for a target
	// without releases or without a valid current link.
	ErrNotInitialized = errors.New("target is not initialized")
)

// PreconditionError is returned when a workflow refuses to start.
// Nothing has been changed on disk when it is returned.
type PreconditionError struct {
	Workflow Workflow
	Reason   string
	Err      error
}

func (e *PreconditionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Workflow, ErrPreconditionFailed, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Workflow, ErrPreconditionFailed, e.Reason)
}

// Is reports whether target is ErrPreconditionFailed.
func (e *PreconditionError) Is(target error) bool {
	return target == ErrPreconditionFailed
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}
