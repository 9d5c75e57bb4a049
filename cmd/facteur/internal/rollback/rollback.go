// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rollback selects the release a rollback switches to.
package rollback

import (
	"errors"
	"fmt"
)

// ErrNoPreviousRelease is returned when there is nothing older than the
// live release to go back to.
var ErrNoPreviousRelease = errors.New("no previous release")

// Previous returns the release immediately preceding current.
//
// # Description
//
// ordered is the release list, oldest first. When current is one of the
// listed ids, the id just before it is returned, so repeated rollbacks
// walk further back in time. When current is empty or unknown (a
// missing or foreign link), the second-to-last id is returned, which is
// what a target whose current is the newest release would select anyway.
//
// # Outputs
//
//   - string: Release id to switch to.
//   - error: ErrNoPreviousRelease with fewer than two releases, or when
//     current is already the oldest release.
func Previous(ordered []string, current string) (string, error) {
	if len(ordered) < 2 {
		return "", fmt.Errorf("%w: %d release(s) on disk", ErrNoPreviousRelease, len(ordered))
	}

	if current != "" {
		for i, id := range ordered {
			if id != current {
				continue
			}
			if i == 0 {
				return "", fmt.Errorf("%w: %s is the oldest release", ErrNoPreviousRelease, current)
			}
			return ordered[i-1], nil
		}
	}
	return ordered[len(ordered)-2], nil
}
