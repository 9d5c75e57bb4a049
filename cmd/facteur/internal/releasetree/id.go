// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package releasetree

import (
	"time"
)

// IDLayout is the time layout of a release id (YYYYMMDDHHMMSS).
const IDLayout = "20060102150405"

// FormatID renders t as a release id in t's location.
func FormatID(t time.Time) string {
	return t.Format(IDLayout)
}

// ParseID parses a release id as a UTC wall-clock time.
func ParseID(id string) (time.Time, error) {
	return time.ParseInLocation(IDLayout, id, time.UTC)
}

// IsReleaseID reports whether name is a well-formed release id.
func IsReleaseID(name string) bool {
	if len(name) != len(IDLayout) {
		return false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return false
		}
	}
	_, err := ParseID(name)
	return err == nil
}

// NextID allocates a release id for now.
//
// # Description
//
// Returns FormatID(now) unless that would not sort strictly after the
// newest existing id (two deploys within one second, or a clock that went
// backwards). In that case the id one second after the newest is used.
//
// # Inputs
//
//   - now: Current time from the workflow clock.
//   - existing: Ordered ids, oldest first.
func NextID(now time.Time, existing []string) string {
	candidate := FormatID(now)
	if len(existing) == 0 {
		return candidate
	}
	newest := existing[len(existing)-1]
	if candidate > newest {
		return candidate
	}
	t, err := ParseID(newest)
	if err != nil {
		return candidate
	}
	return t.Add(time.Second).Format(IDLayout)
}
