// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package store

import (
	"context"
	"errors"
	"strings"
)

// isDuplicateKey reports whether err is a unique/primary key violation.
// DuckDB surfaces these as constraint errors with a "Duplicate key"
// message; there is no typed error to match on.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate key") ||
		strings.Contains(msg, "Constraint Error") ||
		strings.Contains(msg, "UNIQUE constraint")
}

// isTransient reports whether err is worth retrying: I/O hiccups,
// transaction conflicts, and lock contention. Constraint violations and
// cancellations are permanent.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if isDuplicateKey(err) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"transaction conflict",
		"database is locked",
		"connection reset",
		"broken pipe",
		"i/o error",
		"io error",
		"out of memory",
		"too many open files",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
