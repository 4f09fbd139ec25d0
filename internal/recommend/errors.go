// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package recommend

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine boundary.
var (
	// ErrUnknownUser indicates a user reference that does not exist.
	ErrUnknownUser = errors.New("unknown user")

	// ErrUnknownWork indicates a work reference that does not exist.
	ErrUnknownWork = errors.New("unknown work")

	// ErrInactiveUser indicates an interaction from a deactivated account.
	ErrInactiveUser = errors.New("user is inactive")

	// ErrDuplicateInteraction indicates an interaction ID that was already
	// ingested. Recoverable: callers treat it as a success no-op.
	ErrDuplicateInteraction = errors.New("duplicate interaction")

	// ErrRebuildInProgress indicates a similarity rebuild is already running
	// for the requested type.
	ErrRebuildInProgress = errors.New("similarity rebuild already in progress")
)

// ValidationError describes a malformed or unresolvable request.
// Ingestion fails fast on these; nothing is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError or one of
// the reference-resolution sentinels.
func IsValidation(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	return errors.Is(err, ErrUnknownUser) ||
		errors.Is(err, ErrUnknownWork) ||
		errors.Is(err, ErrInactiveUser)
}
