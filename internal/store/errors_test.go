// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package store

import (
	"context"
	"errors"
	"testing"
)

func TestIsDuplicateKey(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"duckdb duplicate", errors.New(`Constraint Error: Duplicate key "id: evt-1" violates primary key constraint`), true},
		{"unique constraint", errors.New("UNIQUE constraint failed"), true},
		{"unrelated", errors.New("connection reset by peer"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDuplicateKey(tt.err); got != tt.want {
				t.Errorf("isDuplicateKey(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"duplicate is permanent", errors.New("Constraint Error: Duplicate key"), false},
		{"conflict", errors.New("TransactionContext Error: transaction conflict"), true},
		{"locked", errors.New("database is locked"), true},
		{"io", errors.New("IO Error: could not read block"), true},
		{"validation", errors.New("Binder Error: column not found"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransient(tt.err); got != tt.want {
				t.Errorf("isTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestTagMapRoundTrip(t *testing.T) {
	in := map[string]float64{"fantasy": 1.5, "mystery": 0.25}
	raw, err := marshalTagMap(in)
	if err != nil {
		t.Fatalf("marshalTagMap() error = %v", err)
	}
	out, err := unmarshalTagMap(raw)
	if err != nil {
		t.Fatalf("unmarshalTagMap() error = %v", err)
	}
	if len(out) != len(in) || out["fantasy"] != 1.5 || out["mystery"] != 0.25 {
		t.Errorf("round trip = %v, want %v", out, in)
	}

	// Empty maps serialize compactly and deserialize non-nil.
	raw, err = marshalTagMap(nil)
	if err != nil || raw != "{}" {
		t.Errorf("marshalTagMap(nil) = %q, %v, want {}", raw, err)
	}
	out, err = unmarshalTagMap("")
	if err != nil || out == nil {
		t.Errorf("unmarshalTagMap(empty) = %v, %v, want empty map", out, err)
	}
}
