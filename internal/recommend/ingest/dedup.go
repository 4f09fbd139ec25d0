// Shelfwise - Book Recommendation Scoring Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/shelfwise/shelfwise/internal/recommend"
)

// Deduper is the idempotency cache in front of the interaction store.
// It catches replays cheaply before a storage round trip; the store's
// unique key on interaction ID remains the authoritative guard.
type Deduper interface {
	// CheckAndMark atomically checks whether an interaction ID has been
	// seen and marks it if not. Returns ErrDuplicateInteraction when the
	// ID was already marked. The mark expires after ttl.
	CheckAndMark(ctx context.Context, interactionID string, ttl time.Duration) error

	// Forget removes a mark. Ingestion calls it when an event fails after
	// the mark was placed, so a client retry is not mistaken for a served
	// duplicate.
	Forget(ctx context.Context, interactionID string) error

	// Close releases resources.
	Close() error
}

// memorySweepInterval bounds how often the in-memory deduper scans for
// expired marks.
const memorySweepInterval = time.Minute

// MemoryDeduper is an in-memory Deduper for testing. Entries are lost on
// restart, so production uses the Badger-backed implementation.
type MemoryDeduper struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	nextSweep time.Time
}

// NewMemoryDeduper creates an in-memory deduper.
func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]time.Time)}
}

// CheckAndMark implements Deduper.
func (d *MemoryDeduper) CheckAndMark(_ context.Context, interactionID string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	d.sweep(now)
	if expires, ok := d.seen[interactionID]; ok && now.Before(expires) {
		return recommend.ErrDuplicateInteraction
	}
	d.seen[interactionID] = now.Add(ttl)
	return nil
}

// Forget implements Deduper.
func (d *MemoryDeduper) Forget(_ context.Context, interactionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, interactionID)
	return nil
}

// sweep evicts expired marks so the map does not grow with every ID
// ever seen. Caller holds d.mu.
func (d *MemoryDeduper) sweep(now time.Time) {
	if now.Before(d.nextSweep) {
		return
	}
	for id, expires := range d.seen {
		if !now.Before(expires) {
			delete(d.seen, id)
		}
	}
	d.nextSweep = now.Add(memorySweepInterval)
}

// Close implements Deduper.
func (d *MemoryDeduper) Close() error {
	return nil
}

// BadgerDeduper is a BadgerDB-backed Deduper. Marks survive restarts and
// expire via Badger's native TTL, so no cleanup pass is needed.
type BadgerDeduper struct {
	db     *badger.DB
	prefix []byte
}

// NewBadgerDeduper creates a deduper on an existing Badger database.
// Keys are namespaced under the given prefix.
func NewBadgerDeduper(db *badger.DB, prefix string) *BadgerDeduper {
	return &BadgerDeduper{db: db, prefix: []byte(prefix + ":")}
}

// CheckAndMark implements Deduper. The check and the mark run in one
// Badger update transaction, so concurrent replays of the same ID cannot
// both pass.
func (d *BadgerDeduper) CheckAndMark(ctx context.Context, interactionID string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := append(append([]byte{}, d.prefix...), interactionID...)
	return d.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return recommend.ErrDuplicateInteraction
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		entry := badger.NewEntry(key, []byte{1}).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
}

// Forget implements Deduper.
func (d *BadgerDeduper) Forget(_ context.Context, interactionID string) error {
	key := append(append([]byte{}, d.prefix...), interactionID...)
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Close implements Deduper. The underlying database is shared, so only
// the owner closes it; this is a no-op.
func (d *BadgerDeduper) Close() error {
	return nil
}
