// Solar Panel Production Tracker - Security Event Pipeline
// Copyright 2026 quality-dot
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quality-dot/solar-panel-production-tracking-sub003

package threat

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const blockKeyPrefix = "block:"

// BadgerBlocklistStore persists blocks in BadgerDB. Temporary blocks are
// written with a TTL so Badger expires them on its own.
type BadgerBlocklistStore struct {
	db  *badger.DB
	now func() time.Time
}

// NewBadgerBlocklistStore creates a store on an open database.
func NewBadgerBlocklistStore(db *badger.DB) *BadgerBlocklistStore {
	return &BadgerBlocklistStore{db: db, now: time.Now}
}

// OpenBadgerBlocklistStore opens (or creates) a database at path.
func OpenBadgerBlocklistStore(path string) (*BadgerBlocklistStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open blocklist database: %w", err)
	}
	return NewBadgerBlocklistStore(db), nil
}

// Put implements BlocklistStore.
func (s *BadgerBlocklistStore) Put(_ context.Context, entry BlockEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal block entry: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(blockKeyPrefix+entry.IP), data)
		if entry.ExpiresAt != nil {
			ttl := entry.ExpiresAt.Sub(s.now())
			if ttl <= 0 {
				return nil
			}
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// Delete implements BlocklistStore.
func (s *BadgerBlocklistStore) Delete(_ context.Context, ip string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(blockKeyPrefix + ip))
	})
}

// List implements BlocklistStore.
func (s *BadgerBlocklistStore) List(_ context.Context) ([]BlockEntry, error) {
	var out []BlockEntry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(blockKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var entry BlockEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return fmt.Errorf("decode block entry %s: %w", it.Item().Key(), err)
			}
			out = append(out, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the underlying database.
func (s *BadgerBlocklistStore) Close() error {
	return s.db.Close()
}
