// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// badgerWindow is the value stored per key in BadgerDB.
type badgerWindow struct {
	Count   int64     `json:"count"`
	ResetAt time.Time `json:"reset_at"`
}

// BadgerStore is a BadgerDB-backed Store for deployments that need counters
// to survive restarts. The DB instance is shared with other components and is
// not closed by this store.
type BadgerStore struct {
	db     *badger.DB
	prefix []byte
}

// NewBadgerStore creates a Badger-backed store using the given key prefix.
func NewBadgerStore(db *badger.DB, prefix string) *BadgerStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &BadgerStore{db: db, prefix: []byte(prefix)}
}

func (bs *BadgerStore) makeKey(key string) []byte {
	return append(append([]byte{}, bs.prefix...), []byte(key)...)
}

// Increment bumps the counter for key inside a single Update transaction.
// Badger serializes conflicting transactions, so the read-modify-write is
// atomic with respect to concurrent increments of the same key.
func (bs *BadgerStore) Increment(ctx context.Context, key string, windowDur time.Duration) (int64, time.Time, error) {
	bk := bs.makeKey(key)
	now := time.Now()

	var w badgerWindow

	err := bs.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(bk)
		switch {
		case err == nil:
			if valErr := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &w)
			}); valErr != nil {
				// Corrupt value, start a fresh window.
				w = badgerWindow{}
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			// New window below.
		default:
			return err
		}

		if w.ResetAt.IsZero() || !now.Before(w.ResetAt) {
			w = badgerWindow{ResetAt: now.Add(windowDur)}
		}
		w.Count++

		data, err := json.Marshal(&w)
		if err != nil {
			return err
		}

		ttl := time.Until(w.ResetAt)
		if ttl <= 0 {
			ttl = windowDur
		}
		return txn.SetEntry(badger.NewEntry(bk, data).WithTTL(ttl))
	})
	if err != nil {
		return 0, time.Time{}, err
	}

	return w.Count, w.ResetAt, nil
}

// Reset deletes the window for key immediately.
func (bs *BadgerStore) Reset(ctx context.Context, key string) error {
	return bs.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(bs.makeKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Sweep scans for windows whose reset time has passed and deletes them.
// Badger's own TTL expiry reclaims entries during compaction; this pass keeps
// reads from observing stale windows in the meantime.
func (bs *BadgerStore) Sweep(ctx context.Context) (int, error) {
	now := time.Now()
	removed := 0

	err := bs.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = bs.prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		var expired [][]byte

		for it.Rewind(); it.Valid(); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			var w badgerWindow
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &w)
			}); err != nil {
				continue
			}

			if !now.Before(w.ResetAt) {
				key := make([]byte, len(item.Key()))
				copy(key, item.Key())
				expired = append(expired, key)
			}
		}

		for _, key := range expired {
			if err := txn.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})

	return removed, err
}
