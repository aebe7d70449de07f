// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Ledger key layout: "audit:entry:<unix nanos, 20 digits>:<request id>".
// Keys sort by time so a reverse prefix scan yields the newest first.
const (
	keyPrefixEntry = "audit:entry:"

	// DefaultRetention is how long ledger entries live.
	DefaultRetention = 30 * 24 * time.Hour

	// DefaultTail is the number of entries Tail returns for n <= 0.
	DefaultTail = 20
)

// Entry is one audited tool invocation. It holds metadata only; parameter
// values and record content are never stored.
type Entry struct {
	RequestID  string        `json:"request_id"`
	Caller     string        `json:"caller"`
	Tool       string        `json:"tool"`
	ParamHash  string        `json:"param_hash"`
	Outcome    string        `json:"outcome"`
	At         time.Time     `json:"at"`
	Duration   time.Duration `json:"duration_ns"`
	Truncated  bool          `json:"truncated"`
	Incomplete int           `json:"incomplete"`
	Anomalies  int           `json:"anomalies"`
}

// Ledger persists audit entries in BadgerDB with a TTL.
//
// Description:
//
//	Entries are JSON values under time-ordered keys. Badger expires them
//	after the retention period. The ledger owns the DB when opened with
//	OpenLedger.
//
// Thread Safety:
//
//	Safe for concurrent use. BadgerDB handles its own concurrency control.
type Ledger struct {
	db     *badger.DB
	ttl    time.Duration
	owned  bool
	logger *slog.Logger
}

// NewLedger wraps an opened DB. The caller keeps ownership of db.
//
// Inputs:
//
//	db - An opened BadgerDB instance. Must not be nil.
//	ttl - Entry retention. <= 0 uses DefaultRetention.
//	logger - Logger for diagnostic output. nil uses slog.Default().
func NewLedger(db *badger.DB, ttl time.Duration, logger *slog.Logger) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db must not be nil")
	}
	if ttl <= 0 {
		ttl = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{db: db, ttl: ttl, logger: logger.With(slog.String("component", "audit_ledger"))}, nil
}

// OpenLedger opens (or creates) a ledger directory. An empty dir opens an
// in-memory ledger.
func OpenLedger(dir string, ttl time.Duration, logger *slog.Logger) (*Ledger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening audit ledger: %w", err)
	}
	l, err := NewLedger(db, ttl, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	l.owned = true
	return l, nil
}

func entryKey(e Entry) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", keyPrefixEntry, e.At.UnixNano(), e.RequestID))
}

// Append stores e.
func (l *Ledger) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding audit entry: %w", err)
	}
	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(entryKey(e), raw).WithTTL(l.ttl))
	})
	if err != nil {
		ledgerWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("writing audit entry: %w", err)
	}
	ledgerWrites.WithLabelValues("ok").Inc()
	return nil
}

// Tail returns up to n entries, newest first.
func (l *Ledger) Tail(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = DefaultTail
	}
	var out []Entry
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixEntry)
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks to the last key at or before the seek key.
		for it.Seek([]byte(keyPrefixEntry + "~")); it.Valid() && len(out) < n; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var e Entry
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				l.logger.Warn("skipping corrupt audit entry", slog.String("key", string(item.Key())), slog.Any("error", err))
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading audit ledger: %w", err)
	}
	return out, nil
}

// Close closes the DB if the ledger opened it.
func (l *Ledger) Close() error {
	if !l.owned {
		return nil
	}
	return l.db.Close()
}
