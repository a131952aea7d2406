// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	badgerstore "github.com/AleutianAI/callscope/services/trace/storage/badger"
)

// Key layout.
const (
	recordPrefix = "history:"
	idPrefix     = "history-id:"
)

// DefaultListLimit is used when List is called with a non-positive limit.
const DefaultListLimit = 20

// BadgerStore keeps query records in BadgerDB.
//
// # Description
//
// Records live under "history:<created_at_ms>:<id>" so a reverse prefix
// scan yields newest first. A secondary "history-id:<id>" key maps ids to
// primary keys for Get.
//
// # Thread Safety
//
// Safe for concurrent use.
type BadgerStore struct {
	db     *badgerstore.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewBadgerStore wraps an open database. The store owns db and closes it.
func NewBadgerStore(db *badgerstore.DB, logger *slog.Logger) *BadgerStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStore{db: db, logger: logger, now: time.Now}
}

// OpenBadgerStore opens a store at dir, or in memory when dir is empty.
func OpenBadgerStore(dir string, logger *slog.Logger) (*BadgerStore, error) {
	cfg := badgerstore.InMemoryConfig()
	if dir != "" {
		cfg = badgerstore.DefaultConfig(dir)
	}
	cfg.Logger = logger
	db, err := badgerstore.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return NewBadgerStore(db, logger), nil
}

func recordKey(r *QueryRecord) []byte {
	return []byte(fmt.Sprintf("%s%013d:%s", recordPrefix, r.CreatedAtMilli, r.ID))
}

// Record saves r.
func (s *BadgerStore) Record(ctx context.Context, r *QueryRecord) error {
	if err := r.prepare(s.now()); err != nil {
		return err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	key := recordKey(r)
	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set([]byte(idPrefix+r.ID), key)
	})
	if err != nil {
		return fmt.Errorf("record query %s: %w", r.ID, err)
	}
	s.logger.Debug("query recorded",
		slog.String("record_id", r.ID),
		slog.String("kind", string(r.Kind)),
	)
	return nil
}

// Get returns a record by id.
func (s *BadgerStore) Get(ctx context.Context, id string) (*QueryRecord, error) {
	var rec QueryRecord
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(idPrefix + id))
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err = txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	return &rec, nil
}

// List returns up to limit records, newest first.
func (s *BadgerStore) List(ctx context.Context, limit int) ([]QueryRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var out []QueryRecord
	err := s.db.ScanPrefix(ctx, []byte(recordPrefix), true, func(key, value []byte) (bool, error) {
		var rec QueryRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			s.logger.Warn("skipping corrupt history record",
				slog.String("key", string(key)),
				slog.String("error", err.Error()),
			)
			return true, nil
		}
		out = append(out, rec)
		return len(out) < limit, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return out, nil
}

// Prune deletes records created before cutoff and returns how many were
// removed.
func (s *BadgerStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	bound := cutoff.UnixMilli()
	var stale [][]byte
	err := s.db.ScanPrefix(ctx, []byte(recordPrefix), false, func(key, _ []byte) (bool, error) {
		ts, ok := keyTimestamp(key)
		if !ok {
			return true, nil
		}
		if ts >= bound {
			return false, nil
		}
		stale = append(stale, key)
		return true, nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan history: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
			if id := keyID(key); id != "" {
				if err := txn.Delete([]byte(idPrefix + id)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	s.logger.Info("history pruned",
		slog.Int("removed", len(stale)),
		slog.Time("cutoff", cutoff),
	)
	return len(stale), nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// keyTimestamp parses the creation time out of a record key.
func keyTimestamp(key []byte) (int64, bool) {
	rest := strings.TrimPrefix(string(key), recordPrefix)
	ts, _, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(ts, 10, 64)
	return v, err == nil
}

func keyID(key []byte) string {
	rest := strings.TrimPrefix(string(key), recordPrefix)
	_, id, _ := strings.Cut(rest, ":")
	return id
}
