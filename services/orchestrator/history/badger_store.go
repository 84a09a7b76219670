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

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/edubot/services/orchestrator/datatypes"
)

// keyPrefix namespaces history keys inside the database.
const keyPrefix = "history/"

// maxConflictRetries bounds how often a conflicting transaction is replayed.
const maxConflictRetries = 64

// BadgerConfig holds configuration for the BadgerDB-backed store.
type BadgerConfig struct {
	// Logger receives BadgerDB's internal log lines.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger

	// NumVersionsToKeep is the number of versions to keep per key.
	// Default: 1.
	NumVersionsToKeep int

	// MaxTurns overrides MaxHistoryTurns. Zero means MaxHistoryTurns.
	MaxTurns int
}

// DefaultBadgerConfig returns the configuration used by the server.
//
// The database always runs in in-memory mode: histories never survive a
// restart.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		NumVersionsToKeep: 1,
		MaxTurns:          MaxHistoryTurns,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore keeps each session's history as one JSON value in BadgerDB.
//
// # Description
//
// Keys are "history/<session id>". Append reads, appends, trims and writes in
// one read-write transaction, so the append-with-trim is serialized per key by
// Badger's conflict detection. Conflicting transactions are replayed.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying *badger.DB is.
type BadgerStore struct {
	db       *badger.DB
	maxTurns int
}

// OpenBadgerStore opens an in-memory BadgerDB and wraps it in a Store.
//
// # Outputs
//
//   - *BadgerStore: Caller must call Close() when done.
//   - error: Non-nil if the database cannot be opened.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if cfg.NumVersionsToKeep <= 0 {
		cfg.NumVersionsToKeep = 1
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = MaxHistoryTurns
	}

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts = opts.WithSyncWrites(false)
	opts = opts.WithNumVersionsToKeep(cfg.NumVersionsToKeep)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db, maxTurns: cfg.MaxTurns}, nil
}

func historyKey(id string) []byte {
	return []byte(keyPrefix + id)
}

// readTurns loads the turns stored under key. found is false when the key is
// absent.
func readTurns(txn *badger.Txn, key []byte) (turns []datatypes.Turn, found bool, err error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &turns)
	})
	if err != nil {
		return nil, true, fmt.Errorf("decode history: %w", err)
	}
	if turns == nil {
		turns = []datatypes.Turn{}
	}
	return turns, true, nil
}

func writeTurns(txn *badger.Txn, key []byte, turns []datatypes.Turn) error {
	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return txn.Set(key, data)
}

// update runs fn in a read-write transaction, replaying it on conflict.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("history update after %d attempts: %w", maxConflictRetries, err)
}

// GetOrCreate implements Store.
func (s *BadgerStore) GetOrCreate(ctx context.Context, id string) (string, bool, error) {
	if id != "" {
		ok, err := s.Exists(ctx, id)
		if err != nil {
			return "", false, err
		}
		if ok {
			return id, false, nil
		}
	}

	newID := NewSessionID()
	err := s.update(ctx, func(txn *badger.Txn) error {
		return writeTurns(txn, historyKey(newID), []datatypes.Turn{})
	})
	if err != nil {
		return "", false, fmt.Errorf("create session: %w", err)
	}
	return newID, true, nil
}

// Append implements Store.
func (s *BadgerStore) Append(ctx context.Context, id string, turn datatypes.Turn) error {
	key := historyKey(id)
	return s.update(ctx, func(txn *badger.Txn) error {
		turns, found, err := readTurns(txn, key)
		if err != nil {
			return err
		}
		if !found {
			return ErrSessionNotFound
		}
		return writeTurns(txn, key, Trim(append(turns, turn), s.maxTurns))
	})
}

// Get implements Store.
func (s *BadgerStore) Get(ctx context.Context, id string) ([]datatypes.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var turns []datatypes.Turn
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		turns, _, err = readTurns(txn, historyKey(id))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	if turns == nil {
		turns = []datatypes.Turn{}
	}
	return turns, nil
}

// Clear implements Store.
func (s *BadgerStore) Clear(ctx context.Context, id string) error {
	key := historyKey(id)
	return s.update(ctx, func(txn *badger.Txn) error {
		_, found, err := readTurns(txn, key)
		if err != nil || !found {
			return err
		}
		return writeTurns(txn, key, []datatypes.Turn{})
	})
}

// Exists implements Store.
func (s *BadgerStore) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(historyKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("lookup session: %w", err)
	}
	return found, nil
}

// Len implements Store.
func (s *BadgerStore) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var _ Store = (*BadgerStore)(nil)
