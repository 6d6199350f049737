// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package snapshot persists index snapshots in an embedded BadgerDB.
// The index core stays format-agnostic; this package owns the on-disk
// representation.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/taskweave/taskweave/internal/index"
)

// ErrNotFound is returned when a vault has no stored snapshot.
var ErrNotFound = errors.New("no snapshot for vault")

// Config holds store configuration.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM; used by tests.
	InMemory bool

	// SyncWrites trades write latency for durability.
	SyncWrites bool
}

// DefaultConfig returns production defaults for a given directory.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// record is the stored envelope around one index snapshot.
type record struct {
	ID       uuid.UUID      `json:"id"`
	VaultID  string         `json:"vaultId"`
	SavedAt  time.Time      `json:"savedAt"`
	Snapshot index.Snapshot `json:"snapshot"`
}

// Store saves and loads index snapshots keyed by vault id.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLogger adapts slog to BadgerDB's logger interface.
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
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open creates the store.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "snapshot_store"))

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create snapshot directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

func vaultKey(vaultID string) []byte {
	return []byte("snapshot/" + vaultID)
}

// Save persists the latest snapshot for a vault, replacing any prior
// one.
func (s *Store) Save(ctx context.Context, vaultID string, snap index.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := record{
		ID:       uuid.New(),
		VaultID:  vaultID,
		SavedAt:  time.Now().UTC(),
		Snapshot: snap,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(vaultKey(vaultID), raw)
	})
	if err != nil {
		return fmt.Errorf("save snapshot for %s: %w", vaultID, err)
	}
	s.logger.Info("snapshot saved",
		slog.String("vault", vaultID),
		slog.Int("tasks", len(snap.Tasks)),
		slog.Int("bytes", len(raw)))
	return nil
}

// Load returns the latest snapshot for a vault.
func (s *Store) Load(ctx context.Context, vaultID string) (index.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return index.Snapshot{}, err
	}
	var rec record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(vaultKey(vaultID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return index.Snapshot{}, ErrNotFound
		}
		return index.Snapshot{}, fmt.Errorf("load snapshot for %s: %w", vaultID, err)
	}
	return rec.Snapshot, nil
}

// Delete removes a vault's snapshot. Missing snapshots are not an
// error.
func (s *Store) Delete(ctx context.Context, vaultID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(vaultKey(vaultID))
	})
}
