// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/filter"
	"github.com/taskweave/taskweave/internal/index"
	"github.com/taskweave/taskweave/internal/orchestrator"
	"github.com/taskweave/taskweave/internal/project"
	"github.com/taskweave/taskweave/internal/server"
	"github.com/taskweave/taskweave/internal/settings"
	"github.com/taskweave/taskweave/internal/snapshot"
	"github.com/taskweave/taskweave/internal/telemetry"
	"github.com/taskweave/taskweave/internal/watch"
	"github.com/taskweave/taskweave/pkg/logging"
)

// runServe starts the full pipeline: watcher, change queue, worker
// pool, index, snapshot persistence, and the HTTP API. It blocks
// until SIGINT or SIGTERM, then shuts the stages down in reverse
// dependency order.
func runServe(cmd *cobra.Command, args []string) error {
	snap, err := loadSettings()
	if err != nil {
		return err
	}

	appLog := logging.New(logging.Config{
		Level:   logLevel,
		LogDir:  logDir,
		Service: "taskweave",
		JSON:    jsonLogs,
	})
	defer appLog.Close()
	logger := appLog.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	resolver, err := project.NewResolver(snap.ResolverOptions(), logger)
	if err != nil {
		return err
	}
	filters := filter.NewManager(snap.Filter.Mode, snap.Filter.Rules, logger)
	idx := index.NewIndexer(logger)

	store, err := snapshot.Open(snapshot.DefaultConfig(snapshotDir(snap)), logger)
	if err != nil {
		return err
	}
	defer store.Close()
	restoreIndex(ctx, store, idx, snap.Vault.ID, logger)

	orch := orchestrator.New(snap, resolver, logger, nil)
	orch.Start(ctx)
	defer orch.Close()

	queue := orchestrator.NewChangeQueue(snap.Orchestrator.QueueInterval)
	coord := orchestrator.NewCoordinator(orch, queue, filters, idx, resolver, logger)

	coordDone := make(chan struct{})
	go func() {
		defer close(coordDone)
		if err := coord.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("coordinator stopped", slog.Any("error", err))
		}
	}()

	watcher, err := watch.New(snap.Vault.Root, func(changes []orchestrator.Change) {
		for _, ch := range changes {
			queue.Enqueue(ch)
		}
	}, nil, logger)
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	if err := enqueueExisting(snap.Vault.Root, queue); err != nil {
		return err
	}

	if snap.Server.SnapshotInterval > 0 {
		go persistPeriodically(ctx, store, idx, snap, logger)
	}

	srv := server.New(server.Options{
		Indexer:   idx,
		Orch:      orch,
		Snapshots: store,
		VaultID:   snap.Vault.ID,
		Addr:      snap.Server.Addr,
		Logger:    logger,
	})

	serverErr := make(chan error, 1)
	go func() { serverErr <- srv.Run() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", slog.Any("error", err))
	}

	watcher.Stop()
	queue.Close()
	<-coordDone

	if err := store.Save(shutdownCtx, snap.Vault.ID, idx.GetIndexSnapshot()); err != nil {
		logger.Warn("final snapshot save failed", slog.Any("error", err))
	}
	return nil
}

// snapshotDir resolves the badger directory for this vault.
func snapshotDir(snap settings.Snapshot) string {
	if dataDir != "" {
		return dataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "taskweave", "snapshots")
	}
	return filepath.Join(home, ".taskweave", "snapshots")
}

// restoreIndex loads the persisted snapshot, if any. A version
// mismatch is logged and ignored; the vault rescan rebuilds the index
// either way.
func restoreIndex(ctx context.Context, store *snapshot.Store, idx *index.Indexer, vaultID string, logger *slog.Logger) {
	snap, err := store.Load(ctx, vaultID)
	if err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			logger.Warn("snapshot load failed", slog.Any("error", err))
		}
		return
	}
	if err := idx.RestoreFromSnapshot(snap); err != nil {
		logger.Warn("snapshot restore failed", slog.Any("error", err))
		return
	}
	logger.Info("index restored from snapshot", slog.Int("tasks", idx.TaskCount()))
}

// enqueueExisting seeds the change queue with every document already
// present in the vault. The coordinator applies the filter rules and
// skips files whose indexed mtime is current.
func enqueueExisting(root string, queue *orchestrator.ChangeQueue) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", ".obsidian", ".trash", "node_modules":
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".md" || ext == ".canvas" {
			queue.Enqueue(orchestrator.Change{Kind: orchestrator.EventCreated, Path: path})
		}
		return nil
	})
}

func persistPeriodically(ctx context.Context, store *snapshot.Store, idx *index.Indexer, snap settings.Snapshot, logger *slog.Logger) {
	ticker := time.NewTicker(snap.Server.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pruned := idx.ValidateCacheConsistency(); pruned > 0 {
				logger.Warn("pruned orphaned mtime entries", slog.Int("count", pruned))
			}
			if err := store.Save(ctx, snap.Vault.ID, idx.GetIndexSnapshot()); err != nil {
				logger.Warn("periodic snapshot save failed", slog.Any("error", err))
			}
		}
	}
}
