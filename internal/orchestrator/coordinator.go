// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/taskweave/taskweave/internal/filter"
	"github.com/taskweave/taskweave/internal/index"
	"github.com/taskweave/taskweave/internal/project"
)

// Coordinator drains the change queue and drives the index.
//
// Description:
//
//	One change at a time, in queue order: deletions always purge the
//	index and both resolver caches, even when current filter rules
//	would exclude the path. Creates and modifies pass the filter gate
//	first, then fan out as parse + project-compute dispatches, and the
//	result replaces the file's index contribution.
type Coordinator struct {
	orch     *Orchestrator
	queue    *ChangeQueue
	filters  *filter.Manager
	indexer  *index.Indexer
	resolver *project.Resolver
	root     string
	logger   *slog.Logger
}

// NewCoordinator wires the processing loop's collaborators.
func NewCoordinator(orch *Orchestrator, queue *ChangeQueue, filters *filter.Manager, indexer *index.Indexer, resolver *project.Resolver, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		orch:     orch,
		queue:    queue,
		filters:  filters,
		indexer:  indexer,
		resolver: resolver,
		root:     orch.Settings().Vault.Root,
		logger:   logger.With(slog.String("component", "coordinator")),
	}
}

// Queue exposes the change queue for event producers.
func (c *Coordinator) Queue() *ChangeQueue { return c.queue }

// Run processes queued changes until ctx is done or the queue closes.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		ch, err := c.queue.Dequeue(ctx)
		if err != nil {
			if err == ErrQueueClosed {
				return nil
			}
			return err
		}
		c.process(ctx, ch)
	}
}

func (c *Coordinator) process(ctx context.Context, ch Change) {
	rel := filter.NormalizePath(c.relPath(ch.Path))

	if ch.Kind == EventDeleted {
		c.remove(rel)
		return
	}

	if c.isConfigDocument(rel) {
		c.resolver.HandleConfigChange(rel)
	}
	if !c.filters.Include(rel, filter.ScopeInline) && !c.filters.Include(rel, filter.ScopeFile) {
		return
	}
	c.reindex(ctx, rel, ch.Path)
}

// remove purges a deleted path everywhere. Filter state is
// deliberately not consulted: a file indexed under old rules must
// still disappear.
func (c *Coordinator) remove(rel string) {
	c.indexer.RemoveFileFromIndex(rel)
	c.resolver.RemoveFile(rel)
	if c.isConfigDocument(rel) {
		c.resolver.HandleConfigChange(rel)
	}
	c.logger.Debug("purged deleted file", slog.String("path", rel))
}

func (c *Coordinator) reindex(ctx context.Context, rel, abs string) {
	info, err := os.Stat(abs)
	if err != nil {
		c.logger.Warn("stat failed", slog.String("path", rel), slog.Any("error", err))
		return
	}
	mtime := info.ModTime().UnixMilli()
	if prev, ok := c.indexer.FileMtime(rel); ok && prev == mtime {
		// Unchanged since it was last indexed, typically during the
		// startup rescan after a snapshot restore.
		return
	}

	raw, err := os.ReadFile(abs)
	if err != nil {
		c.logger.Warn("read failed", slog.String("path", rel), slog.Any("error", err))
		return
	}
	content := string(raw)

	pd, err := c.orch.ComputeProject(ctx, rel)
	if err != nil {
		c.logger.Warn("project resolution failed", slog.String("path", rel), slog.Any("error", err))
	}

	tasks, err := c.orch.ParseFile(ctx, FileContent{
		Path:     rel,
		Content:  content,
		FileMeta: project.ParseFrontmatter(content),
		Project:  &pd,
	})
	if err != nil {
		// Soft failure: whatever parsed still replaces the file's
		// contribution.
		c.logger.Warn("parse incomplete", slog.String("path", rel), slog.Any("error", err))
	}
	c.indexer.UpdateIndexWithTasks(rel, tasks, mtime)
}

func (c *Coordinator) relPath(path string) string {
	if c.root == "" {
		return path
	}
	rel, err := filepath.Rel(c.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func (c *Coordinator) isConfigDocument(rel string) bool {
	name := c.orch.Settings().Project.ConfigFileName
	return name != "" && filepath.Base(rel) == name
}
