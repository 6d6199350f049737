// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package watch turns raw filesystem notifications into the
// debounced created/modified/deleted change feed consumed by the
// orchestrator's change queue.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/taskweave/taskweave/internal/orchestrator"
)

// Handler receives one debounced batch of changes.
type Handler func(changes []orchestrator.Change)

// Options configures the Watcher.
type Options struct {
	// DebounceWindow is how long to wait for further events before a
	// batch is flushed. Default 150ms.
	DebounceWindow time.Duration

	// Extensions restricts the feed to document types the pipeline
	// parses. Default .md and .canvas.
	Extensions []string

	// IgnoreDirs are directory basenames never descended into.
	IgnoreDirs []string

	// BufferSize is the raw event buffer. Default 1024.
	BufferSize int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: 150 * time.Millisecond,
		Extensions:     []string{".md", ".canvas"},
		IgnoreDirs:     []string{".git", ".obsidian", ".trash", "node_modules"},
		BufferSize:     1024,
	}
}

// Watcher recursively watches a vault root.
//
// Description:
//
//	Raw fsnotify events are collected into a buffer; when the
//	debounce window passes without new events the batch is
//	deduplicated per path (last event wins, deletions sticky) and
//	handed to the handler. Renames surface as deletions of the old
//	path; the new path arrives as its own create event. Newly created
//	directories are added to the watch set on the fly.
//
// Thread Safety: Safe for concurrent use. The handler runs on a
// single goroutine.
type Watcher struct {
	root     string
	fsw      *fsnotify.Watcher
	handler  Handler
	opts     Options
	logger   *slog.Logger

	events   chan orchestrator.Change
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
}

// New creates a watcher for root. Call Start to begin delivery.
func New(root string, handler Handler, opts *Options, logger *slog.Logger) (*Watcher, error) {
	o := DefaultOptions()
	if opts != nil {
		o = *opts
		if o.DebounceWindow <= 0 {
			o.DebounceWindow = DefaultOptions().DebounceWindow
		}
		if o.BufferSize <= 0 {
			o.BufferSize = DefaultOptions().BufferSize
		}
		if len(o.Extensions) == 0 {
			o.Extensions = DefaultOptions().Extensions
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:    root,
		fsw:     fsw,
		handler: handler,
		opts:    o,
		logger:  logger.With(slog.String("component", "watcher")),
		events:  make(chan orchestrator.Change, o.BufferSize),
		done:    make(chan struct{}),
	}, nil
}

// Start watches the root and all subdirectories.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop halts delivery and releases the underlying watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fsw.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching reports whether the watcher is active.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignoredDir(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) ignoredDir(path string) bool {
	base := filepath.Base(path)
	for _, dir := range w.opts.IgnoreDirs {
		if base == dir {
			return true
		}
	}
	return false
}

// relevant gates on document extension. Directories pass so new
// subtrees get watched.
func (w *Watcher) relevant(path string) bool {
	ext := filepath.Ext(path)
	for _, want := range w.opts.Extensions {
		if ext == want {
			return true
		}
	}
	return false
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.ignoredDir(event.Name) {
				_ = w.fsw.Add(event.Name)
			}
			return
		}
	}
	if !w.relevant(event.Name) {
		return
	}

	var kind orchestrator.EventKind
	switch {
	case event.Has(fsnotify.Create):
		kind = orchestrator.EventCreated
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// A rename delivers the old path; treat it as gone.
		kind = orchestrator.EventDeleted
	case event.Has(fsnotify.Write):
		kind = orchestrator.EventModified
	default:
		return
	}

	select {
	case w.events <- orchestrator.Change{Kind: kind, Path: event.Name}:
	default:
		w.logger.Warn("event buffer full, dropping", slog.String("path", event.Name))
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	var batch []orchestrator.Change
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 {
			deduped := dedupe(batch)
			if w.handler != nil {
				w.handler(deduped)
			}
			batch = batch[:0]
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case change := <-w.events:
			batch = append(batch, change)
			if timer == nil {
				timer = time.NewTimer(w.opts.DebounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.DebounceWindow)
			}
		case <-timerC:
			flush()
		}
	}
}

// dedupe keeps one change per path. The last event wins, except that
// a deletion is never downgraded by a later create/write burst for
// the same path within one window.
func dedupe(changes []orchestrator.Change) []orchestrator.Change {
	seen := make(map[string]int, len(changes))
	out := make([]orchestrator.Change, 0, len(changes))
	for _, ch := range changes {
		if idx, ok := seen[ch.Path]; ok {
			if out[idx].Kind != orchestrator.EventDeleted {
				out[idx] = ch
			}
			continue
		}
		seen[ch.Path] = len(out)
		out = append(out, ch)
	}
	return out
}
