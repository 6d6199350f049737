// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskweave/taskweave/internal/orchestrator"
)

type collector struct {
	mu      sync.Mutex
	batches [][]orchestrator.Change
}

func (c *collector) handle(changes []orchestrator.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, changes)
}

func (c *collector) all() []orchestrator.Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []orchestrator.Change
	for _, b := range c.batches {
		out = append(out, b...)
	}
	return out
}

func (c *collector) waitFor(t *testing.T, pred func([]orchestrator.Change) bool) []orchestrator.Change {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		got := c.all()
		if pred(got) {
			return got
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for changes; got %v", c.all())
	return nil
}

func newTestWatcher(t *testing.T, root string, c *collector) *Watcher {
	t.Helper()
	opts := DefaultOptions()
	opts.DebounceWindow = 50 * time.Millisecond

	w, err := New(root, c.handle, &opts, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

func TestWatcherDeliversDocumentEvents(t *testing.T) {
	root := t.TempDir()
	c := &collector{}
	newTestWatcher(t, root, c)

	path := filepath.Join(root, "note.md")
	require.NoError(t, os.WriteFile(path, []byte("- [ ] x\n"), 0o644))

	got := c.waitFor(t, func(chs []orchestrator.Change) bool { return len(chs) > 0 })
	assert.Equal(t, path, got[0].Path)
}

func TestWatcherIgnoresIrrelevantExtensions(t *testing.T) {
	root := t.TempDir()
	c := &collector{}
	newTestWatcher(t, root, c)

	require.NoError(t, os.WriteFile(filepath.Join(root, "image.png"), []byte{1}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("x"), 0o644))

	got := c.waitFor(t, func(chs []orchestrator.Change) bool { return len(chs) > 0 })
	for _, ch := range got {
		assert.NotContains(t, ch.Path, "image.png")
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	root := t.TempDir()
	c := &collector{}
	newTestWatcher(t, root, c)

	path := filepath.Join(root, "busy.md")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("- [ ] edit\n"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	got := c.waitFor(t, func(chs []orchestrator.Change) bool { return len(chs) > 0 })

	// One deduplicated change per path per window, not five.
	count := 0
	for _, ch := range got {
		if ch.Path == path {
			count++
		}
	}
	assert.LessOrEqual(t, count, 2)
}

func TestWatcherReportsDeletions(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "gone.md")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	c := &collector{}
	newTestWatcher(t, root, c)

	require.NoError(t, os.Remove(path))

	c.waitFor(t, func(chs []orchestrator.Change) bool {
		for _, ch := range chs {
			if ch.Path == path && ch.Kind == orchestrator.EventDeleted {
				return true
			}
		}
		return false
	})
}

func TestWatcherPicksUpNewSubdirectories(t *testing.T) {
	root := t.TempDir()
	c := &collector{}
	newTestWatcher(t, root, c)

	sub := filepath.Join(root, "projects")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// Give the watcher a moment to add the new directory.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(sub, "deep.md")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	c.waitFor(t, func(chs []orchestrator.Change) bool {
		for _, ch := range chs {
			if ch.Path == path {
				return true
			}
		}
		return false
	})
}

func TestDedupeKeepsDeletionsSticky(t *testing.T) {
	in := []orchestrator.Change{
		{Kind: orchestrator.EventModified, Path: "a.md"},
		{Kind: orchestrator.EventDeleted, Path: "a.md"},
		{Kind: orchestrator.EventCreated, Path: "a.md"},
		{Kind: orchestrator.EventCreated, Path: "b.md"},
	}
	out := dedupe(in)
	require.Len(t, out, 2)
	assert.Equal(t, orchestrator.EventDeleted, out[0].Kind)
	assert.Equal(t, "b.md", out[1].Path)
}

func TestStopIsIdempotent(t *testing.T) {
	root := t.TempDir()
	c := &collector{}
	w := newTestWatcher(t, root, c)

	w.Stop()
	w.Stop()
	assert.False(t, w.IsWatching())
}
