// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskweave/taskweave/internal/index"
	"github.com/taskweave/taskweave/internal/task"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleSnapshot() index.Snapshot {
	idx := index.NewIndexer(nil)
	src := task.MarkdownSource{Line: 0}
	idx.UpdateIndexWithTasks("a.md", []task.Task{{
		ID:       src.TaskID("a.md"),
		Content:  "persisted",
		FilePath: "a.md",
		Status:   " ",
		Source:   src,
		Metadata: task.Metadata{Tags: []string{"keep"}},
	}}, 42)
	return idx.GetIndexSnapshot()
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "vault-1", sampleSnapshot()))

	got, err := s.Load(ctx, "vault-1")
	require.NoError(t, err)
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, "persisted", got.Tasks[0].Content)
	assert.EqualValues(t, 42, got.FileMtimes["a.md"])

	// The loaded snapshot must restore into a working index.
	idx := index.NewIndexer(nil)
	require.NoError(t, idx.RestoreFromSnapshot(got))
	restored, ok := idx.GetTaskByID("a.md:L0")
	require.True(t, ok)
	assert.Contains(t, restored.Metadata.Tags, "keep")
}

func TestSaveReplacesPrior(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "v", sampleSnapshot()))
	empty := index.NewIndexer(nil).GetIndexSnapshot()
	require.NoError(t, s.Save(ctx, "v", empty))

	got, err := s.Load(ctx, "v")
	require.NoError(t, err)
	assert.Empty(t, got.Tasks)
}

func TestLoadMissingVault(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVaultsAreIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "one", sampleSnapshot()))
	_, err := s.Load(ctx, "two")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "v", sampleSnapshot()))
	require.NoError(t, s.Delete(ctx, "v"))
	_, err := s.Load(ctx, "v")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Delete(ctx, "v"), "deleting a missing snapshot is not an error")
}
