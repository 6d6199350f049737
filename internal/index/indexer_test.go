// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskweave/taskweave/internal/parser"
	"github.com/taskweave/taskweave/internal/task"
)

func mkTask(filePath string, line int, content string, completed bool, md task.Metadata) task.Task {
	src := task.MarkdownSource{Line: line}
	return task.Task{
		ID:        src.TaskID(filePath),
		Content:   content,
		FilePath:  filePath,
		Line:      line,
		Completed: completed,
		Status:    map[bool]string{true: "x", false: " "}[completed],
		Source:    src,
		Metadata:  md,
	}
}

func TestUpdateIsIdempotent(t *testing.T) {
	idx := NewIndexer(nil)
	tasks := []task.Task{
		mkTask("a.md", 0, "one", false, task.Metadata{Tags: []string{"home"}}),
		mkTask("a.md", 1, "two", true, task.Metadata{Priority: parser.PriorityHigh}),
	}

	idx.UpdateIndexWithTasks("a.md", tasks, 100)
	idx.UpdateIndexWithTasks("a.md", tasks, 100)

	assert.Equal(t, 2, idx.TaskCount())
	assert.Len(t, idx.dimBucket(DimTag, "home"), 1)
	assert.Len(t, idx.dimBucket(DimCompleted, "true"), 1)
	assert.Len(t, idx.dimBucket(DimCompleted, "false"), 1)
}

func TestUpdateReplacesFileContribution(t *testing.T) {
	idx := NewIndexer(nil)

	idx.UpdateIndexWithTasks("a.md", []task.Task{
		mkTask("a.md", 0, "old", false, task.Metadata{Tags: []string{"alpha"}, Context: "office"}),
	}, 1)
	idx.UpdateIndexWithTasks("a.md", []task.Task{
		mkTask("a.md", 0, "new", false, task.Metadata{Tags: []string{"beta"}}),
	}, 2)

	assert.Empty(t, idx.dimBucket(DimTag, "alpha"), "stale tag bucket survived re-index")
	assert.Empty(t, idx.dimBucket(DimContext, "office"))
	assert.Len(t, idx.dimBucket(DimTag, "beta"), 1)

	got, ok := idx.GetTaskByID("a.md:L0")
	require.True(t, ok)
	assert.Equal(t, "new", got.Content)
}

func TestRemoveFileFromIndex(t *testing.T) {
	idx := NewIndexer(nil)
	due, _ := parser.ParseDate("2024-06-01")

	idx.UpdateIndexWithTasks("a.md", []task.Task{
		mkTask("a.md", 0, "one", false, task.Metadata{
			Tags: []string{"x"}, DueDate: due, Priority: 4,
			DependsOn: []string{"other-id"}, ID: "my-id",
		}),
	}, 1)
	idx.UpdateIndexWithTasks("b.md", []task.Task{
		mkTask("b.md", 0, "keep", false, task.Metadata{Tags: []string{"x"}}),
	}, 1)

	idx.RemoveFileFromIndex("a.md")

	assert.Equal(t, 1, idx.TaskCount())
	assert.Len(t, idx.dimBucket(DimTag, "x"), 1, "sibling file's entry must survive")
	assert.Empty(t, idx.dimBucket(DimDueDate, "2024-06-01"))
	assert.Empty(t, idx.dimBucket(DimPriority, "4"))
	assert.Empty(t, idx.dimBucket(DimDependsOn, "other-id"))
	assert.Empty(t, idx.dimBucket(DimCustomID, "my-id"))

	_, ok := idx.FileMtime("a.md")
	assert.False(t, ok)
}

func TestGetTaskByIDReturnsCopy(t *testing.T) {
	idx := NewIndexer(nil)
	idx.UpdateIndexWithTasks("a.md", []task.Task{
		mkTask("a.md", 0, "original", false, task.Metadata{}),
	}, 1)

	got, ok := idx.GetTaskByID("a.md:L0")
	require.True(t, ok)
	got.Content = "mutated"

	again, _ := idx.GetTaskByID("a.md:L0")
	assert.Equal(t, "original", again.Content)
}

func TestValidateCacheConsistency(t *testing.T) {
	idx := NewIndexer(nil)

	// A file that parsed to zero tasks leaves an mtime entry with no
	// id set behind it.
	idx.UpdateIndexWithTasks("empty.md", nil, 50)
	idx.UpdateIndexWithTasks("a.md", []task.Task{
		mkTask("a.md", 0, "one", false, task.Metadata{}),
	}, 60)

	pruned := idx.ValidateCacheConsistency()
	assert.Equal(t, 1, pruned)

	_, ok := idx.FileMtime("empty.md")
	assert.False(t, ok)
	_, ok = idx.FileMtime("a.md")
	assert.True(t, ok)

	assert.Zero(t, idx.ValidateCacheConsistency(), "second pass must find nothing")
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := NewIndexer(nil)
	due, _ := parser.ParseDate("2025-01-15")

	src.UpdateIndexWithTasks("a.md", []task.Task{
		mkTask("a.md", 0, "one", false, task.Metadata{Tags: []string{"home"}, DueDate: due}),
		mkTask("a.md", 3, "two", true, task.Metadata{}),
	}, 10)
	src.UpdateIndexWithTasks("b.md", []task.Task{
		mkTask("b.md", 1, "three", false, task.Metadata{Context: "office"}),
	}, 20)

	snap := src.GetIndexSnapshot()
	assert.Equal(t, snapshotVersion, snap.Version)
	assert.Len(t, snap.Tasks, 3)

	dst := NewIndexer(nil)
	require.NoError(t, dst.RestoreFromSnapshot(snap))

	assert.Equal(t, 3, dst.TaskCount())
	mt, ok := dst.FileMtime("a.md")
	require.True(t, ok)
	assert.EqualValues(t, 10, mt)

	// Dimension maps are rebuilt, so restored state is queryable.
	got, err := dst.QueryTasks(ctx, []Filter{{Type: "tag", Value: "home"}}, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "one", got[0].Content)

	got, err = dst.QueryTasks(ctx, []Filter{{Type: "dueDate", Operator: "after", Value: "2025-01-01"}}, nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRestoreRejectsUnknownVersion(t *testing.T) {
	idx := NewIndexer(nil)
	err := idx.RestoreFromSnapshot(Snapshot{Version: 99})
	assert.ErrorIs(t, err, ErrSnapshotVersion)
}

func TestReindexAfterCompletionFlip(t *testing.T) {
	ctx := context.Background()
	p := parser.New(parser.DefaultConfig())
	idx := NewIndexer(nil)

	before, err := p.Parse(ctx, parser.Input{
		Content:  "- [ ] Buy milk 📅2024-01-01 #groceries",
		FilePath: "a.md",
	})
	require.NoError(t, err)
	require.Len(t, before, 1)
	idx.UpdateIndexWithTasks("a.md", before, 1)

	open, err := idx.QueryTasks(ctx, []Filter{{Type: "completed", Value: "false"}}, nil)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "a.md:L0", open[0].ID)

	after, err := p.Parse(ctx, parser.Input{
		Content:  "- [x] Buy milk 📅2024-01-01 #groceries",
		FilePath: "a.md",
	})
	require.NoError(t, err)
	idx.UpdateIndexWithTasks("a.md", after, 2)

	open, err = idx.QueryTasks(ctx, []Filter{{Type: "completed", Value: "false"}}, nil)
	require.NoError(t, err)
	assert.Empty(t, open)

	done, err := idx.QueryTasks(ctx, []Filter{{Type: "completed", Value: "true"}}, nil)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, "a.md:L0", done[0].ID, "identity must be stable across the flip")
	assert.Len(t, idx.dimBucket(DimTag, "groceries"), 1)
}
