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

// queryFixture indexes a small mixed corpus across two files.
func queryFixture(t *testing.T) *Indexer {
	t.Helper()
	idx := NewIndexer(nil)

	jan1, _ := parser.ParseDate("2024-01-01")
	feb1, _ := parser.ParseDate("2024-02-01")
	mar1, _ := parser.ParseDate("2024-03-01")

	idx.UpdateIndexWithTasks("work.md", []task.Task{
		mkTask("work.md", 0, "write report", false, task.Metadata{
			Tags: []string{"work", "writing"}, Priority: parser.PriorityHigh, DueDate: jan1,
			Project: "Quarterly",
		}),
		mkTask("work.md", 1, "review budget", false, task.Metadata{
			Tags: []string{"work"}, Priority: parser.PriorityMedium, DueDate: feb1,
			Context: "office",
		}),
		mkTask("work.md", 2, "archive old notes", true, task.Metadata{
			Tags: []string{"work"},
		}),
	}, 1)

	idx.UpdateIndexWithTasks("home.md", []task.Task{
		mkTask("home.md", 0, "fix faucet", false, task.Metadata{
			Tags: []string{"home"}, DueDate: mar1,
		}),
		mkTask("home.md", 1, "plan holiday", false, task.Metadata{
			Tags: []string{"home", "travel"}, Priority: parser.PriorityLow,
			TgProject: &task.TgProject{Type: task.TgProjectTypeConfig, Name: "Household"},
		}),
	}, 1)

	return idx
}

func contents(tasks []task.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Content
	}
	return out
}

func TestQueryNoFiltersReturnsAll(t *testing.T) {
	idx := queryFixture(t)
	got, err := idx.QueryTasks(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestQuerySingleDimensions(t *testing.T) {
	idx := queryFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"tag equality", Filter{Type: "tag", Value: "travel"}, []string{"plan holiday"}},
		{"tag contains", Filter{Type: "tag", Operator: "contains", Value: "writ"}, []string{"write report"}},
		{"tag not equal", Filter{Type: "tag", Operator: "!=", Value: "work"}, []string{"fix faucet", "plan holiday"}},
		{"resolved project wins", Filter{Type: "project", Value: "Household"}, []string{"plan holiday"}},
		{"user typed project", Filter{Type: "project", Value: "Quarterly"}, []string{"write report"}},
		{"context", Filter{Type: "context", Value: "office"}, []string{"review budget"}},
		{"context empty", Filter{Type: "context", Operator: "empty"}, []string{"archive old notes", "fix faucet", "plan holiday", "write report"}},
		{"completed", Filter{Type: "completed", Value: "true"}, []string{"archive old notes"}},
		{"priority threshold", Filter{Type: "priority", Operator: ">=", Value: "3"}, []string{"review budget", "write report"}},
		{"priority empty", Filter{Type: "priority", Operator: "empty"}, []string{"archive old notes", "fix faucet"}},
		{"due equality", Filter{Type: "dueDate", Value: "2024-02-01"}, []string{"review budget"}},
		{"due before", Filter{Type: "dueDate", Operator: "before", Value: "2024-02-15"}, []string{"review budget", "write report"}},
		{"due after", Filter{Type: "dueDate", Operator: "after", Value: "2024-02-15"}, []string{"fix faucet"}},
		{"due empty", Filter{Type: "dueDate", Operator: "empty"}, []string{"archive old notes", "plan holiday"}},
		{"file path contains", Filter{Type: "filePath", Operator: "contains", Value: "home"}, []string{"fix faucet", "plan holiday"}},
		{"status scan", Filter{Type: "status", Value: "x"}, []string{"archive old notes"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := idx.QueryTasks(ctx, []Filter{tc.filter}, []SortCriterion{{Field: "content"}})
			require.NoError(t, err)
			assert.Equal(t, tc.want, contents(got))
		})
	}
}

func TestQueryConjunctions(t *testing.T) {
	idx := queryFixture(t)
	ctx := context.Background()

	got, err := idx.QueryTasks(ctx, []Filter{
		{Type: "tag", Value: "work"},
		{Type: "completed", Value: "false", Conjunction: "AND"},
	}, []SortCriterion{{Field: "content"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"review budget", "write report"}, contents(got))

	got, err = idx.QueryTasks(ctx, []Filter{
		{Type: "tag", Value: "travel"},
		{Type: "context", Value: "office", Conjunction: "OR"},
	}, []SortCriterion{{Field: "content"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"plan holiday", "review budget"}, contents(got))

	// AND then OR folds left to right.
	got, err = idx.QueryTasks(ctx, []Filter{
		{Type: "tag", Value: "work"},
		{Type: "completed", Value: "false", Conjunction: "AND"},
		{Type: "tag", Value: "home", Conjunction: "OR"},
	}, []SortCriterion{{Field: "content"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"fix faucet", "plan holiday", "review budget", "write report"}, contents(got))
}

func TestQueryErrors(t *testing.T) {
	idx := queryFixture(t)
	ctx := context.Background()

	_, err := idx.QueryTasks(ctx, []Filter{{Type: "flavor", Value: "sweet"}}, nil)
	assert.ErrorIs(t, err, ErrUnknownFilterType)

	_, err = idx.QueryTasks(ctx, []Filter{{Type: "tag", Operator: "~=", Value: "work"}}, nil)
	assert.ErrorIs(t, err, ErrUnknownOperator)

	_, err = idx.QueryTasks(ctx, []Filter{{Type: "dueDate", Operator: "before", Value: "not-a-date"}}, nil)
	assert.Error(t, err)

	_, err = idx.QueryTasks(ctx, []Filter{
		{Type: "tag", Value: "work"},
		{Type: "tag", Value: "home", Conjunction: "XOR"},
	}, nil)
	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestDefaultSortOrder(t *testing.T) {
	idx := queryFixture(t)

	got, err := idx.QueryTasks(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 5)

	// Open before completed, then priority descending, then earlier
	// due date, with missing values last at each step.
	assert.Equal(t, []string{
		"write report",  // open, priority 4
		"review budget", // open, priority 3
		"plan holiday",  // open, priority 2
		"fix faucet",    // open, no priority
		"archive old notes", // completed
	}, contents(got))
}

func TestExplicitSortMissingLast(t *testing.T) {
	idx := queryFixture(t)

	asc, err := idx.QueryTasks(context.Background(), nil, []SortCriterion{{Field: "dueDate", Order: "asc"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"write report", "review budget", "fix faucet", "archive old notes", "plan holiday"}, contents(asc))

	desc, err := idx.QueryTasks(context.Background(), nil, []SortCriterion{{Field: "dueDate", Order: "desc"}})
	require.NoError(t, err)
	// Direction flips the dated tasks only; undated stay last.
	assert.Equal(t, []string{"fix faucet", "review budget", "write report", "archive old notes", "plan holiday"}, contents(desc))
}

func TestSortTiebreakIsDeterministic(t *testing.T) {
	idx := NewIndexer(nil)
	idx.UpdateIndexWithTasks("b.md", []task.Task{mkTask("b.md", 0, "same", false, task.Metadata{})}, 1)
	idx.UpdateIndexWithTasks("a.md", []task.Task{
		mkTask("a.md", 5, "same", false, task.Metadata{}),
		mkTask("a.md", 2, "same", false, task.Metadata{}),
	}, 1)

	for i := 0; i < 5; i++ {
		got, err := idx.QueryTasks(context.Background(), nil, []SortCriterion{{Field: "content"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"a.md:L2", "a.md:L5", "b.md:L0"}, []string{got[0].ID, got[1].ID, got[2].ID})
	}
}
