// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"sort"
	"strings"

	"github.com/taskweave/taskweave/internal/task"
)

// SortCriterion orders query results by one field. Order is "asc" or
// "desc", defaulting to "asc". Tasks missing the field sort after
// tasks that have it regardless of direction.
type SortCriterion struct {
	Field string `json:"field" binding:"required"`
	Order string `json:"order"`
}

// defaultSort is applied when the caller names no criteria: open tasks
// first, then higher priority, then earlier due date.
var defaultSort = []SortCriterion{
	{Field: "completed", Order: "asc"},
	{Field: "priority", Order: "desc"},
	{Field: "dueDate", Order: "asc"},
}

func sortTasks(tasks []task.Task, criteria []SortCriterion) {
	if len(criteria) == 0 {
		criteria = defaultSort
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := &tasks[i], &tasks[j]
		for _, c := range criteria {
			cmp := compareField(a, b, c)
			if cmp != 0 {
				return cmp < 0
			}
		}
		// Deterministic tiebreak so repeated queries agree.
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		return a.Line < b.Line
	})
}

// compareField returns a three-way comparison for one criterion.
// Missing values compare after present values in both directions, so
// the direction flip is applied only when both sides have a value.
func compareField(a, b *task.Task, c SortCriterion) int {
	av, aOK := fieldValue(a, c.Field)
	bv, bOK := fieldValue(b, c.Field)

	switch {
	case !aOK && !bOK:
		return 0
	case !aOK:
		return 1
	case !bOK:
		return -1
	}

	cmp := av.compare(bv)
	if strings.EqualFold(c.Order, "desc") {
		cmp = -cmp
	}
	return cmp
}

// sortValue is a comparable view of one task field.
type sortValue struct {
	num  int64
	str  string
	text bool
}

func (v sortValue) compare(o sortValue) int {
	if v.text {
		return strings.Compare(v.str, o.str)
	}
	switch {
	case v.num < o.num:
		return -1
	case v.num > o.num:
		return 1
	}
	return 0
}

func numValue(n int64) (sortValue, bool)  { return sortValue{num: n}, true }
func textValue(s string) (sortValue, bool) { return sortValue{str: s, text: true}, true }

func fieldValue(t *task.Task, field string) (sortValue, bool) {
	switch field {
	case "completed":
		if t.Completed {
			return numValue(1)
		}
		return numValue(0)
	case "priority":
		if t.Metadata.Priority == 0 {
			return sortValue{}, false
		}
		return numValue(int64(t.Metadata.Priority))
	case "dueDate":
		if t.Metadata.DueDate == 0 {
			return sortValue{}, false
		}
		return numValue(t.Metadata.DueDate)
	case "startDate":
		if t.Metadata.StartDate == 0 {
			return sortValue{}, false
		}
		return numValue(t.Metadata.StartDate)
	case "scheduledDate":
		if t.Metadata.ScheduledDate == 0 {
			return sortValue{}, false
		}
		return numValue(t.Metadata.ScheduledDate)
	case "createdDate":
		if t.Metadata.CreatedDate == 0 {
			return sortValue{}, false
		}
		return numValue(t.Metadata.CreatedDate)
	case "completedDate":
		if t.Metadata.CompletedDate == 0 {
			return sortValue{}, false
		}
		return numValue(t.Metadata.CompletedDate)
	case "content":
		return textValue(t.Content)
	case "status":
		return textValue(t.Status)
	case "filePath":
		return textValue(t.FilePath)
	case "line":
		return numValue(int64(t.Line))
	case "project":
		if p := projectName(t); p != "" {
			return textValue(p)
		}
		return sortValue{}, false
	case "context":
		if t.Metadata.Context != "" {
			return textValue(t.Metadata.Context)
		}
		return sortValue{}, false
	}
	return sortValue{}, false
}
