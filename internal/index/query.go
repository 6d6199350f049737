// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/taskweave/taskweave/internal/parser"
	"github.com/taskweave/taskweave/internal/task"
)

// Filter is one predicate in a query chain.
//
// Conjunction ("AND" or "OR", default "AND") joins this filter with
// the accumulated result of the filters before it; it is ignored on
// the first filter.
type Filter struct {
	Type        string `json:"type" binding:"required"`
	Operator    string `json:"operator"`
	Value       string `json:"value"`
	Conjunction string `json:"conjunction"`
}

// QueryTasks evaluates a filter chain and returns matching tasks,
// sorted.
//
// Description:
//
//	Each filter resolves to an id set, served from the dimension maps
//	where the operator allows it and by a scan otherwise. Sets are
//	folded left to right with the filter's conjunction. An empty
//	filter list returns every task; corpora at or below the small
//	threshold skip the set machinery entirely. Unknown filter types
//	and operators are hard errors.
func (x *Indexer) QueryTasks(ctx context.Context, filters []Filter, sortBy []SortCriterion) ([]task.Task, error) {
	_, span := tracer.Start(ctx, "index.QueryTasks")
	defer span.End()
	span.SetAttributes(attrInt("filters", len(filters)))

	start := time.Now()
	defer func() { queryDuration.Observe(time.Since(start).Seconds()) }()

	x.mu.RLock()
	defer x.mu.RUnlock()

	var out []task.Task
	if len(filters) == 0 && len(x.tasks) <= smallCorpusThreshold {
		out = make([]task.Task, 0, len(x.tasks))
		for _, t := range x.tasks {
			out = append(out, *t)
		}
	} else {
		result, err := x.evaluateChainLocked(filters)
		if err != nil {
			queriesTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		out = make([]task.Task, 0, len(result))
		for id := range result {
			out = append(out, *x.tasks[id])
		}
	}

	sortTasks(out, sortBy)
	queriesTotal.WithLabelValues("ok").Inc()
	return out, nil
}

func (x *Indexer) evaluateChainLocked(filters []Filter) (idSet, error) {
	result := x.allIDsLocked()
	for i, f := range filters {
		set, err := x.evaluateFilterLocked(f)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			result = set
			continue
		}
		switch strings.ToUpper(f.Conjunction) {
		case "", "AND":
			result = intersect(result, set)
		case "OR":
			result = union(result, set)
		default:
			return nil, fmt.Errorf("filter %d: conjunction %q: %w", i, f.Conjunction, ErrUnknownOperator)
		}
	}
	return result, nil
}

func (x *Indexer) allIDsLocked() idSet {
	all := make(idSet, len(x.tasks))
	for id := range x.tasks {
		all[id] = struct{}{}
	}
	return all
}

func (x *Indexer) evaluateFilterLocked(f Filter) (idSet, error) {
	op := f.Operator
	if op == "" {
		op = "="
	}

	switch f.Type {
	case "tag":
		return x.keyedFilterLocked(DimTag, op, f.Value, func(t *task.Task) []string { return t.Metadata.Tags })
	case "project":
		return x.keyedFilterLocked(DimProject, op, f.Value, func(t *task.Task) []string {
			if p := projectName(t); p != "" {
				return []string{p}
			}
			return nil
		})
	case "context":
		return x.keyedFilterLocked(DimContext, op, f.Value, func(t *task.Task) []string {
			if t.Metadata.Context != "" {
				return []string{t.Metadata.Context}
			}
			return nil
		})
	case "onCompletion":
		return x.keyedFilterLocked(DimOnCompletion, op, f.Value, func(t *task.Task) []string {
			if t.Metadata.OnCompletion != "" {
				return []string{t.Metadata.OnCompletion}
			}
			return nil
		})
	case "dependsOn":
		return x.keyedFilterLocked(DimDependsOn, op, f.Value, func(t *task.Task) []string { return t.Metadata.DependsOn })
	case "id":
		return x.keyedFilterLocked(DimCustomID, op, f.Value, func(t *task.Task) []string {
			if t.Metadata.ID != "" {
				return []string{t.Metadata.ID}
			}
			return nil
		})
	case "dueDate":
		return x.dateFilterLocked(DimDueDate, op, f.Value)
	case "startDate":
		return x.dateFilterLocked(DimStartDate, op, f.Value)
	case "scheduledDate":
		return x.dateFilterLocked(DimScheduledDate, op, f.Value)
	case "cancelledDate":
		return x.dateFilterLocked(DimCancelledDate, op, f.Value)
	case "completed":
		return x.completedFilterLocked(op, f.Value)
	case "priority":
		return x.priorityFilterLocked(op, f.Value)
	case "status":
		return x.scanFilterLocked(op, f.Value, func(t *task.Task) string { return t.Status })
	case "filePath":
		return x.scanFilterLocked(op, f.Value, func(t *task.Task) string { return t.FilePath })
	default:
		return nil, fmt.Errorf("filter type %q: %w", f.Type, ErrUnknownFilterType)
	}
}

// keyedFilterLocked serves string-keyed dimensions. Equality reads the
// bucket directly; the other operators walk the dimension's key space
// or, for "empty", the primary map.
func (x *Indexer) keyedFilterLocked(dim Dimension, op, value string, keysOf func(*task.Task) []string) (idSet, error) {
	switch op {
	case "=":
		return copySet(x.dims[dim][value]), nil
	case "!=":
		out := make(idSet)
		for id, t := range x.tasks {
			if !containsString(keysOf(t), value) {
				out[id] = struct{}{}
			}
		}
		return out, nil
	case "contains":
		out := make(idSet)
		needle := strings.ToLower(value)
		for key, bucket := range x.dims[dim] {
			if strings.Contains(strings.ToLower(key), needle) {
				mergeInto(out, bucket)
			}
		}
		return out, nil
	case "empty":
		out := make(idSet)
		for id, t := range x.tasks {
			if len(keysOf(t)) == 0 {
				out[id] = struct{}{}
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("dimension %s: operator %q: %w", dim, op, ErrUnknownOperator)
	}
}

// dateFilterLocked compares day buckets lexically, which matches
// chronological order for the YYYY-MM-DD format.
func (x *Indexer) dateFilterLocked(dim Dimension, op, value string) (idSet, error) {
	if op == "empty" {
		out := make(idSet)
		for id, t := range x.tasks {
			if dateFieldFor(dim, t) == 0 {
				out[id] = struct{}{}
			}
		}
		return out, nil
	}

	ms, ok := parser.ParseDate(value)
	if !ok {
		return nil, fmt.Errorf("dimension %s: value %q is not a date: %w", dim, value, ErrUnknownOperator)
	}
	bucket := parser.DayBucket(ms)

	switch op {
	case "=":
		return copySet(x.dims[dim][bucket]), nil
	case "!=":
		out := make(idSet)
		for key, ids := range x.dims[dim] {
			if key != bucket {
				mergeInto(out, ids)
			}
		}
		return out, nil
	case "before", "<":
		out := make(idSet)
		for key, ids := range x.dims[dim] {
			if key < bucket {
				mergeInto(out, ids)
			}
		}
		return out, nil
	case "after", ">":
		out := make(idSet)
		for key, ids := range x.dims[dim] {
			if key > bucket {
				mergeInto(out, ids)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("dimension %s: operator %q: %w", dim, op, ErrUnknownOperator)
	}
}

func dateFieldFor(dim Dimension, t *task.Task) int64 {
	switch dim {
	case DimDueDate:
		return t.Metadata.DueDate
	case DimStartDate:
		return t.Metadata.StartDate
	case DimScheduledDate:
		return t.Metadata.ScheduledDate
	case DimCancelledDate:
		return t.Metadata.CancelledDate
	}
	return 0
}

func (x *Indexer) completedFilterLocked(op, value string) (idSet, error) {
	if op != "=" && op != "!=" {
		return nil, fmt.Errorf("dimension completed: operator %q: %w", op, ErrUnknownOperator)
	}
	want, err := strconv.ParseBool(value)
	if err != nil {
		return nil, fmt.Errorf("dimension completed: value %q: %w", value, ErrUnknownOperator)
	}
	if op == "!=" {
		want = !want
	}
	return copySet(x.dims[DimCompleted][strconv.FormatBool(want)]), nil
}

func (x *Indexer) priorityFilterLocked(op, value string) (idSet, error) {
	if op == "empty" {
		out := make(idSet)
		for id, t := range x.tasks {
			if t.Metadata.Priority == 0 {
				out[id] = struct{}{}
			}
		}
		return out, nil
	}
	want, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("dimension priority: value %q: %w", value, ErrUnknownOperator)
	}

	match := func(p int) bool { return false }
	switch op {
	case "=":
		return copySet(x.dims[DimPriority][strconv.Itoa(want)]), nil
	case "!=":
		match = func(p int) bool { return p != want }
	case ">":
		match = func(p int) bool { return p > want }
	case "<":
		match = func(p int) bool { return p < want }
	case ">=":
		match = func(p int) bool { return p >= want }
	case "<=":
		match = func(p int) bool { return p <= want }
	default:
		return nil, fmt.Errorf("dimension priority: operator %q: %w", op, ErrUnknownOperator)
	}

	out := make(idSet)
	for key, ids := range x.dims[DimPriority] {
		p, err := strconv.Atoi(key)
		if err == nil && match(p) {
			mergeInto(out, ids)
		}
	}
	return out, nil
}

// scanFilterLocked serves fields with no dimension map.
func (x *Indexer) scanFilterLocked(op, value string, fieldOf func(*task.Task) string) (idSet, error) {
	out := make(idSet)
	switch op {
	case "=":
		for id, t := range x.tasks {
			if fieldOf(t) == value {
				out[id] = struct{}{}
			}
		}
	case "!=":
		for id, t := range x.tasks {
			if fieldOf(t) != value {
				out[id] = struct{}{}
			}
		}
	case "contains":
		needle := strings.ToLower(value)
		for id, t := range x.tasks {
			if strings.Contains(strings.ToLower(fieldOf(t)), needle) {
				out[id] = struct{}{}
			}
		}
	default:
		return nil, fmt.Errorf("operator %q: %w", op, ErrUnknownOperator)
	}
	return out, nil
}

func copySet(in idSet) idSet {
	out := make(idSet, len(in))
	for id := range in {
		out[id] = struct{}{}
	}
	return out
}

func mergeInto(dst, src idSet) {
	for id := range src {
		dst[id] = struct{}{}
	}
}

func intersect(a, b idSet) idSet {
	if len(b) < len(a) {
		a, b = b, a
	}
	out := make(idSet)
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func union(a, b idSet) idSet {
	out := make(idSet, len(a)+len(b))
	mergeInto(out, a)
	mergeInto(out, b)
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
