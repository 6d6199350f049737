// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package index owns the authoritative in-memory store of Task records
// and the derived inverted indexes (dimension maps), and exposes
// incremental update/remove plus a filter+sort query engine.
package index

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/taskweave/taskweave/internal/parser"
	"github.com/taskweave/taskweave/internal/task"
)

var tracer = otel.Tracer("taskweave.index")

// Dimension names one inverted index maintained by the Indexer.
type Dimension string

const (
	DimTag           Dimension = "tag"
	DimProject       Dimension = "project"
	DimContext       Dimension = "context"
	DimDueDate       Dimension = "dueDate"
	DimStartDate     Dimension = "startDate"
	DimScheduledDate Dimension = "scheduledDate"
	DimCancelledDate Dimension = "cancelledDate"
	DimCompleted     Dimension = "completed"
	DimPriority      Dimension = "priority"
	DimOnCompletion  Dimension = "onCompletion"
	DimDependsOn     Dimension = "dependsOn"
	DimCustomID      Dimension = "id"
)

// allDimensions is the fixed set of maintained dimension maps.
var allDimensions = []Dimension{
	DimTag, DimProject, DimContext,
	DimDueDate, DimStartDate, DimScheduledDate, DimCancelledDate,
	DimCompleted, DimPriority, DimOnCompletion, DimDependsOn, DimCustomID,
}

// smallCorpusThreshold selects the fast path for unfiltered queries.
const smallCorpusThreshold = 1000

// idSet is a set of task ids.
type idSet map[string]struct{}

// Indexer is the authoritative task store.
//
// Description:
//
//	Holds the primary id -> Task map, a filePath -> id-set reverse map,
//	one map per indexed dimension, and per-file mtime bookkeeping.
//	Updates replace a file's entire contribution, which makes
//	re-indexing idempotent.
//
// Thread Safety:
//
//	Mutation happens serially on the coordinating goroutine; reads also
//	arrive from the HTTP surface, so all state is guarded by an RWMutex.
type Indexer struct {
	mu sync.RWMutex

	tasks     map[string]*task.Task
	fileTasks map[string]idSet
	dims      map[Dimension]map[string]idSet

	fileMtimes         map[string]int64
	fileProcessedTimes map[string]int64

	logger *slog.Logger
}

// NewIndexer creates an empty indexer.
func NewIndexer(logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	idx := &Indexer{
		tasks:              make(map[string]*task.Task),
		fileTasks:          make(map[string]idSet),
		dims:               make(map[Dimension]map[string]idSet, len(allDimensions)),
		fileMtimes:         make(map[string]int64),
		fileProcessedTimes: make(map[string]int64),
		logger:             logger.With(slog.String("component", "task_indexer")),
	}
	for _, d := range allDimensions {
		idx.dims[d] = make(map[string]idSet)
	}
	return idx
}

// UpdateIndexWithTasks replaces a file's contribution to the index.
//
// Description:
//
//	Unconditionally removes all prior tasks for filePath from every
//	dimension map and the primary map, inserts the new task list, then
//	updates the file's mtime bookkeeping. Parsing the same content
//	twice yields the identical index state.
func (x *Indexer) UpdateIndexWithTasks(filePath string, tasks []task.Task, mtime int64) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.removeFileLocked(filePath)

	ids := make(idSet, len(tasks))
	for i := range tasks {
		t := tasks[i]
		x.tasks[t.ID] = &t
		ids[t.ID] = struct{}{}
		x.insertDimsLocked(&t)
	}
	if len(ids) > 0 {
		x.fileTasks[filePath] = ids
	}

	if mtime > 0 {
		x.fileMtimes[filePath] = mtime
	}
	x.fileProcessedTimes[filePath] = time.Now().UnixMilli()

	indexedTasksGauge.Set(float64(len(x.tasks)))
	updatesTotal.Inc()
}

// RemoveFileFromIndex removes a file's tasks without reinsertion.
// Used on delete and on filter exclusion.
func (x *Indexer) RemoveFileFromIndex(filePath string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.removeFileLocked(filePath)
	delete(x.fileMtimes, filePath)
	delete(x.fileProcessedTimes, filePath)
	indexedTasksGauge.Set(float64(len(x.tasks)))
}

// removeFileLocked removes every task the file contributed, using the
// stored task objects to find dimension entries. Re-deriving keys from
// current metadata would leak entries if metadata were ever mutated.
func (x *Indexer) removeFileLocked(filePath string) {
	ids, ok := x.fileTasks[filePath]
	if !ok {
		return
	}
	for id := range ids {
		t, ok := x.tasks[id]
		if !ok {
			continue
		}
		for dim, keys := range dimensionKeys(t) {
			for _, key := range keys {
				bucket := x.dims[dim][key]
				delete(bucket, id)
				if len(bucket) == 0 {
					delete(x.dims[dim], key)
				}
			}
		}
		delete(x.tasks, id)
	}
	delete(x.fileTasks, filePath)
}

// insertDimsLocked adds one task to every dimension map its metadata
// has a value for.
func (x *Indexer) insertDimsLocked(t *task.Task) {
	for dim, keys := range dimensionKeys(t) {
		for _, key := range keys {
			bucket, ok := x.dims[dim][key]
			if !ok {
				bucket = make(idSet)
				x.dims[dim][key] = bucket
			}
			bucket[t.ID] = struct{}{}
		}
	}
}

// dimensionKeys enumerates a task's keys per dimension.
func dimensionKeys(t *task.Task) map[Dimension][]string {
	keys := make(map[Dimension][]string, 8)

	if len(t.Metadata.Tags) > 0 {
		keys[DimTag] = t.Metadata.Tags
	}
	if p := projectName(t); p != "" {
		keys[DimProject] = []string{p}
	}
	if t.Metadata.Context != "" {
		keys[DimContext] = []string{t.Metadata.Context}
	}
	if t.Metadata.DueDate != 0 {
		keys[DimDueDate] = []string{parser.DayBucket(t.Metadata.DueDate)}
	}
	if t.Metadata.StartDate != 0 {
		keys[DimStartDate] = []string{parser.DayBucket(t.Metadata.StartDate)}
	}
	if t.Metadata.ScheduledDate != 0 {
		keys[DimScheduledDate] = []string{parser.DayBucket(t.Metadata.ScheduledDate)}
	}
	if t.Metadata.CancelledDate != 0 {
		keys[DimCancelledDate] = []string{parser.DayBucket(t.Metadata.CancelledDate)}
	}
	keys[DimCompleted] = []string{strconv.FormatBool(t.Completed)}
	if t.Metadata.Priority != 0 {
		keys[DimPriority] = []string{strconv.Itoa(t.Metadata.Priority)}
	}
	if t.Metadata.OnCompletion != "" {
		keys[DimOnCompletion] = []string{t.Metadata.OnCompletion}
	}
	if len(t.Metadata.DependsOn) > 0 {
		keys[DimDependsOn] = t.Metadata.DependsOn
	}
	if t.Metadata.ID != "" {
		keys[DimCustomID] = []string{t.Metadata.ID}
	}
	return keys
}

// projectName prefers the resolved project over the user-typed tag.
func projectName(t *task.Task) string {
	if t.Metadata.TgProject != nil && t.Metadata.TgProject.Name != "" {
		return t.Metadata.TgProject.Name
	}
	return t.Metadata.Project
}

// GetTaskByID returns a copy of one task.
func (x *Indexer) GetTaskByID(id string) (task.Task, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	t, ok := x.tasks[id]
	if !ok {
		return task.Task{}, false
	}
	return *t, true
}

// TaskCount returns the number of indexed tasks.
func (x *Indexer) TaskCount() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.tasks)
}

// FileMtime returns the recorded mtime for a file, if any.
func (x *Indexer) FileMtime(filePath string) (int64, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	mt, ok := x.fileMtimes[filePath]
	return mt, ok
}

// ValidateCacheConsistency is the periodic self-healing pass.
//
// Description:
//
//	A file present in the mtime map but absent from the file -> ids map
//	is purged from the mtime map: a file with no ids can have no valid
//	mtime entry. The converse (ids without mtime) is tolerated. Returns
//	the number of pruned entries; problems are never surfaced to
//	callers beyond the count and a log line.
func (x *Indexer) ValidateCacheConsistency() int {
	x.mu.Lock()
	defer x.mu.Unlock()

	pruned := 0
	for filePath := range x.fileMtimes {
		if _, ok := x.fileTasks[filePath]; !ok {
			delete(x.fileMtimes, filePath)
			delete(x.fileProcessedTimes, filePath)
			pruned++
		}
	}
	if pruned > 0 {
		consistencyPrunes.Add(float64(pruned))
		x.logger.Warn("pruned orphaned mtime entries", slog.Int("count", pruned))
	}
	return pruned
}

// dimBucket reads one dimension bucket; used by queries and tests.
func (x *Indexer) dimBucket(dim Dimension, key string) idSet {
	return x.dims[dim][key]
}

// attrInt is a tiny helper for span attributes.
func attrInt(k string, v int) attribute.KeyValue { return attribute.Int(k, v) }
