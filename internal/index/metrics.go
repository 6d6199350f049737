// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	indexedTasksGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskweave_index_tasks",
		Help: "Number of tasks currently held in the primary index.",
	})

	updatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskweave_index_updates_total",
		Help: "File-level index update operations.",
	})

	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskweave_index_queries_total",
		Help: "Task queries by outcome.",
	}, []string{"outcome"})

	queryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "taskweave_index_query_duration_seconds",
		Help:    "Latency of task queries.",
		Buckets: prometheus.DefBuckets,
	})

	consistencyPrunes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskweave_index_consistency_prunes_total",
		Help: "Orphaned cache entries removed by the consistency pass.",
	})

	snapshotOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskweave_index_snapshot_ops_total",
		Help: "Snapshot save and restore operations.",
	}, []string{"op"})
)
