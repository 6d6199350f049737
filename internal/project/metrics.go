// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package project

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for resolver operations.
var (
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "project_resolutions_total",
		Help: "Total project resolutions by winning source",
	}, []string{"source"})

	fileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "project_file_cache_hits_total",
		Help: "Per-file project cache hits",
	})

	fileCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "project_file_cache_misses_total",
		Help: "Per-file project cache misses",
	})

	dirConfigParses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "project_dir_config_parses_total",
		Help: "Directory config documents located and parsed",
	})

	dirCacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "project_dir_cache_invalidations_total",
		Help: "Directory cache entries dropped by config changes",
	})
)
