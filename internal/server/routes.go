// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskweave/taskweave/internal/telemetry"
)

// registerRoutes registers all endpoints with the engine.
//
// Endpoints:
//
//	POST /v1/tasks/query - Query the task index
//	GET  /v1/tasks/:id - Get a task by ID
//	GET  /v1/project - Resolve project data for a file
//	POST /v1/project/batch - Resolve project data for many files
//	POST /v1/snapshot/save - Persist the current index
//	POST /v1/snapshot/restore - Restore the index from storage
//	GET  /v1/orchestrator/stats - Per-operation orchestrator stats
//	POST /v1/orchestrator/stats/reset - Zero the stats counters
//	GET  /v1/health - Health check
//	GET  /metrics - Prometheus scrape endpoint
func (s *Server) registerRoutes(engine *gin.Engine) {
	v1 := engine.Group("/v1")
	{
		tasks := v1.Group("/tasks")
		{
			tasks.POST("/query", s.handleQuery)
			tasks.GET("/:id", s.handleGetTask)
		}

		proj := v1.Group("/project")
		{
			proj.GET("", s.handleProject)
			proj.POST("/batch", s.handleProjectBatch)
		}

		snap := v1.Group("/snapshot")
		{
			snap.POST("/save", s.handleSnapshotSave)
			snap.POST("/restore", s.handleSnapshotRestore)
		}

		orch := v1.Group("/orchestrator")
		{
			orch.GET("/stats", s.handleOrchestratorStats)
			orch.POST("/stats/reset", s.handleOrchestratorStatsReset)
		}

		v1.GET("/health", s.handleHealth)
	}

	metricsHandler := telemetry.MetricsHandler()
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	engine.GET("/metrics", gin.WrapH(metricsHandler))
}
