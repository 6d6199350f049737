// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/taskweave/taskweave/internal/index"
	"github.com/taskweave/taskweave/internal/snapshot"
	"github.com/taskweave/taskweave/internal/task"
)

// ErrorResponse is the JSON body returned on any error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// QueryRequest is the body of POST /v1/tasks/query.
type QueryRequest struct {
	Filters []index.Filter        `json:"filters"`
	Sort    []index.SortCriterion `json:"sort"`
}

// QueryResponse is the body of a successful query.
type QueryResponse struct {
	Count int         `json:"count"`
	Tasks []task.Task `json:"tasks"`
}

// BatchProjectRequest is the body of POST /v1/project/batch.
type BatchProjectRequest struct {
	Paths []string `json:"paths" binding:"required,min=1"`
}

// handleQuery handles POST /v1/tasks/query.
//
// Description:
//
//	Evaluates a filter chain against the task index and returns the
//	matching tasks in sorted order. An empty filter list matches every
//	task; an empty sort list applies the default ordering.
//
// Response:
//
//	200 OK: QueryResponse
//	400 Bad Request: Malformed body, unknown filter type or operator
func (s *Server) handleQuery(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := s.logger.With(slog.String("request_id", requestID), slog.String("handler", "handleQuery"))

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	tasks, err := s.indexer.QueryTasks(c.Request.Context(), req.Filters, req.Sort)
	if err != nil {
		code := "QUERY_FAILED"
		status := http.StatusInternalServerError
		if errors.Is(err, index.ErrUnknownFilterType) {
			code = "UNKNOWN_FILTER_TYPE"
			status = http.StatusBadRequest
		} else if errors.Is(err, index.ErrUnknownOperator) {
			code = "UNKNOWN_OPERATOR"
			status = http.StatusBadRequest
		}
		logger.Warn("query failed", slog.Any("error", err))
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	c.JSON(http.StatusOK, QueryResponse{Count: len(tasks), Tasks: tasks})
}

// handleGetTask handles GET /v1/tasks/:id.
func (s *Server) handleGetTask(c *gin.Context) {
	id := c.Param("id")
	t, ok := s.indexer.GetTaskByID(id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Task not found",
			Code:  "TASK_NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, t)
}

// handleProject handles GET /v1/project?path=<vault-relative path>.
func (s *Server) handleProject(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Missing path query parameter",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	data, err := s.orch.ComputeProject(c.Request.Context(), path)
	if err != nil {
		s.logger.Error("project resolution failed",
			slog.String("path", path), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "PROJECT_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, data)
}

// handleProjectBatch handles POST /v1/project/batch.
//
// Response:
//
//	200 OK: map of path to project data, plus per-path errors
func (s *Server) handleProjectBatch(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := s.logger.With(slog.String("request_id", requestID), slog.String("handler", "handleProjectBatch"))

	var req BatchProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	results, errs := s.orch.BatchCompute(c.Request.Context(), req.Paths)
	failed := make(map[string]string, len(errs))
	for path, err := range errs {
		failed[path] = err.Error()
	}

	c.JSON(http.StatusOK, gin.H{
		"projects": results,
		"errors":   failed,
	})
}

// handleSnapshotSave handles POST /v1/snapshot/save.
func (s *Server) handleSnapshotSave(c *gin.Context) {
	if s.snapshots == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "Snapshot storage not configured",
			Code:  "SNAPSHOT_NOT_CONFIGURED",
		})
		return
	}

	snap := s.indexer.GetIndexSnapshot()
	if err := s.snapshots.Save(c.Request.Context(), s.vaultID, snap); err != nil {
		s.logger.Error("snapshot save failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "SNAPSHOT_SAVE_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"vault_id":   s.vaultID,
		"tasks":      len(snap.Tasks),
		"created_at": snap.CreatedAt,
	})
}

// handleSnapshotRestore handles POST /v1/snapshot/restore.
//
// Description:
//
//	Replaces the live index with the stored snapshot for this vault.
//	Tasks indexed since the snapshot was taken are dropped; callers
//	are expected to follow up with a rescan.
func (s *Server) handleSnapshotRestore(c *gin.Context) {
	if s.snapshots == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "Snapshot storage not configured",
			Code:  "SNAPSHOT_NOT_CONFIGURED",
		})
		return
	}

	snap, err := s.snapshots.Load(c.Request.Context(), s.vaultID)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "No snapshot for this vault",
				Code:  "SNAPSHOT_NOT_FOUND",
			})
			return
		}
		s.logger.Error("snapshot load failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "SNAPSHOT_LOAD_FAILED",
		})
		return
	}

	if err := s.indexer.RestoreFromSnapshot(snap); err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: err.Error(),
			Code:  "SNAPSHOT_VERSION_MISMATCH",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"vault_id": s.vaultID,
		"tasks":    len(snap.Tasks),
	})
}

// handleOrchestratorStats handles GET /v1/orchestrator/stats.
func (s *Server) handleOrchestratorStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.Metrics())
}

// handleOrchestratorStatsReset handles POST /v1/orchestrator/stats/reset.
func (s *Server) handleOrchestratorStatsReset(c *gin.Context) {
	s.orch.ResetMetrics()
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": Version,
		"tasks":   s.indexer.TaskCount(),
	})
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
