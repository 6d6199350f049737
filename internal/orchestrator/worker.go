// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/internal/parser"
	"github.com/taskweave/taskweave/internal/project"
	"github.com/taskweave/taskweave/internal/settings"
	"github.com/taskweave/taskweave/internal/task"
)

// request is one self-contained worker message. The settings snapshot
// rides along on every dispatch so a reload never changes behavior
// under an in-flight operation.
type request struct {
	ID       string
	Class    OpClass
	Path     string
	Content  string
	FileMeta map[string]any
	Settings settings.Snapshot
	Project  *project.CachedProjectData
}

// response correlates back to its request by ID.
type response struct {
	ID      string
	Success bool
	Tasks   []task.Task
	Project *project.CachedProjectData
	Err     string
}

// worker is one pool member with its own request/response channel
// pair. Workers hold no mutable state shared with the coordinator;
// everything they need arrives in the request.
type worker struct {
	id       uuid.UUID
	in       chan request
	out      chan response
	resolver *project.Resolver
	logger   *slog.Logger
}

func newWorker(resolver *project.Resolver, logger *slog.Logger) *worker {
	id := uuid.New()
	return &worker{
		id:       id,
		in:       make(chan request),
		out:      make(chan response),
		resolver: resolver,
		logger:   logger.With(slog.String("worker", id.String()[:8])),
	}
}

func (w *worker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-w.in:
			if !ok {
				return
			}
			resp := w.execute(ctx, req)
			select {
			case w.out <- resp:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *worker) execute(ctx context.Context, req request) response {
	switch req.Class {
	case OpParseFile, OpBatchParse:
		return w.parse(ctx, req)
	case OpComputeProject, OpBatchCompute:
		data := w.resolver.Get(ctx, req.Path)
		return response{ID: req.ID, Success: true, Project: &data}
	}
	return response{ID: req.ID, Err: "unknown operation class"}
}

func (w *worker) parse(ctx context.Context, req request) response {
	p := parser.New(req.Settings.Parser)
	in := parser.Input{
		Content:  req.Content,
		FilePath: req.Path,
		FileMeta: req.FileMeta,
	}
	if req.Project != nil {
		in.ProjectData = req.Project.EnhancedMetadata
		in.TgProject = req.Project.TgProject
	}

	var (
		tasks []task.Task
		err   error
	)
	if strings.HasSuffix(req.Path, ".canvas") {
		tasks, err = p.ParseCanvas(ctx, in)
	} else {
		tasks, err = p.Parse(ctx, in)
	}
	if err != nil {
		// Soft parse failures still carry whatever was extracted; the
		// error string travels out of band.
		w.logger.Warn("parse failed", slog.String("path", req.Path), slog.Any("error", err))
		return response{ID: req.ID, Success: true, Tasks: tasks, Err: err.Error()}
	}
	return response{ID: req.ID, Success: true, Tasks: tasks}
}
