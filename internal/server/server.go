// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package server exposes the task index, project resolver, and
// orchestrator over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/taskweave/taskweave/internal/index"
	"github.com/taskweave/taskweave/internal/orchestrator"
	"github.com/taskweave/taskweave/internal/snapshot"
)

// Version is the service version reported by the health endpoint.
const Version = "0.1.0"

// Server bundles the HTTP surface over the running pipeline.
//
// Thread Safety: Safe for concurrent use once constructed; all
// mutable state lives behind the wrapped components' own locks.
type Server struct {
	indexer   *index.Indexer
	orch      *orchestrator.Orchestrator
	snapshots *snapshot.Store
	vaultID   string
	logger    *slog.Logger

	engine *gin.Engine
	http   *http.Server
}

// Options configures a Server.
type Options struct {
	Indexer *index.Indexer
	Orch    *orchestrator.Orchestrator

	// Snapshots is optional; when nil the snapshot endpoints return
	// 503.
	Snapshots *snapshot.Store

	VaultID string
	Addr    string
	Logger  *slog.Logger
}

// New builds a Server with its routes registered.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		indexer:   opts.Indexer,
		orch:      opts.Orch,
		snapshots: opts.Snapshots,
		vaultID:   opts.VaultID,
		logger:    logger.With(slog.String("component", "server")),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("taskweave"))
	s.registerRoutes(engine)
	s.engine = engine
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("http server listening", slog.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
