// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator coordinates the worker pool that runs parsing
// and project resolution off the coordinating goroutine, with
// retries, per-class circuit breakers, and a synchronous fallback
// over the same code path.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/taskweave/taskweave/internal/project"
	"github.com/taskweave/taskweave/internal/settings"
	"github.com/taskweave/taskweave/internal/task"
)

var tracer = otel.Tracer("taskweave.orchestrator")

// FileContent is one document handed to a parse operation.
type FileContent struct {
	Path     string
	Content  string
	FileMeta map[string]any
	Project  *project.CachedProjectData
}

// Orchestrator owns the worker pool.
//
// Description:
//
//	Dispatch is round-robin over a fixed-size pool. Every operation
//	class carries its own circuit breaker; an Open breaker serves the
//	fallback path, which executes the identical worker code on the
//	calling goroutine. Individual round-trips retry with exponential
//	backoff before counting as a breaker failure.
//
// Thread Safety: Safe for concurrent use after Start.
type Orchestrator struct {
	settingsMu sync.RWMutex
	snap       settings.Snapshot

	cfg      settings.OrchestratorSettings
	workers  []*worker
	fallback *worker
	rr       atomic.Uint64

	ids      *idGenerator
	pending  *pendingTable
	breakers map[OpClass]*Breaker
	stats    *Stats

	clock  Clock
	logger *slog.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	closed  atomic.Bool
}

// New builds an orchestrator; Start must be called before use. A nil
// clock selects the system clock.
func New(snap settings.Snapshot, resolver *project.Resolver, logger *slog.Logger, clock Clock) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = SystemClock
	}
	logger = logger.With(slog.String("component", "orchestrator"))

	cfg := snap.Orchestrator
	o := &Orchestrator{
		snap:     snap,
		cfg:      cfg,
		ids:      newIDGenerator(clock),
		pending:  newPendingTable(cfg.PendingLimit),
		breakers: make(map[OpClass]*Breaker, len(allOpClasses)),
		stats:    newStats(),
		clock:    clock,
		logger:   logger,
		fallback: newWorker(resolver, logger),
	}
	for _, class := range allOpClasses {
		o.breakers[class] = NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown, clock)
	}
	for i := 0; i < cfg.Workers; i++ {
		o.workers = append(o.workers, newWorker(resolver, logger))
	}
	return o
}

// Start launches the pool. Workers live until Close or ctx
// cancellation.
func (o *Orchestrator) Start(ctx context.Context) {
	if o.started {
		return
	}
	o.started = true
	ctx, o.cancel = context.WithCancel(ctx)

	for _, w := range o.workers {
		w := w
		o.wg.Add(2)
		go func() {
			defer o.wg.Done()
			w.run(ctx)
		}()
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case resp := <-w.out:
					o.pending.resolve(resp)
					pendingGauge.Set(float64(o.pending.size()))
				}
			}
		}()
	}
	o.logger.Info("worker pool started", slog.Int("workers", len(o.workers)))
}

// Close stops the pool. In-flight requests fail with timeouts.
func (o *Orchestrator) Close() {
	if o.closed.Swap(true) {
		return
	}
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// UpdateSettings swaps the snapshot threaded into future dispatches.
// Pool sizing and breaker policy stay as constructed.
func (o *Orchestrator) UpdateSettings(snap settings.Snapshot) {
	o.settingsMu.Lock()
	o.snap = snap
	o.settingsMu.Unlock()
}

// Settings returns the current snapshot.
func (o *Orchestrator) Settings() settings.Snapshot {
	o.settingsMu.RLock()
	defer o.settingsMu.RUnlock()
	return o.snap
}

// Metrics returns per-class running stats with breaker states.
func (o *Orchestrator) Metrics() map[OpClass]ClassStats {
	out := o.stats.Snapshot()
	for class, cs := range out {
		cs.BreakerState = o.breakers[class].State().String()
		out[class] = cs
	}
	return out
}

// ResetMetrics zeroes the running stats. Breaker state is unaffected.
func (o *Orchestrator) ResetMetrics() { o.stats.Reset() }

// ParseFile parses one document through the pool.
//
// Outputs: the extracted tasks, plus a non-nil error when the document
// parsed unclean. Partial results accompany soft errors.
func (o *Orchestrator) ParseFile(ctx context.Context, f FileContent) ([]task.Task, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.ParseFile")
	defer span.End()
	span.SetAttributes(attribute.String("path", f.Path))

	resp, err := o.do(ctx, OpParseFile, o.parseRequest(OpParseFile, f))
	if err != nil {
		return nil, err
	}
	return resp.Tasks, softErr(resp)
}

// ComputeProject resolves one file's project data through the pool.
func (o *Orchestrator) ComputeProject(ctx context.Context, path string) (project.CachedProjectData, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.ComputeProject")
	defer span.End()

	resp, err := o.do(ctx, OpComputeProject, request{Class: OpComputeProject, Path: path, Settings: o.Settings()})
	if err != nil {
		return project.CachedProjectData{}, err
	}
	if resp.Project == nil {
		return project.CachedProjectData{}, nil
	}
	return *resp.Project, nil
}

// BatchParse partitions files evenly across the pool and fans out in
// parallel. A failing partition never cancels its siblings; each
// file's failure is reported independently in the error map.
func (o *Orchestrator) BatchParse(ctx context.Context, files []FileContent) (map[string][]task.Task, map[string]error) {
	ctx, span := tracer.Start(ctx, "orchestrator.BatchParse")
	defer span.End()
	span.SetAttributes(attribute.Int("files", len(files)))

	out := make(map[string][]task.Task, len(files))
	errs := make(map[string]error)
	var mu sync.Mutex
	var g errgroup.Group

	for _, part := range partition(files, len(o.workers)) {
		part := part
		g.Go(func() error {
			for _, f := range part {
				resp, err := o.do(ctx, OpBatchParse, o.parseRequest(OpBatchParse, f))
				mu.Lock()
				if err != nil {
					errs[f.Path] = err
				} else {
					out[f.Path] = resp.Tasks
					if serr := softErr(resp); serr != nil {
						errs[f.Path] = serr
					}
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out, errs
}

// BatchCompute resolves project data for many paths, grouped across
// the pool the same way as BatchParse.
func (o *Orchestrator) BatchCompute(ctx context.Context, paths []string) (map[string]project.CachedProjectData, map[string]error) {
	ctx, span := tracer.Start(ctx, "orchestrator.BatchCompute")
	defer span.End()

	out := make(map[string]project.CachedProjectData, len(paths))
	errs := make(map[string]error)
	var mu sync.Mutex
	var g errgroup.Group

	for _, part := range partition(paths, len(o.workers)) {
		part := part
		g.Go(func() error {
			for _, path := range part {
				resp, err := o.do(ctx, OpBatchCompute, request{Class: OpBatchCompute, Path: path, Settings: o.Settings()})
				mu.Lock()
				switch {
				case err != nil:
					errs[path] = err
				case resp.Project != nil:
					out[path] = *resp.Project
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out, errs
}

func (o *Orchestrator) parseRequest(class OpClass, f FileContent) request {
	return request{
		Class:    class,
		Path:     f.Path,
		Content:  f.Content,
		FileMeta: f.FileMeta,
		Settings: o.Settings(),
		Project:  f.Project,
	}
}

// softErr surfaces a per-document parse problem that did not fail the
// round-trip itself.
func softErr(resp response) error {
	if resp.Err == "" {
		return nil
	}
	return errors.New(resp.Err)
}

// do runs one operation with breaker gating, retries, and fallback.
func (o *Orchestrator) do(ctx context.Context, class OpClass, req request) (response, error) {
	if o.closed.Load() {
		return response{}, ErrClosed
	}

	br := o.breakers[class]
	if !br.Allow() {
		return o.serveFallback(ctx, class, req), nil
	}

	for attempt := 0; attempt < o.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			retriesTotal.WithLabelValues(string(class)).Inc()
			if err := o.backoff(ctx, attempt); err != nil {
				return response{}, err
			}
		}

		start := time.Now()
		resp, err := o.roundTrip(ctx, req)
		if err == nil {
			latency := time.Since(start)
			br.RecordSuccess()
			o.stats.recordSuccess(class, latency)
			opsTotal.WithLabelValues(string(class), "success").Inc()
			opLatency.WithLabelValues(string(class)).Observe(latency.Seconds())
			return resp, nil
		}
		if ctx.Err() != nil {
			return response{}, ctx.Err()
		}
		o.logger.Warn("worker round-trip failed",
			slog.String("class", string(class)),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err))
	}

	br.RecordFailure()
	o.stats.recordFailure(class)
	opsTotal.WithLabelValues(string(class), "failure").Inc()
	if br.State() == StateOpen {
		breakerTransitions.WithLabelValues(string(class), "open").Inc()
	}
	return o.serveFallback(ctx, class, req), nil
}

// serveFallback executes the request synchronously through the same
// worker code path.
func (o *Orchestrator) serveFallback(ctx context.Context, class OpClass, req request) response {
	o.stats.recordFallback(class)
	fallbacksTotal.WithLabelValues(string(class)).Inc()
	req.ID = o.ids.next()
	return o.fallback.execute(ctx, req)
}

// backoff sleeps base * 2^(attempt-1), honoring ctx.
func (o *Orchestrator) backoff(ctx context.Context, attempt int) error {
	delay := o.cfg.BackoffBase << (attempt - 1)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// roundTrip sends one request to the next worker and waits for its
// correlated response or the per-request timeout.
func (o *Orchestrator) roundTrip(ctx context.Context, req request) (response, error) {
	req.ID = o.ids.next()
	pr, err := o.pending.register(req.ID, req.Class, o.clock.Now())
	if err != nil {
		return response{}, err
	}
	pendingGauge.Set(float64(o.pending.size()))

	w := o.workers[int(o.rr.Add(1)-1)%len(o.workers)]

	timer := time.NewTimer(o.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case w.in <- req:
	case <-timer.C:
		o.pending.expire(req.ID)
		return response{}, ErrRequestTimeout
	case <-ctx.Done():
		o.pending.expire(req.ID)
		return response{}, ctx.Err()
	}

	select {
	case resp := <-pr.done:
		if !resp.Success {
			return resp, errors.New(resp.Err)
		}
		return resp, nil
	case <-timer.C:
		if o.pending.expire(req.ID) {
			return response{}, ErrRequestTimeout
		}
		// Lost the race: the response landed as the timer fired.
		resp := <-pr.done
		if !resp.Success {
			return resp, errors.New(resp.Err)
		}
		return resp, nil
	case <-ctx.Done():
		o.pending.expire(req.ID)
		return response{}, ctx.Err()
	}
}

// partition splits items into up to n contiguous, evenly sized parts.
func partition[T any](items []T, n int) [][]T {
	if n < 1 {
		n = 1
	}
	if len(items) < n {
		n = len(items)
	}
	if n == 0 {
		return nil
	}
	out := make([][]T, 0, n)
	size := len(items) / n
	rem := len(items) % n
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < rem {
			end++
		}
		out = append(out, items[start:end])
		start = end
	}
	return out
}
