// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskweave_orchestrator_ops_total",
		Help: "Worker operations by class and outcome.",
	}, []string{"class", "outcome"})

	opLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskweave_orchestrator_op_duration_seconds",
		Help:    "Worker round-trip latency per operation class.",
		Buckets: prometheus.DefBuckets,
	}, []string{"class"})

	fallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskweave_orchestrator_fallbacks_total",
		Help: "Operations served by the synchronous fallback path.",
	}, []string{"class"})

	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskweave_orchestrator_breaker_transitions_total",
		Help: "Circuit breaker state transitions.",
	}, []string{"class", "to"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskweave_orchestrator_retries_total",
		Help: "Retry attempts after a failed worker round-trip.",
	}, []string{"class"})

	pendingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskweave_orchestrator_pending_requests",
		Help: "In-flight worker requests.",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskweave_orchestrator_queue_depth",
		Help: "Change queue depth.",
	})

	queueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskweave_orchestrator_queue_deduped_total",
		Help: "Enqueues skipped because the path was already queued.",
	})
)
