// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"sync"
	"time"
)

// ClassStats is a point-in-time view of one operation class.
type ClassStats struct {
	Success      uint64  `json:"success"`
	Failure      uint64  `json:"failure"`
	Fallback     uint64  `json:"fallback"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
	BreakerState string  `json:"breakerState"`
}

type classAccum struct {
	success      uint64
	failure      uint64
	fallback     uint64
	totalLatency time.Duration
	samples      uint64
}

// Stats accumulates queryable, resettable running metrics per
// operation class. Prometheus export happens alongside in metrics.go;
// this structure backs the HTTP metrics endpoint and tests.
type Stats struct {
	mu  sync.Mutex
	per map[OpClass]*classAccum
}

func newStats() *Stats {
	s := &Stats{per: make(map[OpClass]*classAccum, len(allOpClasses))}
	for _, c := range allOpClasses {
		s.per[c] = &classAccum{}
	}
	return s
}

func (s *Stats) recordSuccess(class OpClass, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accum(class)
	a.success++
	a.totalLatency += latency
	a.samples++
}

func (s *Stats) recordFailure(class OpClass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accum(class).failure++
}

func (s *Stats) recordFallback(class OpClass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accum(class).fallback++
}

func (s *Stats) accum(class OpClass) *classAccum {
	a, ok := s.per[class]
	if !ok {
		a = &classAccum{}
		s.per[class] = a
	}
	return a
}

// Snapshot returns current per-class stats.
func (s *Stats) Snapshot() map[OpClass]ClassStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[OpClass]ClassStats, len(s.per))
	for class, a := range s.per {
		cs := ClassStats{Success: a.success, Failure: a.failure, Fallback: a.fallback}
		if a.samples > 0 {
			cs.AvgLatencyMs = float64(a.totalLatency.Milliseconds()) / float64(a.samples)
		}
		out[class] = cs
	}
	return out
}

// Reset zeroes all counters.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range allOpClasses {
		s.per[c] = &classAccum{}
	}
}
