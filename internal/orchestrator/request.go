// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// OpClass partitions operations for circuit breaking and metrics.
type OpClass string

const (
	OpParseFile      OpClass = "parse_file"
	OpBatchParse     OpClass = "batch_parse"
	OpComputeProject OpClass = "compute_project"
	OpBatchCompute   OpClass = "batch_compute"
)

var allOpClasses = []OpClass{OpParseFile, OpBatchParse, OpComputeProject, OpBatchCompute}

// requestState is the per-request lifecycle.
type requestState int

const (
	stateIdle requestState = iota
	stateSent
	stateResolved
	stateTimedOut
	stateErrored
)

// idGenerator produces process-unique request ids: an incrementing
// counter combined with the generator's startup timestamp, so ids
// never collide across restarts either.
type idGenerator struct {
	counter atomic.Uint64
	epoch   int64
}

func newIDGenerator(clock Clock) *idGenerator {
	return &idGenerator{epoch: clock.Now().UnixMilli()}
}

func (g *idGenerator) next() string {
	return fmt.Sprintf("%d-%d", g.counter.Add(1), g.epoch)
}

// pendingRequest tracks one in-flight worker round-trip.
type pendingRequest struct {
	id     string
	class  OpClass
	state  requestState
	sentAt time.Time
	done   chan response
}

// pendingTable is the bounded in-flight request table. Correlating
// responses by id here, rather than by closures captured per call,
// keeps timeout handling in one place.
type pendingTable struct {
	mu    sync.Mutex
	limit int
	reqs  map[string]*pendingRequest
}

func newPendingTable(limit int) *pendingTable {
	return &pendingTable{limit: limit, reqs: make(map[string]*pendingRequest)}
}

// register admits a new request in the Sent state.
func (t *pendingTable) register(id string, class OpClass, now time.Time) (*pendingRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.reqs) >= t.limit {
		return nil, ErrPendingLimit
	}
	pr := &pendingRequest{
		id:     id,
		class:  class,
		state:  stateSent,
		sentAt: now,
		done:   make(chan response, 1),
	}
	t.reqs[id] = pr
	return pr, nil
}

// resolve delivers a worker response. Late responses for requests
// already timed out are dropped.
func (t *pendingTable) resolve(resp response) {
	t.mu.Lock()
	pr, ok := t.reqs[resp.ID]
	if ok && pr.state == stateSent {
		if resp.Success {
			pr.state = stateResolved
		} else {
			pr.state = stateErrored
		}
		delete(t.reqs, resp.ID)
	} else {
		pr = nil
	}
	t.mu.Unlock()

	if pr != nil {
		pr.done <- resp
	}
}

// expire marks a request timed out and removes it. Returns false if
// the request already resolved.
func (t *pendingTable) expire(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	pr, ok := t.reqs[id]
	if !ok || pr.state != stateSent {
		return false
	}
	pr.state = stateTimedOut
	delete(t.reqs, id)
	return true
}

func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.reqs)
}
