// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// EventKind classifies one file-change event.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventModified EventKind = "modified"
	EventDeleted  EventKind = "deleted"
)

// Change is one queued file-change event.
type Change struct {
	Kind EventKind
	Path string
}

// ChangeQueue is the FIFO feeding the coordinator.
//
// Description:
//
//	Enqueueing a path already in the queue is a no-op, except that a
//	deletion upgrades a queued create/modify in place so a removed
//	file is never re-parsed. Dequeue is paced by a rate limiter so
//	draining a large burst cannot starve the coordinating goroutine.
//
// Thread Safety: Safe for concurrent use.
type ChangeQueue struct {
	mu      sync.Mutex
	items   []Change
	queued  map[string]int
	signal  chan struct{}
	limiter *rate.Limiter
	closed  bool
}

// NewChangeQueue creates a queue whose dequeues are spaced at least
// interval apart. Zero interval disables pacing.
func NewChangeQueue(interval time.Duration) *ChangeQueue {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if interval > 0 {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return &ChangeQueue{
		queued:  make(map[string]int),
		signal:  make(chan struct{}, 1),
		limiter: limiter,
	}
}

// Enqueue appends a change. Returns false when deduplicated away or
// when the queue is closed.
func (q *ChangeQueue) Enqueue(ch Change) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}

	if pos, ok := q.queued[ch.Path]; ok {
		if ch.Kind == EventDeleted && q.items[pos].Kind != EventDeleted {
			q.items[pos].Kind = EventDeleted
		}
		queueDropped.Inc()
		return false
	}

	q.items = append(q.items, ch)
	q.queued[ch.Path] = len(q.items) - 1
	queueDepth.Set(float64(len(q.items)))

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Dequeue blocks for the next change, honoring pacing and ctx.
func (q *ChangeQueue) Dequeue(ctx context.Context) (Change, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ch := q.items[0]
			q.items = q.items[1:]
			delete(q.queued, ch.Path)
			for path, pos := range q.queued {
				q.queued[path] = pos - 1
			}
			queueDepth.Set(float64(len(q.items)))
			q.mu.Unlock()

			if err := q.limiter.Wait(ctx); err != nil {
				return Change{}, err
			}
			return ch, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return Change{}, ErrQueueClosed
		}
		select {
		case <-ctx.Done():
			return Change{}, ctx.Err()
		case <-q.signal:
		}
	}
}

// Len returns the queue depth.
func (q *ChangeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the queue. Queued items remain dequeueable until
// drained.
func (q *ChangeQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
