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

// BreakerState is one of the three circuit-breaker states.
type BreakerState int

const (
	// StateClosed routes operations to workers normally.
	StateClosed BreakerState = iota

	// StateOpen serves every operation from the synchronous fallback
	// until the cooldown elapses.
	StateOpen

	// StateHalfOpen lets exactly one probe through to a worker; its
	// outcome decides between Closed and Open.
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// Breaker is a per-operation-class circuit breaker.
//
// Description:
//
//	Counted consecutive failures at or above the threshold trip the
//	breaker Open. Open denies worker calls until the cooldown has
//	elapsed on the injected clock, then degrades to HalfOpen and
//	admits one probe. A successful probe resets to Closed with a
//	zeroed failure counter; a failed probe reopens the cooldown.
//
// Thread Safety: Safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	clock     Clock
	threshold int
	cooldown  time.Duration

	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a Closed breaker.
func NewBreaker(threshold int, cooldown time.Duration, clock Clock) *Breaker {
	if clock == nil {
		clock = SystemClock
	}
	return &Breaker{clock: clock, threshold: threshold, cooldown: cooldown}
}

// Allow reports whether a worker call may proceed now. In HalfOpen it
// admits only the first caller; the probe slot is released by
// RecordSuccess or RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.clock.Now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// RecordSuccess resets the breaker to Closed.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probing = false
}

// RecordFailure counts one exhausted-retries failure. Trips Open at
// the threshold; a failed HalfOpen probe reopens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = b.clock.Now()
		b.probing = false
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.state = StateOpen
			b.openedAt = b.clock.Now()
		}
	}
}

// State returns the current state, degrading Open to HalfOpen when
// the cooldown has already elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.clock.Now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}
