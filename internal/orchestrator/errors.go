// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import "errors"

var (
	// ErrRequestTimeout means a worker never responded within the
	// per-request ceiling. Counts as a failure for retry and the
	// circuit breaker.
	ErrRequestTimeout = errors.New("worker request timed out")

	// ErrPendingLimit means the in-flight request table is full.
	ErrPendingLimit = errors.New("pending request table full")

	// ErrClosed is returned by operations after Close.
	ErrClosed = errors.New("orchestrator closed")

	// ErrQueueClosed is returned by Dequeue after the change queue is
	// closed and drained.
	ErrQueueClosed = errors.New("change queue closed")
)
