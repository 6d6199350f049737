// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFOWithDedupe(t *testing.T) {
	q := NewChangeQueue(0)
	ctx := context.Background()

	assert.True(t, q.Enqueue(Change{Kind: EventModified, Path: "a.md"}))
	assert.True(t, q.Enqueue(Change{Kind: EventCreated, Path: "b.md"}))
	assert.False(t, q.Enqueue(Change{Kind: EventModified, Path: "a.md"}), "re-queueing a queued path is a no-op")
	assert.Equal(t, 2, q.Len())

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a.md", first.Path)

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b.md", second.Path)
}

func TestQueueDeleteUpgradesQueuedEntry(t *testing.T) {
	q := NewChangeQueue(0)

	q.Enqueue(Change{Kind: EventModified, Path: "a.md"})
	assert.False(t, q.Enqueue(Change{Kind: EventDeleted, Path: "a.md"}))
	assert.Equal(t, 1, q.Len())

	ch, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EventDeleted, ch.Kind)
}

func TestQueueCloseDrains(t *testing.T) {
	q := NewChangeQueue(0)
	q.Enqueue(Change{Kind: EventCreated, Path: "a.md"})
	q.Close()

	assert.False(t, q.Enqueue(Change{Kind: EventCreated, Path: "b.md"}))

	ch, err := q.Dequeue(context.Background())
	require.NoError(t, err, "queued items remain dequeueable after close")
	assert.Equal(t, "a.md", ch.Path)

	_, err = q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueueDequeueHonorsContext(t *testing.T) {
	q := NewChangeQueue(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueBlockedDequeueWakesOnEnqueue(t *testing.T) {
	q := NewChangeQueue(0)
	got := make(chan Change, 1)

	go func() {
		ch, err := q.Dequeue(context.Background())
		if err == nil {
			got <- ch
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Enqueue(Change{Kind: EventCreated, Path: "late.md"})

	select {
	case ch := <-got:
		assert.Equal(t, "late.md", ch.Path)
	case <-time.After(time.Second):
		t.Fatal("dequeue never woke up")
	}
}
