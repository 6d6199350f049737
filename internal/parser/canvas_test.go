// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskweave/taskweave/internal/task"
)

func TestParseCanvas(t *testing.T) {
	p := New(DefaultConfig())

	content := `{
		"nodes": [
			{"id": "n1", "type": "text", "text": "# Board\n- [ ] task in node one"},
			{"id": "n2", "type": "text", "text": "- [x] task in node two"},
			{"id": "n3", "type": "file", "file": "other.md"}
		]
	}`

	tasks, err := p.ParseCanvas(context.Background(), Input{Content: content, FilePath: "b.canvas"})
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	first := tasks[0]
	require.IsType(t, task.CanvasSource{}, first.Source)
	assert.Equal(t, "n1", first.Source.(task.CanvasSource).NodeID)
	assert.Equal(t, "task in node one", first.Content)
	assert.False(t, first.Completed)

	second := tasks[1]
	assert.Equal(t, "n2", second.Source.(task.CanvasSource).NodeID)
	assert.True(t, second.Completed)
}

func TestParseCanvasUnresolvedAttribution(t *testing.T) {
	p := New(DefaultConfig())

	// Identical lines in two nodes: first match wins for both tasks.
	content := `{
		"nodes": [
			{"id": "a", "type": "text", "text": "- [ ] duplicate"},
			{"id": "b", "type": "text", "text": "- [ ] duplicate"}
		]
	}`

	tasks, err := p.ParseCanvas(context.Background(), Input{Content: content, FilePath: "d.canvas"})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "a", tasks[0].Source.(task.CanvasSource).NodeID)
	assert.Equal(t, "a", tasks[1].Source.(task.CanvasSource).NodeID)
	// IDs stay unique via the line component.
	assert.NotEqual(t, tasks[0].ID, tasks[1].ID)
}

func TestParseCanvasMalformed(t *testing.T) {
	p := New(DefaultConfig())

	tasks, err := p.ParseCanvas(context.Background(), Input{Content: "{not json", FilePath: "x.canvas"})
	require.ErrorIs(t, err, ErrMalformedCanvas)
	assert.Empty(t, tasks)
	assert.NotNil(t, tasks) // fails soft: empty slice, never nil
}

func TestParseCanvasHierarchyRemapped(t *testing.T) {
	p := New(DefaultConfig())

	content := `{
		"nodes": [
			{"id": "n1", "type": "text", "text": "- [ ] parent\n  - [ ] child"}
		]
	}`

	tasks, err := p.ParseCanvas(context.Background(), Input{Content: content, FilePath: "h.canvas"})
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	parent, child := tasks[0], tasks[1]
	assert.Equal(t, []string{child.ID}, parent.Metadata.Children)
	assert.Equal(t, parent.ID, child.Metadata.Parent)
	assert.Contains(t, child.ID, "#node:n1")
}
