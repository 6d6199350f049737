// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/taskweave/taskweave/internal/task"
)

// canvasDocument is the JSON shape of a node-graph document.
type canvasDocument struct {
	Nodes []canvasNode `json:"nodes"`
}

// canvasNode is one positioned node. Only "text" nodes are parseable.
type canvasNode struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ParseCanvas extracts tasks from a node-graph (canvas) document.
//
// Description:
//
//	Deserializes the JSON node list, concatenates the text content of all
//	"text" nodes with the configured separator, runs the text parser over
//	the concatenation, then re-attaches each task to its originating node
//	by a best-effort substring match of the task's original source line
//	against each node's raw text. First match wins. Tasks whose line
//	cannot be located in any node are kept without node attribution.
//
// Outputs:
//
//	[]task.Task - Extracted tasks; empty (never nil) on failure.
//	error - ErrMalformedCanvas (wrapped) when deserialization fails.
func (p *Parser) ParseCanvas(ctx context.Context, in Input) ([]task.Task, error) {
	_, span := tracer.Start(ctx, "parser.ParseCanvas")
	defer span.End()
	span.SetAttributes(attribute.String("file_path", in.FilePath))

	var doc canvasDocument
	if err := json.Unmarshal([]byte(in.Content), &doc); err != nil {
		span.RecordError(err)
		return []task.Task{}, fmt.Errorf("%w: %s: %v", ErrMalformedCanvas, in.FilePath, err)
	}

	textNodes := make([]canvasNode, 0, len(doc.Nodes))
	var sb strings.Builder
	for _, n := range doc.Nodes {
		if n.Type != "text" || n.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(p.cfg.CanvasSeparator)
		}
		sb.WriteString(n.Text)
		textNodes = append(textNodes, n)
	}

	textIn := in
	textIn.Content = sb.String()
	tasks, err := p.parseText(textIn)

	// Re-attach tasks to nodes, then remap hierarchy references to the
	// rewritten IDs.
	idMap := make(map[string]string, len(tasks))
	for i := range tasks {
		nodeID := findOwningNode(textNodes, tasks[i].OriginalText)
		src := task.CanvasSource{NodeID: nodeID, Line: tasks[i].Line}
		oldID := tasks[i].ID
		tasks[i].Source = src
		tasks[i].ID = src.TaskID(in.FilePath)
		idMap[oldID] = tasks[i].ID
	}
	for i := range tasks {
		md := &tasks[i].Metadata
		if newID, ok := idMap[md.Parent]; ok {
			md.Parent = newID
		}
		for j, child := range md.Children {
			if newID, ok := idMap[child]; ok {
				md.Children[j] = newID
			}
		}
	}

	if extra := p.extractFileTasks(in); len(extra) > 0 {
		tasks = append(tasks, extra...)
	}

	span.SetAttributes(attribute.Int("tasks", len(tasks)))
	return tasks, err
}

// findOwningNode locates the first text node containing the raw line.
func findOwningNode(nodes []canvasNode, line string) string {
	needle := strings.TrimSpace(line)
	if needle == "" {
		return ""
	}
	for _, n := range nodes {
		if strings.Contains(n.Text, needle) {
			return n.ID
		}
	}
	return ""
}
