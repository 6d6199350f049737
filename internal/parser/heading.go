// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

import (
	"strings"

	"github.com/taskweave/taskweave/internal/task"
)

// headingEntry is one open section while scanning a document.
type headingEntry struct {
	level int
	title string
}

// pushHeading replaces entries at the same or deeper level and appends
// the new heading, keeping the stack outermost-first.
func pushHeading(stack []headingEntry, level int, title string) []headingEntry {
	for len(stack) > 0 && stack[len(stack)-1].level >= level {
		stack = stack[:len(stack)-1]
	}
	return append(stack, headingEntry{level: level, title: title})
}

// headingTitles snapshots the stack's titles, outermost first.
func headingTitles(stack []headingEntry) []string {
	if len(stack) == 0 {
		return nil
	}
	titles := make([]string, len(stack))
	for i, h := range stack {
		titles[i] = h.title
	}
	return titles
}

// applyHeadingFilters drops tasks according to the configured ignore and
// focus heading lists.
//
// Matching is a case-insensitive substring test against the nearest
// enclosing heading, after stripping leading "#" markers from the
// configured values. Both lists accept comma-separated multi-values.
func (p *Parser) applyHeadingFilters(tasks []task.Task) []task.Task {
	ignore := splitHeadingList(p.cfg.IgnoreHeadings)
	focus := splitHeadingList(p.cfg.FocusHeadings)
	if len(ignore) == 0 && len(focus) == 0 {
		return tasks
	}

	kept := tasks[:0]
	for _, tk := range tasks {
		nearest := ""
		if n := len(tk.Metadata.Heading); n > 0 {
			nearest = strings.ToLower(tk.Metadata.Heading[n-1])
		}

		if len(ignore) > 0 && matchesAny(nearest, ignore) {
			continue
		}
		if len(focus) > 0 && !matchesAny(nearest, focus) {
			continue
		}
		kept = append(kept, tk)
	}
	return kept
}

// splitHeadingList parses a comma-separated heading filter value,
// lower-casing entries and stripping leading heading markers.
func splitHeadingList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimLeft(p, "#")
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}

func matchesAny(heading string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(heading, n) {
			return true
		}
	}
	return false
}
