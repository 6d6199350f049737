// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package project resolves an optional "project" classification for every
// document using a layered precedence policy, with per-directory caching
// of project config documents and per-file caching of the final result.
package project

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseFrontmatter extracts the YAML frontmatter block from a document.
//
// Returns nil when the document has no frontmatter or the block is not
// valid YAML; a broken frontmatter block is never fatal.
func ParseFrontmatter(content string) map[string]any {
	if !strings.HasPrefix(content, "---\n") && content != "---" {
		return nil
	}
	rest := strings.TrimPrefix(content, "---\n")
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil
	}
	var meta map[string]any
	if err := yaml.Unmarshal([]byte(rest[:end]), &meta); err != nil {
		return nil
	}
	return meta
}

// ParseConfigDocument parses a directory project-config document.
//
// Description:
//
//	Config documents are small files supplying default metadata for the
//	directory beneath them. Two shapes are accepted: a document whose
//	frontmatter carries the values, or a plain "key: value" body. The
//	frontmatter shape wins when both are present.
func ParseConfigDocument(content string) map[string]any {
	if meta := ParseFrontmatter(content); meta != nil {
		return meta
	}

	// Plain "key: value" body. Tolerates prose lines between entries.
	data := make(map[string]any)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if key == "" || value == "" || strings.ContainsAny(key, " \t") {
			continue
		}
		data[key] = value
	}
	if len(data) == 0 {
		return nil
	}
	return data
}
