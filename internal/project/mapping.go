// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package project

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/taskweave/taskweave/internal/parser"
)

// MetadataMapping renames one metadata key after resolution.
type MetadataMapping struct {
	SourceKey string `yaml:"sourceKey" json:"sourceKey"`
	TargetKey string `yaml:"targetKey" json:"targetKey"`
}

// Field-name heuristics for type coercion during remapping.
var (
	dateKeyRe     = regexp.MustCompile(`(?i)(date|due|start|scheduled|completed|created|cancelled)`)
	priorityKeyRe = regexp.MustCompile(`(?i)priority`)
)

// ApplyMappings applies user-defined sourceKey -> targetKey renames with
// type coercion heuristics.
//
// Description:
//
//	Runs independently of the four-step project resolution. A string
//	landing on a date-named target key is parsed to epoch millis when it
//	looks like "YYYY-MM-DD..."; a string landing on a priority-named key
//	is mapped through the words table or parsed as an integer. Unmapped
//	keys pass through untouched; a mapping whose source is absent is a
//	no-op.
func ApplyMappings(meta map[string]any, mappings []MetadataMapping) map[string]any {
	if len(meta) == 0 || len(mappings) == 0 {
		return meta
	}

	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}

	for _, m := range mappings {
		raw, ok := out[m.SourceKey]
		if !ok || m.TargetKey == "" || m.TargetKey == m.SourceKey {
			continue
		}
		delete(out, m.SourceKey)
		out[m.TargetKey] = coerce(m.TargetKey, raw)
	}
	return out
}

// coerce applies the field-name heuristics to one value.
func coerce(targetKey string, raw any) any {
	s, isString := raw.(string)
	if !isString {
		return raw
	}

	if dateKeyRe.MatchString(targetKey) {
		if ms, ok := parser.ParseDate(s); ok {
			return ms
		}
		return raw
	}

	if priorityKeyRe.MatchString(targetKey) {
		if p, ok := parser.ParsePriority(s); ok {
			return p
		}
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n
		}
	}
	return raw
}
