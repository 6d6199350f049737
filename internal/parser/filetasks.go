// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

import (
	"fmt"
	"strings"

	"github.com/taskweave/taskweave/internal/task"
)

// ProjectDetectionMethod is one pluggable way to find a document's
// project from its metadata. Methods are evaluated in declaration order;
// the first hit wins (evaluated after path mapping and before directory
// config in the resolver's precedence chain).
type ProjectDetectionMethod struct {
	// Type is "metadata", "tag", or "link".
	Type string `yaml:"type" json:"type"`

	// Key is the frontmatter key ("metadata") or tag prefix ("tag").
	Key string `yaml:"key,omitempty" json:"key,omitempty"`

	// Filter optionally restricts "link" detection to outgoing links
	// containing this substring.
	Filter string `yaml:"filter,omitempty" json:"filter,omitempty"`
}

// FileTaskConfig controls the two non-line-based extraction modes.
type FileTaskConfig struct {
	// MetadataFields lists frontmatter fields that each produce one
	// synthetic task when present ("metadata task" mode).
	MetadataFields []string `yaml:"metadataFields" json:"metadataFields"`

	// TaskTags lists document tags that each produce one synthetic task
	// when present ("tag task" mode).
	TaskTags []string `yaml:"taskTags" json:"taskTags"`

	// DetectionMethods configures project detection for synthetic tasks.
	DetectionMethods []ProjectDetectionMethod `yaml:"detectionMethods" json:"detectionMethods"`

	// DefaultStatus is the status marker given to synthetic tasks.
	// Default " " (open).
	DefaultStatus string `yaml:"defaultStatus" json:"defaultStatus"`
}

// extractFileTasks derives synthetic tasks from the document's
// structured metadata: one per configured metadata field present, one
// per configured tag present. Both reuse the shared metadata-to-field
// mapping (date parsing, priority normalization, project detection).
func (p *Parser) extractFileTasks(in Input) []task.Task {
	cfg := p.cfg.FileTasks
	if len(cfg.MetadataFields) == 0 && len(cfg.TaskTags) == 0 {
		return nil
	}
	if in.FileMeta == nil {
		return nil
	}

	status := cfg.DefaultStatus
	if status == "" {
		status = " "
	}

	var out []task.Task

	for _, field := range cfg.MetadataFields {
		raw, ok := in.FileMeta[field]
		if !ok {
			continue
		}
		src := task.FileMetadataSource{Field: field}
		tk := p.syntheticTask(in, src, status)
		tk.Content = fmt.Sprintf("%s: %s", field, stringify(raw))
		out = append(out, tk)
	}

	docTags := metaTags(in.FileMeta)
	for _, want := range cfg.TaskTags {
		if !containsTag(docTags, want) {
			continue
		}
		src := task.FileTagSource{Tag: want}
		tk := p.syntheticTask(in, src, status)
		tk.Content = documentTitle(in.FilePath)
		tk.Metadata.Tags = appendUnique(tk.Metadata.Tags, normalizeTag(want))
		out = append(out, tk)
	}

	return out
}

// syntheticTask builds the common shell for metadata/tag tasks, mapping
// well-known frontmatter fields through the shared coercions.
func (p *Parser) syntheticTask(in Input, src task.Source, status string) task.Task {
	tk := task.Task{
		ID:        src.TaskID(in.FilePath),
		FilePath:  in.FilePath,
		Status:    status,
		Completed: status == "x" || status == "X",
		Source:    src,
	}

	for key, raw := range in.FileMeta {
		lk := strings.ToLower(key)
		if lk == "tags" || lk == "links" {
			continue // handled structurally below
		}
		p.applyField(lk, stringify(raw), &tk.Metadata)
	}
	for _, tag := range metaTags(in.FileMeta) {
		tk.Metadata.Tags = appendUnique(tk.Metadata.Tags, normalizeTag(tag))
	}

	if name, _ := p.detectProject(in); name != "" {
		tk.Metadata.Project = name
	}

	tk.Metadata.TgProject = in.TgProject
	return tk
}

// detectProject runs the configured detection methods in declaration
// order and returns the first project found plus the method that hit.
func (p *Parser) detectProject(in Input) (string, string) {
	for _, m := range p.cfg.FileTasks.DetectionMethods {
		switch m.Type {
		case "metadata":
			if v, ok := in.FileMeta[m.Key]; ok {
				if s := stringify(v); s != "" {
					return s, "metadata"
				}
			}
		case "tag":
			prefix := normalizeTag(m.Key)
			for _, tag := range metaTags(in.FileMeta) {
				nt := normalizeTag(tag)
				if nt == prefix {
					return strings.TrimPrefix(nt, "#"), "tag"
				}
				if strings.HasPrefix(nt, prefix+"/") {
					return strings.TrimPrefix(nt, prefix+"/"), "tag"
				}
			}
		case "link":
			for _, link := range metaLinks(in.FileMeta) {
				if m.Filter == "" || strings.Contains(link, m.Filter) {
					return link, "link"
				}
			}
		}
	}
	return "", ""
}

// metaTags reads the document tag list from frontmatter ("tags" as a
// list or comma-separated string).
func metaTags(meta map[string]any) []string {
	raw, ok := meta["tags"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, stringify(item))
		}
		return out
	case string:
		return splitList(v)
	default:
		return nil
	}
}

// metaLinks reads outgoing links recorded in frontmatter ("links").
func metaLinks(meta map[string]any) []string {
	raw, ok := meta["links"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, stringify(item))
		}
		return out
	case string:
		return splitList(v)
	default:
		return nil
	}
}

func containsTag(tags []string, want string) bool {
	nw := normalizeTag(want)
	for _, t := range tags {
		if normalizeTag(t) == nw {
			return true
		}
	}
	return false
}

func normalizeTag(t string) string {
	t = strings.TrimSpace(t)
	if t == "" || strings.HasPrefix(t, "#") {
		return t
	}
	return "#" + t
}

// documentTitle is the basename without extension, used as the content
// of tag-derived tasks.
func documentTitle(filePath string) string {
	base := filePath
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndexByte(base, '.'); idx >= 0 {
		base = base[:idx]
	}
	return base
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
