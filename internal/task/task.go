// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package task defines the Task record extracted from documents and the
// source-variant model describing where a task came from.
package task

// Task is one checklist-style item extracted from a document.
//
// Description:
//
//	A Task is created by the parser when a file is (re)parsed, wholly
//	replaced whenever its owning file changes, and removed when the file
//	is deleted or filtered out. Tasks are value objects: the indexer and
//	resolver never mutate a Task after ingestion.
type Task struct {
	// ID is unique within the index. It is derived deterministically from
	// the task's source (see NewID on each Source variant).
	ID string `json:"id"`

	// Content is the display text of the item, with status marker and
	// metadata notation stripped.
	Content string `json:"content"`

	// FilePath is the normalized path of the owning document.
	FilePath string `json:"filePath"`

	// Line is the zero-based origin line. For non-line sources it is a
	// placeholder (0) and the Source variant carries the discriminator.
	Line int `json:"line"`

	// Completed reports whether the status marker means done.
	Completed bool `json:"completed"`

	// Status is the raw status marker character ("x", " ", "/", "-", ...).
	// Multi-state workflows beyond done/not-done are represented here.
	Status string `json:"status"`

	// OriginalText is the raw source line the task was parsed from.
	OriginalText string `json:"originalText,omitempty"`

	// Source identifies the extraction variant (markdown line, canvas
	// node, file metadata, file tag).
	Source Source `json:"source"`

	// Metadata is the open attribute bag.
	Metadata Metadata `json:"metadata"`
}

// Metadata is the attribute bag attached to every Task.
//
// All date fields are epoch milliseconds (UTC); zero means absent.
type Metadata struct {
	DueDate       int64 `json:"dueDate,omitempty"`
	StartDate     int64 `json:"startDate,omitempty"`
	ScheduledDate int64 `json:"scheduledDate,omitempty"`
	CompletedDate int64 `json:"completedDate,omitempty"`
	CancelledDate int64 `json:"cancelledDate,omitempty"`
	CreatedDate   int64 `json:"createdDate,omitempty"`

	// Priority is a small integer; 0 means unset. Larger is more urgent.
	Priority int `json:"priority,omitempty"`

	// Tags is an ordered set of "#tag" strings as written in the source.
	Tags []string `json:"tags,omitempty"`

	// Project is the user-typed project tag, if any.
	Project string `json:"project,omitempty"`

	// TgProject is the resolved project descriptor. The resolver cache,
	// not the Task, is the source of truth for recomputation.
	TgProject *TgProject `json:"tgProject,omitempty"`

	// Context is the "@context" style location/tool marker.
	Context string `json:"context,omitempty"`

	// DependsOn lists external custom ids this task depends on.
	DependsOn []string `json:"dependsOn,omitempty"`

	// OnCompletion is an opaque action descriptor executed by the host.
	OnCompletion string `json:"onCompletion,omitempty"`

	// Recurrence is the raw recurrence rule string.
	Recurrence string `json:"recurrence,omitempty"`

	// ID is the user-facing custom identifier, distinct from Task.ID.
	ID string `json:"customId,omitempty"`

	// Children and Parent express line-based hierarchy by task ID.
	Children []string `json:"children,omitempty"`
	Parent   string   `json:"parent,omitempty"`

	// Heading holds the enclosing section titles, outermost first.
	Heading []string `json:"heading,omitempty"`

	// Extra carries unrecognized "key:: value" pairs and remapped
	// frontmatter attributes.
	Extra map[string]any `json:"extra,omitempty"`
}

// TgProjectType describes how a project classification was determined.
type TgProjectType string

const (
	// TgProjectTypePath means an explicit path-pattern mapping matched.
	TgProjectTypePath TgProjectType = "path"

	// TgProjectTypeMetadata means the document's own frontmatter named it.
	TgProjectTypeMetadata TgProjectType = "metadata"

	// TgProjectTypeConfig means a directory config document supplied it.
	TgProjectTypeConfig TgProjectType = "config"

	// TgProjectTypeDefault means a default-naming strategy produced it.
	TgProjectTypeDefault TgProjectType = "default"
)

// TgProject is the resolved project descriptor attached to a task's
// metadata. It is distinct from the user-typed Metadata.Project value.
type TgProject struct {
	Type TgProjectType `json:"type"`
	Name string        `json:"name"`

	// Source records what produced the name: the matched path pattern,
	// the frontmatter key, the config document path, or the strategy.
	Source string `json:"source,omitempty"`

	// Readonly marks classifications the user cannot override in-place
	// (path mappings are always readonly).
	Readonly bool `json:"readonly"`
}

// HasTag reports whether the task carries the given tag.
func (t *Task) HasTag(tag string) bool {
	for _, tg := range t.Metadata.Tags {
		if tg == tag {
			return true
		}
	}
	return false
}
