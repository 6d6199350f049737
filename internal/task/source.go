// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package task

import (
	"encoding/json"
	"fmt"
)

// SourceType discriminates the extraction variants.
type SourceType string

const (
	// SourceMarkdown is a checklist line in a plain text document.
	SourceMarkdown SourceType = "markdown"

	// SourceCanvasNode is a checklist line inside a node-graph document.
	SourceCanvasNode SourceType = "canvas-node"

	// SourceFileMetadata is a synthetic task derived from a frontmatter field.
	SourceFileMetadata SourceType = "file-metadata"

	// SourceFileTag is a synthetic task derived from a document tag.
	SourceFileTag SourceType = "file-tag"
)

// Source is the closed union of task origins. Each variant carries only
// the fields relevant to it; construct via the New*Source functions so
// task IDs stay deterministic.
type Source interface {
	// Type returns the variant discriminator.
	Type() SourceType

	// TaskID derives the index-unique id for a task of this source in
	// the given file.
	TaskID(filePath string) string

	sealed()
}

// MarkdownSource locates a task on a document line.
type MarkdownSource struct {
	Line int `json:"line"`
}

// CanvasSource locates a task inside a node-graph document node. NodeID
// is empty when node attribution could not be resolved.
type CanvasSource struct {
	NodeID string `json:"nodeId,omitempty"`
	Line   int    `json:"line"`
}

// FileMetadataSource marks a synthetic whole-document task derived from
// a frontmatter field.
type FileMetadataSource struct {
	Field string `json:"field"`
}

// FileTagSource marks a synthetic whole-document task derived from a
// document tag.
type FileTagSource struct {
	Tag string `json:"tag"`
}

func (MarkdownSource) Type() SourceType     { return SourceMarkdown }
func (CanvasSource) Type() SourceType       { return SourceCanvasNode }
func (FileMetadataSource) Type() SourceType { return SourceFileMetadata }
func (FileTagSource) Type() SourceType      { return SourceFileTag }

func (s MarkdownSource) TaskID(filePath string) string {
	return fmt.Sprintf("%s:L%d", filePath, s.Line)
}

func (s CanvasSource) TaskID(filePath string) string {
	if s.NodeID == "" {
		return fmt.Sprintf("%s#canvas:L%d", filePath, s.Line)
	}
	return fmt.Sprintf("%s#node:%s:L%d", filePath, s.NodeID, s.Line)
}

func (s FileMetadataSource) TaskID(filePath string) string {
	return fmt.Sprintf("%s#meta:%s", filePath, s.Field)
}

func (s FileTagSource) TaskID(filePath string) string {
	return fmt.Sprintf("%s#tag:%s", filePath, s.Tag)
}

func (MarkdownSource) sealed()     {}
func (CanvasSource) sealed()       {}
func (FileMetadataSource) sealed() {}
func (FileTagSource) sealed()      {}

// sourceEnvelope is the wire form of a Source value.
type sourceEnvelope struct {
	Type   SourceType `json:"type"`
	Line   int        `json:"line,omitempty"`
	NodeID string     `json:"nodeId,omitempty"`
	Field  string     `json:"field,omitempty"`
	Tag    string     `json:"tag,omitempty"`
}

// MarshalSource encodes a Source into its JSON envelope.
func MarshalSource(s Source) ([]byte, error) {
	env := sourceEnvelope{Type: s.Type()}
	switch v := s.(type) {
	case MarkdownSource:
		env.Line = v.Line
	case CanvasSource:
		env.Line = v.Line
		env.NodeID = v.NodeID
	case FileMetadataSource:
		env.Field = v.Field
	case FileTagSource:
		env.Tag = v.Tag
	default:
		return nil, fmt.Errorf("unknown source variant %T", s)
	}
	return json.Marshal(env)
}

// UnmarshalSource decodes a Source from its JSON envelope.
func UnmarshalSource(data []byte) (Source, error) {
	var env sourceEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Type {
	case SourceMarkdown:
		return MarkdownSource{Line: env.Line}, nil
	case SourceCanvasNode:
		return CanvasSource{Line: env.Line, NodeID: env.NodeID}, nil
	case SourceFileMetadata:
		return FileMetadataSource{Field: env.Field}, nil
	case SourceFileTag:
		return FileTagSource{Tag: env.Tag}, nil
	default:
		return nil, fmt.Errorf("unknown source type %q", env.Type)
	}
}

// MarshalJSON implements json.Marshaler for tasks so the Source interface
// round-trips through the snapshot boundary.
func (t Task) MarshalJSON() ([]byte, error) {
	type alias Task
	src, err := MarshalSource(t.Source)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		alias
		Source json.RawMessage `json:"source"`
	}{alias: alias(t), Source: src})
}

// UnmarshalJSON implements json.Unmarshaler; see MarshalJSON.
func (t *Task) UnmarshalJSON(data []byte) error {
	type alias Task
	aux := struct {
		*alias
		Source json.RawMessage `json:"source"`
	}{alias: (*alias)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Source) > 0 {
		src, err := UnmarshalSource(aux.Source)
		if err != nil {
			return err
		}
		t.Source = src
	}
	return nil
}
