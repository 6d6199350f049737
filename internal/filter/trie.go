// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package filter decides, per path, whether a document is eligible for
// parsing and indexing. Three rule kinds are supported: exact file
// paths, folder prefixes (a trie over path segments), and glob patterns
// (translated to case-insensitive regular expressions). Rules carry an
// optional scope so inline-checklist parsing and whole-file metadata
// parsing can be gated independently.
package filter

import "strings"

// PathTrie indexes folder rules by path segment.
//
// A path matches when any ancestor-or-self segment chain ends at a node
// marked as a folder rule endpoint.
//
// Thread Safety: Not safe for concurrent mutation; the Manager rebuilds
// tries atomically under its own lock.
type PathTrie struct {
	root *trieNode
	size int
}

type trieNode struct {
	children map[string]*trieNode
	terminal bool
}

// NewPathTrie creates an empty trie.
func NewPathTrie() *PathTrie {
	return &PathTrie{root: &trieNode{children: make(map[string]*trieNode)}}
}

// Insert marks the normalized folder path as a rule endpoint.
func (t *PathTrie) Insert(folder string) {
	node := t.root
	for _, seg := range splitSegments(folder) {
		child, ok := node.children[seg]
		if !ok {
			child = &trieNode{children: make(map[string]*trieNode)}
			node.children[seg] = child
		}
		node = child
	}
	if node != t.root && !node.terminal {
		node.terminal = true
		t.size++
	}
}

// Matches reports whether any prefix of the path is a rule endpoint.
func (t *PathTrie) Matches(path string) bool {
	node := t.root
	for _, seg := range splitSegments(path) {
		child, ok := node.children[seg]
		if !ok {
			return false
		}
		if child.terminal {
			return true
		}
		node = child
	}
	return false
}

// Len returns the number of folder rules stored.
func (t *PathTrie) Len() int { return t.size }

// splitSegments normalizes and splits a slash-separated path.
func splitSegments(path string) []string {
	path = NormalizePath(path)
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// NormalizePath converts separators to forward slashes and strips
// leading/trailing slashes.
func NormalizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	return strings.Trim(path, "/")
}
