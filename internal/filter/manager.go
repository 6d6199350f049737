// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package filter

import (
	"fmt"
	"sync"

	"log/slog"
)

// Scope selects which parsing phase a rule applies to.
type Scope string

const (
	// ScopeInline gates inline-checklist parsing.
	ScopeInline Scope = "inline"

	// ScopeFile gates whole-file metadata parsing.
	ScopeFile Scope = "file"

	// ScopeBoth applies the rule to both phases. At build time a
	// both-scoped rule is indexed into every scope bucket so either
	// scoped query finds it.
	ScopeBoth Scope = "both"
)

// RuleKind distinguishes the three rule encodings.
type RuleKind string

const (
	// KindFile is an exact file path rule.
	KindFile RuleKind = "file"

	// KindFolder is a folder-prefix rule.
	KindFolder RuleKind = "folder"

	// KindPattern is a glob pattern rule.
	KindPattern RuleKind = "pattern"
)

// Mode is the overall filter polarity.
type Mode string

const (
	// ModeWhitelist includes a path iff it matches some enabled rule.
	ModeWhitelist Mode = "whitelist"

	// ModeBlacklist includes a path iff it matches no enabled rule.
	ModeBlacklist Mode = "blacklist"
)

// Rule is one configured filter entry.
type Rule struct {
	Kind    RuleKind `yaml:"kind" json:"kind"`
	Value   string   `yaml:"value" json:"value"`
	Scope   Scope    `yaml:"scope,omitempty" json:"scope,omitempty"`
	Enabled bool     `yaml:"enabled" json:"enabled"`
}

// scopeBucket holds the compiled rule set for one scope.
type scopeBucket struct {
	files    map[string]struct{}
	folders  *PathTrie
	patterns []*GlobMatcher
}

func newScopeBucket() *scopeBucket {
	return &scopeBucket{
		files:   make(map[string]struct{}),
		folders: NewPathTrie(),
	}
}

func (b *scopeBucket) matches(path string) bool {
	if _, ok := b.files[path]; ok {
		return true
	}
	if b.folders.Matches(path) {
		return true
	}
	for _, p := range b.patterns {
		if p.Match(path) {
			return true
		}
	}
	return false
}

// Manager evaluates the configured rules against paths, memoizing
// results per (path, scope) until the rule set changes.
//
// Thread Safety: Safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	mode    Mode
	buckets map[Scope]*scopeBucket
	memo    map[string]bool // key: string(scope) + "\x00" + path
	logger  *slog.Logger
}

// NewManager compiles the rule set. Rules with invalid glob patterns
// are skipped with a warning; a filter must never make the pipeline
// unusable.
func NewManager(mode Mode, rules []Rule, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		mode:   mode,
		memo:   make(map[string]bool),
		logger: logger.With(slog.String("component", "file_filter")),
	}
	m.buckets = map[Scope]*scopeBucket{
		ScopeInline: newScopeBucket(),
		ScopeFile:   newScopeBucket(),
	}
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		for _, scope := range expandScope(r.Scope) {
			m.addRule(m.buckets[scope], r)
		}
	}
	return m
}

func expandScope(s Scope) []Scope {
	switch s {
	case ScopeInline:
		return []Scope{ScopeInline}
	case ScopeFile:
		return []Scope{ScopeFile}
	default: // ScopeBoth and unscoped rules apply everywhere
		return []Scope{ScopeInline, ScopeFile}
	}
}

func (m *Manager) addRule(b *scopeBucket, r Rule) {
	switch r.Kind {
	case KindFile:
		b.files[NormalizePath(r.Value)] = struct{}{}
	case KindFolder:
		b.folders.Insert(r.Value)
	case KindPattern:
		g, err := NewGlobMatcher(r.Value)
		if err != nil {
			m.logger.Warn("skipping invalid filter pattern",
				slog.String("pattern", r.Value),
				slog.String("error", err.Error()))
			return
		}
		b.patterns = append(b.patterns, g)
	default:
		m.logger.Warn("skipping filter rule with unknown kind",
			slog.String("kind", string(r.Kind)))
	}
}

// Include reports whether the path is eligible for the given scope.
//
// Whitelist mode includes a path iff it matches some enabled rule;
// blacklist mode includes iff it matches none.
func (m *Manager) Include(path string, scope Scope) bool {
	path = NormalizePath(path)
	if scope == ScopeBoth {
		scope = ScopeInline
	}
	key := string(scope) + "\x00" + path

	m.mu.RLock()
	if cached, ok := m.memo[key]; ok {
		m.mu.RUnlock()
		return cached
	}
	m.mu.RUnlock()

	bucket := m.buckets[scope]
	matched := bucket.matches(path)

	included := matched
	if m.mode == ModeBlacklist {
		included = !matched
	}

	m.mu.Lock()
	m.memo[key] = included
	m.mu.Unlock()
	return included
}

// Reset clears the memoized results. Call after any rule set change.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memo = make(map[string]bool)
}

// Stats describes the compiled rule set, for diagnostics endpoints.
func (m *Manager) Stats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := map[string]any{"mode": string(m.mode), "memoized": len(m.memo)}
	for scope, b := range m.buckets {
		stats[fmt.Sprintf("%s_rules", scope)] = len(b.files) + b.folders.Len() + len(b.patterns)
	}
	return stats
}
