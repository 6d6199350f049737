// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// GlobMatcher matches a normalized path against one glob pattern,
// compiled once to a case-insensitive regular expression.
//
// Translation rules:
//   - `*` matches any sequence of characters (including separators)
//   - `?` matches any single character
//   - literal dots are escaped
//   - bracket classes like [abc] pass through unchanged
//
// Thread Safety: Safe for concurrent use after creation.
type GlobMatcher struct {
	pattern string
	re      *regexp.Regexp
}

// NewGlobMatcher compiles a glob pattern.
func NewGlobMatcher(pattern string) (*GlobMatcher, error) {
	re, err := regexp.Compile("(?i)^" + globToRegexp(pattern) + "$")
	if err != nil {
		return nil, fmt.Errorf("compile glob %q: %w", pattern, err)
	}
	return &GlobMatcher{pattern: pattern, re: re}, nil
}

// Match reports whether the normalized path matches the pattern.
func (m *GlobMatcher) Match(path string) bool {
	return m.re.MatchString(NormalizePath(path))
}

// Pattern returns the original glob source.
func (m *GlobMatcher) Pattern() string { return m.pattern }

// globToRegexp translates one glob pattern to a regexp fragment.
func globToRegexp(pattern string) string {
	var sb strings.Builder
	inClass := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if inClass {
			sb.WriteByte(c)
			if c == ']' {
				inClass = false
			}
			continue
		}
		switch c {
		case '*':
			// ** collapses to the same "any run" semantics.
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				i++
			}
			sb.WriteString(".*")
		case '?':
			sb.WriteByte('.')
		case '[':
			inClass = true
			sb.WriteByte('[')
		case '.', '+', '(', ')', '|', '^', '$', '{', '}':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\\':
			sb.WriteString(`\\`)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
