// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

import (
	"strconv"
	"strings"
)

// Priority levels. Larger is more urgent; 0 means unset.
const (
	PriorityLowest  = 1
	PriorityLow     = 2
	PriorityMedium  = 3
	PriorityHigh    = 4
	PriorityHighest = 5
)

// priorityWords maps spelled-out priorities to levels.
var priorityWords = map[string]int{
	"highest": PriorityHighest,
	"urgent":  PriorityHighest,
	"high":    PriorityHigh,
	"medium":  PriorityMedium,
	"normal":  PriorityMedium,
	"none":    0,
	"low":     PriorityLow,
	"lowest":  PriorityLowest,
}

// priorityGlyphs maps compact notation glyphs to levels.
var priorityGlyphs = map[string]int{
	"🔺": PriorityHighest,
	"⏫": PriorityHigh,
	"🔼": PriorityMedium,
	"🔽": PriorityLow,
	"⏬": PriorityLowest,
	"[#A]": PriorityHighest,
	"[#B]": PriorityMedium,
	"[#C]": PriorityLowest,
}

// ParsePriority normalizes a priority token to a level.
//
// Accepts glyphs, the spelled-out words table, and bare integers in
// [1,5]. Returns (0, false) for anything else.
func ParsePriority(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if p, ok := priorityGlyphs[s]; ok {
		return p, true
	}
	if p, ok := priorityWords[strings.ToLower(s)]; ok {
		return p, true
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= PriorityHighest {
		return n, true
	}
	return 0, false
}
