// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

import (
	"regexp"
	"strings"
	"time"
)

// dateLayouts are tried in order when normalizing date strings.
var dateLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
}

// datePrefixRe matches strings that look like a date at minimum
// YYYY-MM-DD precision, with optional time suffix.
var datePrefixRe = regexp.MustCompile(`^\d{4}[-/]\d{2}[-/]\d{2}`)

// ParseDate normalizes a date string to epoch milliseconds UTC.
//
// Accepts YYYY-MM-DD with optional time component. Returns (0, false)
// when the string does not look like a date.
func ParseDate(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if !datePrefixRe.MatchString(s) {
		return 0, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

// DayBucket formats an epoch-millisecond timestamp as the calendar day
// string used by the indexer's date dimension maps.
func DayBucket(epochMs int64) string {
	return time.UnixMilli(epochMs).UTC().Format("2006-01-02")
}
