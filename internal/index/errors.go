// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import "errors"

var (
	// ErrUnknownFilterType is returned for a filter naming no known
	// dimension or top-level field. A misspelled filter is a caller
	// bug, not an empty result.
	ErrUnknownFilterType = errors.New("unknown filter type")

	// ErrUnknownOperator is returned for an operator the filter's
	// dimension does not support.
	ErrUnknownOperator = errors.New("unknown filter operator")

	// ErrSnapshotVersion is returned when restoring a snapshot written
	// by an incompatible format version.
	ErrSnapshotVersion = errors.New("unsupported snapshot version")
)
