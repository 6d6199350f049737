// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package project

import "errors"

// Sentinel errors for the project resolver. A missing config document
// is not an error: lookups cache the miss and fall through the
// precedence chain.
var (
	// ErrRelativeRoot indicates the resolver root was not absolute.
	ErrRelativeRoot = errors.New("resolver root must be an absolute path")
)
