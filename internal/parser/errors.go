// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

import "errors"

// Sentinel errors for the parser.
var (
	// ErrMalformedCanvas indicates a node-graph document could not be
	// deserialized. The document contributes zero tasks.
	ErrMalformedCanvas = errors.New("malformed canvas document")

	// ErrIterationBudget indicates parsing was cut off by the iteration
	// bound on adversarial input. Tasks parsed so far are still returned.
	ErrIterationBudget = errors.New("parser iteration budget exhausted")
)
