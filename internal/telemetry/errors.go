// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import "errors"

var (
	// ErrNilContext indicates Init was called with a nil context.
	ErrNilContext = errors.New("telemetry: nil context")

	// ErrUnknownExporter indicates an unsupported exporter name.
	ErrUnknownExporter = errors.New("telemetry: unknown exporter")
)
