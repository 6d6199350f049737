// Copyright (C) 2025 Taskweave Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigEnvOverrides(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")
	t.Setenv("OTEL_METRICS_EXPORTER", "stdout")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("TASKWEAVE_ENV", "staging")

	cfg := DefaultConfig()
	assert.Equal(t, "taskweave", cfg.ServiceName)
	assert.Equal(t, "stdout", cfg.TraceExporter)
	assert.Equal(t, "stdout", cfg.MetricExporter)
	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "staging", cfg.Environment)
}

func TestInitNilContext(t *testing.T) {
	var nilCtx context.Context
	_, err := Init(nilCtx, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInitStdoutExporters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "stdout"
	cfg.MetricExporter = "stdout"

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitRejectsUnknownExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "jaeger-thrift"
	cfg.MetricExporter = "none"

	_, err := Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInitNoneDisablesBoth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "none"

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestMetricsHandlerAfterPrometheusInit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	defer shutdown(context.Background())

	assert.NotNil(t, MetricsHandler())
}
