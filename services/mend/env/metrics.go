// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package env

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for environment operations.
var (
	tracer = otel.Tracer("mend.env")
	meter  = otel.Meter("mend.env")
)

// Metrics for episode stepping.
var (
	stepLatency    metric.Float64Histogram
	stepTotal      metric.Int64Counter
	unitFailures   metric.Int64Counter
	documentsAdded metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		stepLatency, err = meter.Float64Histogram(
			"env_step_duration_seconds",
			metric.WithDescription("Duration of environment steps"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		stepTotal, err = meter.Int64Counter(
			"env_step_total",
			metric.WithDescription("Total number of environment steps"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		unitFailures, err = meter.Int64Counter(
			"env_unit_failures_total",
			metric.WithDescription("Total extraction units dropped by failure or timeout"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		documentsAdded, err = meter.Int64Histogram(
			"env_documents_added",
			metric.WithDescription("Documents merged into the observation per step"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startStepSpan creates a span for an environment step.
func startStepSpan(ctx context.Context, episodeID string, step int, kind string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Environment.Step",
		trace.WithAttributes(
			attribute.String("episode.id", episodeID),
			attribute.Int("episode.step", step),
			attribute.String("action.kind", kind),
		),
	)
}

// recordStepMetrics records metrics for a completed step.
func recordStepMetrics(ctx context.Context, duration time.Duration, kind string, docsAdded, failed int) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("action_kind", kind),
	)

	stepLatency.Record(ctx, duration.Seconds(), attrs)
	stepTotal.Add(ctx, 1, attrs)
	documentsAdded.Record(ctx, int64(docsAdded))
	if failed > 0 {
		unitFailures.Add(ctx, int64(failed), attrs)
	}
}
