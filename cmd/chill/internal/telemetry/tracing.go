// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires OpenTelemetry tracing and Prometheus metrics for
// a setup run.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used by all chill spans.
const TracerName = "github.com/t3chill/chill"

// ErrNilWriter is returned when tracing is requested without a destination.
var ErrNilWriter = errors.New("trace writer is nil")

// TracingConfig controls InitTracing.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string

	// Output receives one JSON document per finished span.
	Output io.Writer

	// Pretty indents the span documents.
	Pretty bool
}

// InitTracing installs a global TracerProvider that exports spans to
// cfg.Output. The returned shutdown flushes pending spans and must be
// called before exit.
//
//	shutdown, err := telemetry.InitTracing(telemetry.TracingConfig{Output: f})
//	if err != nil {
//	    return err
//	}
//	defer shutdown(context.Background())
func InitTracing(cfg TracingConfig) (func(context.Context) error, error) {
	if cfg.Output == nil {
		return nil, ErrNilWriter
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "chill"
	}

	opts := []stdouttrace.Option{stdouttrace.WithWriter(cfg.Output)}
	if cfg.Pretty {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create span exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	// Syncer, not batcher: the process exits right after setup and every
	// span must be on disk by then.
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Tracer returns the chill tracer from the global provider. Without
// InitTracing it is a no-op tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
