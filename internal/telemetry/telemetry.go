// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package telemetry wires OpenTelemetry tracing and metrics for the turn
// engine. With no endpoint configured the providers record in-process only
// and nothing leaves the host.
package telemetry

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

const InstrumentationName = "github.com/sigil-dev/wren"

// Config controls telemetry setup.
type Config struct {
	// Endpoint is the OTLP/HTTP collector, e.g. "localhost:4318" or
	// "https://collector:4318". Empty disables export.
	Endpoint       string  `mapstructure:"endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	ServiceVersion string  `mapstructure:"-"`
	Insecure       bool    `mapstructure:"insecure"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`

	// MetricReader, when set, is attached to the meter provider. Tests use a
	// manual reader to inspect recorded instruments.
	MetricReader sdkmetric.Reader `mapstructure:"-"`
	// SpanProcessor, when set, is attached in addition to the exporter.
	SpanProcessor sdktrace.SpanProcessor `mapstructure:"-"`
}

// Providers holds the configured tracer and meter providers.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Filter         *Filter
}

// Setup builds tracer and meter providers from cfg.
func Setup(ctx context.Context, cfg Config) (*Providers, error) {
	filter, err := NewFilter(FilterConfig{})
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeTelemetrySetupFailure, "building attribute filter")
	}

	res, err := buildResource(cfg)
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeTelemetrySetupFailure, "building resource")
	}

	traceOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	}
	if cfg.SpanProcessor != nil {
		traceOpts = append(traceOpts, sdktrace.WithSpanProcessor(cfg.SpanProcessor))
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint != "" {
		exporter, err := newTraceExporter(ctx, endpoint, cfg.Insecure)
		if err != nil {
			return nil, err
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exporter))
	}

	metricOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if cfg.MetricReader != nil {
		metricOpts = append(metricOpts, sdkmetric.WithReader(cfg.MetricReader))
	}

	return &Providers{
		TracerProvider: sdktrace.NewTracerProvider(traceOpts...),
		MeterProvider:  sdkmetric.NewMeterProvider(metricOpts...),
		Filter:         filter,
	}, nil
}

func newTraceExporter(ctx context.Context, endpoint string, insecureOverride bool) (sdktrace.SpanExporter, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeTelemetrySetupFailure, "invalid OTLP endpoint %q", endpoint)
	}
	if u.Host == "" {
		return nil, wrenerr.Errorf(wrenerr.CodeTelemetrySetupFailure, "invalid OTLP endpoint %q: missing host", endpoint)
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(u.Host)}
	if u.Path != "" && u.Path != "/" {
		opts = append(opts, otlptracehttp.WithURLPath(u.Path))
	}
	if insecureOverride || u.Scheme != "https" {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeTelemetrySetupFailure, "creating OTLP trace exporter")
	}
	return exporter, nil
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

func buildResource(cfg Config) (*resource.Resource, error) {
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "wren"
	}
	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(service)}
	if version := strings.TrimSpace(cfg.ServiceVersion); version != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(version))
	}
	base := resource.Default()
	schema := base.SchemaURL()
	if schema == "" {
		schema = semconv.SchemaURL
	}
	return resource.Merge(base, resource.NewWithAttributes(schema, attrs...))
}

// Tracer returns a named tracer. A nil Providers yields the global tracer.
func (p *Providers) Tracer(name string) trace.Tracer {
	if p == nil || p.TracerProvider == nil {
		return otel.Tracer(name)
	}
	return p.TracerProvider.Tracer(name)
}

// Meter returns a named meter. A nil Providers yields the global meter.
func (p *Providers) Meter(name string) metric.Meter {
	if p == nil || p.MeterProvider == nil {
		return otel.Meter(name)
	}
	return p.MeterProvider.Meter(name)
}

// SetGlobal installs the providers as the process-wide defaults.
func (p *Providers) SetGlobal() {
	if p == nil {
		return
	}
	otel.SetTracerProvider(p.TracerProvider)
	otel.SetMeterProvider(p.MeterProvider)
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if err := p.TracerProvider.Shutdown(ctx); err != nil {
		slog.Warn("telemetry: tracer shutdown", "error", err)
		errs = append(errs, err)
	}
	if err := p.MeterProvider.Shutdown(ctx); err != nil {
		slog.Warn("telemetry: meter shutdown", "error", err)
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return wrenerr.Join(errs...)
	}
	return nil
}

// EndSpan records err on span, sets its status and ends it.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
