// SPDX-License-Identifier: Apache-2.0

// Package telemetry wires OpenTelemetry tracing and metrics for the
// verification engine.
package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/vgmedical/casecheck"

// Setup installs OTLP gRPC trace and metric exporters. With an empty
// endpoint nothing is installed and the global no-op providers stay in
// place. The returned function flushes and stops the providers.
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, err
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	shutdown := func(ctx context.Context) error {
		return errors.Join(tracerProvider.Shutdown(ctx), meterProvider.Shutdown(ctx))
	}
	return shutdown, nil
}

// Metrics holds the engine's instruments.
type Metrics struct {
	CasesVerified      metric.Int64Counter
	CasesNeedingReview metric.Int64Counter
	ExtractionFailures metric.Int64Counter
	SupplyMatches      metric.Int64Counter
	VerificationScore  metric.Float64Histogram
	VerifyDuration     metric.Float64Histogram
}

// NewMetrics creates the instruments on the global meter provider. Call it
// after Setup.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	casesVerified, err := meter.Int64Counter(
		"casecheck.cases.verified",
		metric.WithDescription("Number of cases verified"),
	)
	if err != nil {
		return nil, err
	}

	review, err := meter.Int64Counter(
		"casecheck.cases.review",
		metric.WithDescription("Number of verified cases flagged for manual review"),
	)
	if err != nil {
		return nil, err
	}

	extraction, err := meter.Int64Counter(
		"casecheck.extraction.failures",
		metric.WithDescription("Number of documents whose text could not be extracted"),
	)
	if err != nil {
		return nil, err
	}

	matches, err := meter.Int64Counter(
		"casecheck.supplies.matches",
		metric.WithDescription("Internal supply items by reconciliation status"),
	)
	if err != nil {
		return nil, err
	}

	score, err := meter.Float64Histogram(
		"casecheck.verification.score",
		metric.WithDescription("Verification score of each case"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"casecheck.verification.duration",
		metric.WithDescription("Case verification duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		CasesVerified:      casesVerified,
		CasesNeedingReview: review,
		ExtractionFailures: extraction,
		SupplyMatches:      matches,
		VerificationScore:  score,
		VerifyDuration:     duration,
	}, nil
}

// StartSpan starts a span on the engine's tracer.
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError marks the span as failed.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
