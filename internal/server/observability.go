package server

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type Observability struct {
	Tracer oteltrace.Tracer
	Meter  metric.Meter

	traceProvider *sdktrace.TracerProvider
	UploadCounter metric.Int64Counter
	ParseDuration metric.Int64Histogram
	CacheLookups  metric.Int64Counter
	ScoreUpdates  metric.Int64Counter
}

func SetupObservability(ctx context.Context, cfg ObservabilityConfig) (*Observability, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "garak-board"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}
	sampler := sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	if cfg.OTLPEndpoint != "" {
		exporter, exportErr := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if exportErr != nil {
			return nil, fmt.Errorf("create otlp trace exporter: %w", exportErr)
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler),
		)
	} else {
		slog.Info("otel trace exporter not configured; using local tracer provider")
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	meter := otel.Meter(serviceName)
	tracer := otel.Tracer(serviceName)
	uploadCounter, _ := meter.Int64Counter("report_upload_total")
	parseDuration, _ := meter.Int64Histogram("report_parse_duration_ms")
	cacheLookups, _ := meter.Int64Counter("report_cache_lookup_total")
	scoreUpdates, _ := meter.Int64Counter("report_score_update_total")
	return &Observability{
		Tracer:        tracer,
		Meter:         meter,
		traceProvider: tp,
		UploadCounter: uploadCounter,
		ParseDuration: parseDuration,
		CacheLookups:  cacheLookups,
		ScoreUpdates:  scoreUpdates,
	}, nil
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.traceProvider == nil {
		return nil
	}
	return o.traceProvider.Shutdown(ctx)
}

func (o *Observability) MarkUpload(ctx context.Context, result string) {
	if o == nil {
		return
	}
	o.UploadCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}

func (o *Observability) MarkParse(ctx context.Context, kind string, durationMS int64) {
	if o == nil {
		return
	}
	o.ParseDuration.Record(ctx, durationMS, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

func (o *Observability) MarkCacheLookup(ctx context.Context, hit bool) {
	if o == nil {
		return
	}
	o.CacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("hit", hit),
	))
}

func (o *Observability) MarkScoreUpdate(ctx context.Context, result string) {
	if o == nil {
		return
	}
	o.ScoreUpdates.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}
