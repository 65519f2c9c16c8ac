package otel

import (
	"context"
	"sync"

	eventbus "github.com/hanpama/cascade/internal/eventbus"
	events "github.com/hanpama/cascade/internal/events"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

// Setup configures OpenTelemetry and attaches bus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(bus *eventbus.Bus, endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithInsecure()))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	sub := &subscriber{tracer: otel.Tracer("cascade")}
	sub.register(bus)

	return tp.Shutdown, nil
}

type subscriber struct {
	tracer  trace.Tracer
	txSpans sync.Map // transaction id -> trace.Span
}

func (s *subscriber) register(bus *eventbus.Bus) {
	eventbus.Subscribe(bus, func(ctx context.Context, e events.TransactionStart) {
		_, span := s.tracer.Start(ctx, "cascade.transaction")
		span.SetAttributes(attribute.String("cascade.transaction.id", e.TransactionID))
		s.txSpans.Store(e.TransactionID, span)
	})

	eventbus.Subscribe(bus, func(ctx context.Context, e events.SerializationError) {
		if v, ok := s.txSpans.Load(e.TransactionID); ok {
			v.(trace.Span).RecordError(e.Err)
		}
	})

	eventbus.Subscribe(bus, func(ctx context.Context, e events.TransactionFinish) {
		v, ok := s.txSpans.LoadAndDelete(e.TransactionID)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			attribute.Int("cascade.affected_count", e.AffectedCount),
			attribute.Int("cascade.depth", e.Depth),
			attribute.Bool("cascade.truncated", e.Truncated),
			attribute.Bool("cascade.aborted", e.Aborted),
		)
		span.End()
	})

	eventbus.Subscribe(bus, func(ctx context.Context, e events.InvalidatorError) {
		_, span := s.tracer.Start(ctx, "cascade.invalidator")
		span.RecordError(e.Err)
		span.End()
	})

	eventbus.Subscribe(bus, func(ctx context.Context, e events.ResponseBuilt) {
		_, span := s.tracer.Start(ctx, "cascade.response")
		span.SetAttributes(
			attribute.Bool("cascade.success", e.Success),
			attribute.Int("cascade.updated", e.Updated),
			attribute.Int("cascade.deleted", e.Deleted),
			attribute.Int("cascade.invalidations", e.Invalidations),
			attribute.Bool("cascade.streaming", e.Streaming),
		)
		span.End()
	})
}
