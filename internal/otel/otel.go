package otel

import (
	"context"
	"sync"

	eventbus "github.com/hanpama/graphsync/internal/eventbus"
	events "github.com/hanpama/graphsync/internal/events"
	runid "github.com/hanpama/graphsync/internal/runid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
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

	unsubscribe := Subscribe(tp.Tracer("graphsync"))
	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

// Subscribe records sourcing runs and remote operations as spans of tracer.
// Remote spans are children of the span of the run they belong to.
func Subscribe(tracer trace.Tracer) (unsubscribe func()) {
	s := &subscriber{tracer: tracer}
	return s.register()
}

type subscriber struct {
	tracer      trace.Tracer
	syncSpans   sync.Map // run id -> trace.Span
	remoteSpans sync.Map // seq -> trace.Span
}

func (s *subscriber) register() func() {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.SyncStart) {
			rid, _ := runid.FromContext(ctx)
			_, span := s.tracer.Start(ctx, "graphsync.source_nodes")
			span.SetAttributes(
				attribute.String("graphsync.run_id", rid),
				attribute.String("graphsync.mode", e.Mode),
				attribute.Int("graphsync.types", e.Types),
			)
			s.syncSpans.Store(rid, span)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.SyncFinish) {
			rid, _ := runid.FromContext(ctx)
			v, ok := s.syncSpans.LoadAndDelete(rid)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(
				attribute.Int("graphsync.nodes.created", e.Created),
				attribute.Int("graphsync.nodes.updated", e.Updated),
				attribute.Int("graphsync.nodes.deleted", e.Deleted),
				attribute.Int("graphsync.nodes.unchanged", e.Unchanged),
			)
			if e.Err != nil {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, e.Err.Error())
			}
			span.End()
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.RemoteStart) {
			parent := ctx
			if rid, ok := runid.FromContext(ctx); ok {
				if v, ok := s.syncSpans.Load(rid); ok {
					parent = trace.ContextWithSpan(ctx, v.(trace.Span))
				}
			}
			_, span := s.tracer.Start(parent, "graphql.remote", trace.WithSpanKind(trace.SpanKindClient))
			span.SetAttributes(
				attribute.String("graphql.operation.name", e.OperationName),
				attribute.String("server.address", e.Endpoint),
			)
			s.remoteSpans.Store(e.Seq, span)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.RemoteFinish) {
			v, ok := s.remoteSpans.LoadAndDelete(e.Seq)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(
				semconv.HTTPStatusCodeKey.Int(e.StatusCode),
				attribute.Int("graphql.error_count", e.ErrorCount),
			)
			if e.Err != nil {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, e.Err.Error())
			}
			span.End()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
