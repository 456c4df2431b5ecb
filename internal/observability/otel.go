// Package observability configures OpenTelemetry tracing for the process.
// Traces cover the ops HTTP surface (via otelgin) and every GORM query (via
// the gorm opentelemetry plugin installed at DB open).
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"google.golang.org/grpc/credentials"

	"github.com/osokin/go-group-warden/internal/config"
)

// Constructor seams, replaceable in tests.
var (
	newOTLPClient = otlptracegrpc.NewClient

	newOTLPExporterFn = func(ctx context.Context, client otlptrace.Client) (*otlptrace.Exporter, error) {
		return otlptrace.New(ctx, client)
	}

	newServiceResourceFn = func(ctx context.Context, serviceName, version string) (*resource.Resource, error) {
		return resource.New(
			ctx,
			resource.WithAttributes(
				semconv.ServiceName(serviceName),
				semconv.ServiceVersion(version),
			),
		)
	}
)

// SetupOTel installs a global tracer provider per the configuration and
// returns its shutdown function. With tracing disabled the returned shutdown
// is a no-op and no exporter is constructed.
func SetupOTel(ctx context.Context, cfg config.OTELConfig, version string) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		creds := credentials.NewClientTLSFromCert(nil, "")
		opts = append(opts, otlptracegrpc.WithTLSCredentials(creds))
	}

	client := newOTLPClient(opts...)
	exp, err := newOTLPExporterFn(ctx, client)
	if err != nil {
		return nil, err
	}

	res, err := newServiceResourceFn(ctx, cfg.ServiceName, version)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return tp.Shutdown, nil
}
