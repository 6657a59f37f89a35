package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Backend selects where spans are exported.
type Backend string

const (
	// BackendOTLP exports spans over OTLP gRPC to a collector or agent.
	BackendOTLP Backend = "otlp"
	// BackendStdout pretty-prints spans to stdout, for development.
	BackendStdout Backend = "stdout"
	// BackendNone assigns ids locally but exports nothing.
	BackendNone Backend = "none"
)

// ParseBackend parses a backend name.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case BackendOTLP, BackendStdout, BackendNone:
		return Backend(s), nil
	}
	return "", fmt.Errorf("unknown tracing backend %q (expected otlp, stdout, or none)", s)
}

// ProviderOptions configures NewProvider.
type ProviderOptions struct {
	// Backend selects the span exporter. Defaults to BackendStdout.
	Backend Backend

	// Endpoint is the OTLP receiver address (host:port) for BackendOTLP.
	Endpoint string

	// Insecure disables TLS on the OTLP connection.
	Insecure bool

	// ServiceName identifies the service on exported spans.
	ServiceName string

	// Environment names the deployment environment on exported spans.
	Environment string
}

// Provider owns the tracer provider and the propagator for one pipeline.
// It replaces ambient global state: callers hold the Provider, pass its
// Tracer to the log pipeline, and call Shutdown through the telemetry
// guard. Nothing here touches the otel global registry.
type Provider struct {
	tp   *sdktrace.TracerProvider
	prop propagation.TextMapPropagator
}

// NewProvider builds a tracer provider with the reduced-width id
// generator, an always-on sampler, and the exporter selected by
// opts.Backend. With BackendNone the provider still assigns ids (so log
// correlation works) but registers no exporter.
func NewProvider(ctx context.Context, opts ProviderOptions) (*Provider, error) {
	if opts.Backend == "" {
		opts.Backend = BackendStdout
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", opts.ServiceName),
		attribute.String("deployment.environment", opts.Environment),
	)

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithIDGenerator(ReducedIDGenerator{}),
	}

	switch opts.Backend {
	case BackendOTLP:
		grpcOpts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(opts.Endpoint),
		}
		if opts.Insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, grpcOpts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))

	case BackendStdout:
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))

	case BackendNone:
		// ids only, no export stage

	default:
		return nil, fmt.Errorf("unknown tracing backend %q", opts.Backend)
	}

	return &Provider{
		tp: sdktrace.NewTracerProvider(tpOpts...),
		prop: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}, nil
}

// Tracer returns the tracer that backs span creation in the log pipeline.
func (p *Provider) Tracer() trace.Tracer {
	return p.tp.Tracer("github.com/akave-ai/telemetry")
}

// Shutdown drains pending spans and stops the provider. The caller bounds
// the wait through ctx.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.tp.ForceFlush(ctx); err != nil {
		// keep going: a flush timeout must not leave the provider running
		shutdownErr := p.tp.Shutdown(ctx)
		if shutdownErr != nil {
			return fmt.Errorf("flush: %v; shutdown: %w", err, shutdownErr)
		}
		return fmt.Errorf("flush: %w", err)
	}
	return p.tp.Shutdown(ctx)
}
