package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/propagation"
)

// FromHeaders extracts a remote trace context from incoming HTTP headers
// (W3C traceparent/tracestate and baggage) and returns a context carrying
// it. Spans started from the returned context participate in the caller's
// trace.
func (p *Provider) FromHeaders(ctx context.Context, headers http.Header) context.Context {
	return p.prop.Extract(ctx, propagation.HeaderCarrier(headers))
}

// ToHeaders injects the trace context active in ctx into outgoing HTTP
// headers, so downstream services join the same trace.
func (p *Provider) ToHeaders(ctx context.Context, headers http.Header) {
	p.prop.Inject(ctx, propagation.HeaderCarrier(headers))
}

// MapCarrier adapts a plain string map to the propagation carrier
// interface, for non-HTTP transports such as message queues.
type MapCarrier map[string]string

// Get returns the value for a key.
func (c MapCarrier) Get(key string) string { return c[key] }

// Set sets a key-value pair.
func (c MapCarrier) Set(key, value string) { c[key] = value }

// Keys returns all keys in the carrier.
func (c MapCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// FromMap extracts a remote trace context from a string map.
func (p *Provider) FromMap(ctx context.Context, carrier map[string]string) context.Context {
	return p.prop.Extract(ctx, MapCarrier(carrier))
}

// ToMap injects the active trace context into a string map, allocating one
// if carrier is nil.
func (p *Provider) ToMap(ctx context.Context, carrier map[string]string) map[string]string {
	if carrier == nil {
		carrier = make(map[string]string)
	}
	p.prop.Inject(ctx, MapCarrier(carrier))
	return carrier
}
