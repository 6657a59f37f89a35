// Package tracing wires the trace side of the pipeline: the reduced-width
// id generator, the OTel tracer provider, W3C trace-context propagation,
// and the Echo middleware that carries correlation across HTTP requests.
package tracing

import (
	"context"
	"encoding/binary"
	"math/rand/v2"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ReducedIDGenerator generates trace and span ids backed by only 64 bits
// of randomness, to stay numerically compatible with implementations of
// the same protocol in other languages. The trace id keeps the 128-bit
// representation with the high 64 bits zero.
//
// math/rand/v2's top-level generator keeps per-thread state in the
// runtime, so concurrent id generation shares no lock. The all-zero id is
// reserved to mean "absent" and is never produced.
type ReducedIDGenerator struct{}

var _ sdktrace.IDGenerator = ReducedIDGenerator{}

// NewIDs returns a new trace id and span id.
func (ReducedIDGenerator) NewIDs(_ context.Context) (trace.TraceID, trace.SpanID) {
	var tid trace.TraceID
	binary.BigEndian.PutUint64(tid[8:], nonZeroUint64())
	return tid, newSpanID()
}

// NewSpanID returns a new span id within an existing trace.
func (ReducedIDGenerator) NewSpanID(_ context.Context, _ trace.TraceID) trace.SpanID {
	return newSpanID()
}

func newSpanID() trace.SpanID {
	var sid trace.SpanID
	binary.BigEndian.PutUint64(sid[:], nonZeroUint64())
	return sid
}

func nonZeroUint64() uint64 {
	for {
		if v := rand.Uint64(); v != 0 {
			return v
		}
	}
}
