package logging

import (
	"encoding/binary"

	"go.opentelemetry.io/otel/trace"
)

// traceIDLow64 returns the low 64 bits of a 128-bit trace id. The backend
// consumes only the low half, decimal-encoded; the truncation direction is
// part of the wire contract.
func traceIDLow64(id trace.TraceID) uint64 {
	return binary.BigEndian.Uint64(id[8:16])
}

func spanIDUint64(id trace.SpanID) uint64 {
	return binary.BigEndian.Uint64(id[:])
}

// resolveTraceContext returns the nearest available (trace id, span id)
// pair for the span referenced by ref. ok is false when no span is active
// or no usable ids exist; absence is not an error and bare top-level
// events correctly carry no correlation fields.
//
// The current record's trace extension may already have been evicted by
// the export stage during close processing. That is an upstream ordering
// hazard, not a bug: the registry walk tolerates the failure at the
// current level and retries exactly one level up (see resolveExt). Within
// a record, the remote parent context wins when its ids are non-zero
// (context propagated in from an external caller); otherwise the ids
// assigned locally at span creation are used. This precedence is a
// documented contract to preserve.
func (l *Logger) resolveTraceContext(ref spanRef) (traceID, spanID uint64, ok bool) {
	ext := l.reg.resolveExt(ref)
	if ext == nil {
		return 0, 0, false
	}

	traceID = traceIDLow64(ext.remote.TraceID())
	if traceID == 0 {
		traceID = traceIDLow64(ext.local.TraceID())
	}
	spanID = spanIDUint64(ext.remote.SpanID())
	if spanID == 0 {
		spanID = spanIDUint64(ext.local.SpanID())
	}

	// the all-zero id is reserved to mean "absent"; never report it as a
	// valid correlation id
	if traceID == 0 || spanID == 0 {
		return 0, 0, false
	}
	return traceID, spanID, true
}
