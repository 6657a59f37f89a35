package logging

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// event is a fully resolved log occurrence handed to an emitter: the
// timestamp is captured at format time, fields are already merged, and
// trace correlation (if any) is resolved.
type event struct {
	t      time.Time
	level  zerolog.Level
	target string
	msg    string
	fields *fieldSet
	caller *callerInfo

	traceID  uint64
	spanID   uint64
	hasTrace bool
}

type callerInfo struct {
	file       string
	line       int
	modulePath string
}

type emitter interface {
	emit(e *event)
}

// datadogEmitter streams one JSON object per event directly through
// zerolog's encoder, followed by exactly one newline. The key order is a
// contract with the log-correlation backend, not a convention:
//
//	timestamp, level, target, [line, file, module_path],
//	merged fields in merge order, dd.trace_id, dd.span_id
//
// dd.trace_id and dd.span_id are decimal strings of 64-bit values (the
// trace id truncated to its low 64 bits) and are omitted entirely when no
// trace context resolved.
type datadogEmitter struct {
	zl zerolog.Logger
}

func (d *datadogEmitter) emit(e *event) {
	ev := d.zl.Log()
	ev.Str("timestamp", e.t.UTC().Format(time.RFC3339))
	ev.Str("level", levelName(e.level))
	ev.Str("target", e.target)
	if e.caller != nil {
		ev.Int("line", e.caller.line)
		ev.Str("file", e.caller.file)
		ev.Str("module_path", e.caller.modulePath)
	}
	for _, k := range e.fields.keys {
		ev.RawJSON(k, e.fields.vals[k])
	}
	if e.hasTrace {
		ev.Str("dd.trace_id", strconv.FormatUint(e.traceID, 10))
		ev.Str("dd.span_id", strconv.FormatUint(e.spanID, 10))
	}
	// Send terminates the line; zerolog always writes the trailing newline
	// even when a value degraded during serialization.
	ev.Send()
}

// standardEmitter renders the pretty / json / compact formats through a
// stock zerolog logger. Merged fields are carried the same way as in the
// correlation format, but the schema here is zerolog's own and not a wire
// contract.
type standardEmitter struct {
	zl zerolog.Logger
}

func (s *standardEmitter) emit(e *event) {
	ev := s.zl.WithLevel(e.level)
	ev.Str("target", e.target)
	if e.caller != nil {
		ev.Str("caller", e.caller.file+":"+strconv.Itoa(e.caller.line))
	}
	for _, k := range e.fields.keys {
		if k == messageFieldKey {
			continue
		}
		ev.RawJSON(k, e.fields.vals[k])
	}
	if e.hasTrace {
		ev.Str("dd.trace_id", strconv.FormatUint(e.traceID, 10))
		ev.Str("dd.span_id", strconv.FormatUint(e.spanID, 10))
	}
	ev.Msg(e.msg)
}

// messageFieldKey is the key the event message occupies among the event's
// explicit fields.
const messageFieldKey = "message"

// levelName renders the severity in the upper-case form the backend
// expects.
func levelName(l zerolog.Level) string {
	return strings.ToUpper(l.String())
}
