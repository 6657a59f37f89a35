// Package logging implements the structured-log event formatter with
// distributed-trace correlation: per-event trace context resolution with
// the span-close eviction fallback, ancestor-chain field inheritance, and
// a schema-stable correlation JSON format streamed through zerolog.
//
// The pipeline for every event runs level filtering, then formatting, with
// span export handled independently by the OTel SDK batcher; a slow trace
// backend never blocks log formatting and vice versa.
package logging

import (
	"context"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Options configures a Logger. The zero value is usable: info level, JSON
// format, stdout, no tracer (spans get no exportable ids).
type Options struct {
	// Level is the minimum severity emitted. Filtering runs before any
	// formatting work.
	Level zerolog.Level

	// Format selects the output strategy, resolved once here.
	Format Format

	// Target is the default originating component name on emitted records.
	// Override per call site with WithTarget.
	Target string

	// Location includes line, file, and module_path on each record.
	Location bool

	// LogSpanClose emits a debug event when a span ends. Close events are
	// formatted after the export stage has evicted the span's trace
	// metadata, so they exercise the resolver's parent fallback.
	LogSpanClose bool

	// Out is the destination writer, typically an async sink from
	// NewAsyncWriter. Defaults to os.Stdout.
	Out io.Writer

	// Tracer backs StartSpan. Defaults to a no-op tracer.
	Tracer trace.Tracer
}

// Logger is the per-event processing pipeline. It is safe for concurrent
// use from multiple goroutines; emission is synchronous and reentrant on
// the calling goroutine up to the async sink boundary.
type Logger struct {
	level        zerolog.Level
	target       string
	location     bool
	logSpanClose bool

	reg    *registry
	tracer trace.Tracer
	emit   emitter
}

// New builds a Logger from opts.
func New(opts Options) *Logger {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("telemetry")
	}
	if opts.Target == "" {
		opts.Target = "telemetry"
	}
	return &Logger{
		level:        opts.Level,
		target:       opts.Target,
		location:     opts.Location,
		logSpanClose: opts.LogSpanClose,
		reg:          newRegistry(),
		tracer:       opts.Tracer,
		emit:         newEmitter(opts.Format, opts.Out),
	}
}

// WithTarget returns a logger emitting records with the given target name.
// The span arena and output pipeline are shared with the receiver.
func (l *Logger) WithTarget(target string) *Logger {
	cp := *l
	cp.target = target
	return &cp
}

// Trace emits a trace-level event.
func (l *Logger) Trace(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zerolog.TraceLevel, msg, fields, 3)
}

// Debug emits a debug-level event.
func (l *Logger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zerolog.DebugLevel, msg, fields, 3)
}

// Info emits an info-level event.
func (l *Logger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zerolog.InfoLevel, msg, fields, 3)
}

// Warn emits a warn-level event.
func (l *Logger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zerolog.WarnLevel, msg, fields, 3)
}

// Error emits an error-level event.
func (l *Logger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zerolog.ErrorLevel, msg, fields, 3)
}

func (l *Logger) enabled(lvl zerolog.Level) bool {
	return l.level != zerolog.Disabled && lvl >= l.level
}

func (l *Logger) log(ctx context.Context, lvl zerolog.Level, msg string, fields []Field, skip int) {
	// filter stage runs before any formatting work
	if !l.enabled(lvl) {
		return
	}

	ref := refFromContext(ctx)

	e := event{
		t:      time.Now(),
		level:  lvl,
		target: l.target,
		msg:    msg,
	}
	if l.location {
		e.caller = newCallerInfo(skip)
	}

	// the message is the first of the event's explicit fields, so event
	// fields (message included) override span fields of the same key
	ef := make([]Field, 0, len(fields)+1)
	ef = append(ef, Field{Key: messageFieldKey, Value: msg})
	ef = append(ef, fields...)

	e.fields = l.inheritedFields(ref, serializeFields(ef))
	e.traceID, e.spanID, e.hasTrace = l.resolveTraceContext(ref)

	l.emit.emit(&e)
}

// logSpanCloseEvent is the format stage's close hook, invoked by Span.End
// after the export stage has run.
func (l *Logger) logSpanCloseEvent(ref spanRef, name string) {
	if !l.enabled(zerolog.DebugLevel) {
		return
	}
	e := event{
		t:      time.Now(),
		level:  zerolog.DebugLevel,
		target: l.target,
		msg:    "close",
	}
	e.fields = l.inheritedFields(ref, serializeFields([]Field{
		{Key: messageFieldKey, Value: "close"},
		{Key: "span", Value: name},
	}))
	e.traceID, e.spanID, e.hasTrace = l.resolveTraceContext(ref)
	l.emit.emit(&e)
}

func newCallerInfo(skip int) *callerInfo {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return nil
	}
	ci := &callerInfo{file: file, line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		ci.modulePath = packagePath(fn.Name())
	}
	return ci
}

// packagePath trims a runtime function name like
// "github.com/akave-ai/telemetry/logging.(*Logger).Info" to its package
// path.
func packagePath(fn string) string {
	slash := strings.LastIndex(fn, "/")
	dot := strings.Index(fn[slash+1:], ".")
	if dot < 0 {
		return fn
	}
	return fn[:slash+1+dot]
}
