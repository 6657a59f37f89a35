package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// testLogger returns a datadog-format logger writing to buf, backed by a
// real SDK tracer with no exporter.
func testLogger(buf *bytes.Buffer, mutate ...func(*Options)) *Logger {
	tp := sdktrace.NewTracerProvider()
	opts := Options{
		Level:  zerolog.TraceLevel,
		Format: FormatDatadog,
		Target: "test",
		Out:    buf,
		Tracer: tp.Tracer("test"),
	}
	for _, m := range mutate {
		m(&opts)
	}
	return New(opts)
}

// testLoggerTo is testLogger writing to an arbitrary writer.
func testLoggerTo(w io.Writer) *Logger {
	tp := sdktrace.NewTracerProvider()
	return New(Options{
		Level:  zerolog.TraceLevel,
		Format: FormatDatadog,
		Target: "test",
		Out:    w,
		Tracer: tp.Tracer("test"),
	})
}

func lines(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()
	out := strings.TrimRight(buf.String(), "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func parseLine(t *testing.T, line string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("line is not valid JSON: %v\n%s", err, line)
	}
	return m
}

// keysInOrder returns the top-level object keys of a JSON line in their
// encoded order.
func keysInOrder(t *testing.T, line string) []string {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(line))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		t.Fatalf("expected object start, got %v (%v)", tok, err)
	}
	var keys []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			t.Fatalf("read key: %v", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			t.Fatalf("expected string key, got %v", keyTok)
		}
		keys = append(keys, key)
		skipValue(t, dec)
	}
	return keys
}

func skipValue(t *testing.T, dec *json.Decoder) {
	t.Helper()
	tok, err := dec.Token()
	if err != nil {
		t.Fatalf("read value: %v", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok || (delim != '{' && delim != '[') {
		return
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			t.Fatalf("skip value: %v", err)
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
}

func TestNoActiveSpanHasNoCorrelationKeys(t *testing.T) {
	var buf bytes.Buffer
	l := testLogger(&buf)

	l.Info(context.Background(), "standalone")

	out := lines(t, &buf)
	if len(out) != 1 {
		t.Fatalf("expected 1 line, got %d", len(out))
	}
	m := parseLine(t, out[0])
	if _, ok := m["dd.trace_id"]; ok {
		t.Fatalf("expected no dd.trace_id without an active span: %s", out[0])
	}
	if _, ok := m["dd.span_id"]; ok {
		t.Fatalf("expected no dd.span_id without an active span: %s", out[0])
	}
	if m["message"] != "standalone" {
		t.Fatalf("expected message field, got %v", m["message"])
	}
}

func TestSpanFieldInheritedByEvent(t *testing.T) {
	var buf bytes.Buffer
	l := testLogger(&buf)

	ctx, span := l.StartSpan(context.Background(), "request", String("request_id", "abc-123"))
	l.Info(ctx, "inside span")
	span.End()

	m := parseLine(t, lines(t, &buf)[0])
	if m["request_id"] != "abc-123" {
		t.Fatalf("expected request_id abc-123, got %v", m["request_id"])
	}
	if _, ok := m["dd.trace_id"]; !ok {
		t.Fatalf("expected dd.trace_id inside a span: %s", buf.String())
	}
	if _, ok := m["dd.span_id"]; !ok {
		t.Fatalf("expected dd.span_id inside a span: %s", buf.String())
	}
}

func TestInnermostSpanWinsOverOutermost(t *testing.T) {
	var buf bytes.Buffer
	l := testLogger(&buf)

	ctx, outer := l.StartSpan(context.Background(), "outer",
		String("shared", "from_outer"), String("outer_only", "yes"))
	ctx, inner := l.StartSpan(ctx, "inner",
		String("shared", "from_inner"), String("inner_only", "yes"))

	l.Info(ctx, "nested")
	inner.End()
	outer.End()

	m := parseLine(t, lines(t, &buf)[0])
	if m["shared"] != "from_inner" {
		t.Fatalf("expected inner span to win for shared, got %v", m["shared"])
	}
	if m["outer_only"] != "yes" {
		t.Fatalf("expected outer_only inherited, got %v", m["outer_only"])
	}
	if m["inner_only"] != "yes" {
		t.Fatalf("expected inner_only present, got %v", m["inner_only"])
	}
}

func TestEventFieldWinsOverSpanField(t *testing.T) {
	var buf bytes.Buffer
	l := testLogger(&buf)

	ctx, span := l.StartSpan(context.Background(), "request", String("user", "from_span"))
	l.Info(ctx, "who", String("user", "from_event"))
	span.End()

	m := parseLine(t, lines(t, &buf)[0])
	if m["user"] != "from_event" {
		t.Fatalf("expected event field to win, got %v", m["user"])
	}
}

func TestFixedKeyOrder(t *testing.T) {
	var buf bytes.Buffer
	l := testLogger(&buf)

	ctx, span := l.StartSpan(context.Background(), "request", String("request_id", "r-1"))
	l.Info(ctx, "ordered", String("extra", "v"))
	span.End()

	keys := keysInOrder(t, lines(t, &buf)[0])
	if len(keys) < 7 {
		t.Fatalf("expected at least 7 keys, got %v", keys)
	}
	for i, want := range []string{"timestamp", "level", "target"} {
		if keys[i] != want {
			t.Fatalf("key %d: expected %q, got %q (%v)", i, want, keys[i], keys)
		}
	}
	if keys[len(keys)-2] != "dd.trace_id" || keys[len(keys)-1] != "dd.span_id" {
		t.Fatalf("expected correlation keys last, got %v", keys)
	}
	// merged fields sit between the metadata and the correlation keys, in
	// merge order: span fields before event fields, message first among
	// event fields
	middle := keys[3 : len(keys)-2]
	want := []string{"request_id", "message", "extra"}
	if len(middle) != len(want) {
		t.Fatalf("expected middle keys %v, got %v", want, middle)
	}
	for i := range want {
		if middle[i] != want[i] {
			t.Fatalf("expected middle keys %v, got %v", want, middle)
		}
	}
}

func TestLevelFilterRunsBeforeFormatting(t *testing.T) {
	var buf bytes.Buffer
	l := testLogger(&buf, func(o *Options) { o.Level = zerolog.InfoLevel })

	l.Debug(context.Background(), "suppressed")
	l.Info(context.Background(), "kept")

	out := lines(t, &buf)
	if len(out) != 1 {
		t.Fatalf("expected 1 line, got %d: %v", len(out), out)
	}
	if m := parseLine(t, out[0]); m["level"] != "INFO" {
		t.Fatalf("expected INFO, got %v", m["level"])
	}
}

func TestRoundTripKeySet(t *testing.T) {
	var buf bytes.Buffer
	l := testLogger(&buf)

	ctx, span := l.StartSpan(context.Background(), "request", String("request_id", "r-1"))
	l.Info(ctx, "round trip",
		String("a", "1"), Int("b", 2), Bool("c", true), Any("d", map[string]int{"x": 1}))
	span.End()

	line := lines(t, &buf)[0]
	m := parseLine(t, line)

	reencoded, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("re-serialize: %v", err)
	}
	var m2 map[string]any
	if err := json.Unmarshal(reencoded, &m2); err != nil {
		t.Fatalf("re-parse: %v", err)
	}

	want := []string{
		"timestamp", "level", "target", "message",
		"request_id", "a", "b", "c", "d",
		"dd.trace_id", "dd.span_id",
	}
	if len(m2) != len(want) {
		t.Fatalf("expected %d keys, got %d: %v", len(want), len(m2), m2)
	}
	for _, k := range want {
		if _, ok := m2[k]; !ok {
			t.Fatalf("missing key %q in %v", k, m2)
		}
	}
}

func TestSerializeFailureDegradesLocally(t *testing.T) {
	var buf bytes.Buffer
	l := testLogger(&buf)

	l.Info(context.Background(), "bad value", Any("broken", make(chan int)), String("fine", "ok"))

	out := lines(t, &buf)
	if len(out) != 1 {
		t.Fatalf("expected 1 line, got %d", len(out))
	}
	m := parseLine(t, out[0])
	broken, ok := m["broken"].(string)
	if !ok || !strings.HasPrefix(broken, "serialize error:") {
		t.Fatalf("expected error placeholder for broken value, got %v", m["broken"])
	}
	if m["fine"] != "ok" {
		t.Fatalf("expected other fields untouched, got %v", m["fine"])
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Fatalf("expected trailing newline even after degraded value")
	}
}

func TestWithTarget(t *testing.T) {
	var buf bytes.Buffer
	l := testLogger(&buf)

	l.WithTarget("subsystem").Info(context.Background(), "named")

	if m := parseLine(t, lines(t, &buf)[0]); m["target"] != "subsystem" {
		t.Fatalf("expected target subsystem, got %v", m["target"])
	}
}

func TestLocationFields(t *testing.T) {
	var buf bytes.Buffer
	l := testLogger(&buf, func(o *Options) { o.Location = true })

	l.Info(context.Background(), "located")

	m := parseLine(t, lines(t, &buf)[0])
	file, _ := m["file"].(string)
	if !strings.HasSuffix(file, "logger_test.go") {
		t.Fatalf("expected file to point at this test, got %v", m["file"])
	}
	if line, ok := m["line"].(float64); !ok || line <= 0 {
		t.Fatalf("expected positive line, got %v", m["line"])
	}
	mod, _ := m["module_path"].(string)
	if !strings.HasSuffix(mod, "/logging") {
		t.Fatalf("expected module_path ending in /logging, got %v", m["module_path"])
	}
}

func TestFieldSetOverwriteKeepsPosition(t *testing.T) {
	fs := newFieldSet()
	fs.set("a", json.RawMessage(`1`))
	fs.set("b", json.RawMessage(`2`))
	fs.set("a", json.RawMessage(`3`))

	if len(fs.keys) != 2 || fs.keys[0] != "a" || fs.keys[1] != "b" {
		t.Fatalf("expected keys [a b], got %v", fs.keys)
	}
	if raw, _ := fs.get("a"); string(raw) != "3" {
		t.Fatalf("expected overwritten value 3, got %s", raw)
	}
}
