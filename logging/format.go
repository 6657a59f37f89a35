package logging

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// Format selects the output format. It is resolved once at construction
// into a concrete emitter; no per-event dispatch on the format happens.
type Format int

const (
	// FormatJSON is plain single-line JSON output.
	FormatJSON Format = iota
	// FormatPretty is colored, multi-line human output.
	FormatPretty
	// FormatCompact is single-line human output without color.
	FormatCompact
	// FormatDatadog is the correlation JSON format: a fixed key order with
	// dd.trace_id / dd.span_id fields consumed by the trace/log backend.
	FormatDatadog
)

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "json":
		return FormatJSON, nil
	case "pretty":
		return FormatPretty, nil
	case "compact":
		return FormatCompact, nil
	case "datadog":
		return FormatDatadog, nil
	}
	return 0, fmt.Errorf("unknown log format %q (expected pretty, json, compact, or datadog)", s)
}

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatPretty:
		return "pretty"
	case FormatCompact:
		return "compact"
	case FormatDatadog:
		return "datadog"
	}
	return "unknown"
}

// newEmitter builds the concrete formatting strategy for f writing to w.
func newEmitter(f Format, w io.Writer) emitter {
	switch f {
	case FormatDatadog:
		return &datadogEmitter{zl: zerolog.New(w)}
	case FormatPretty:
		cw := zerolog.ConsoleWriter{Out: w}
		return &standardEmitter{zl: zerolog.New(cw).With().Timestamp().Logger()}
	case FormatCompact:
		cw := zerolog.ConsoleWriter{Out: w, NoColor: true}
		return &standardEmitter{zl: zerolog.New(cw).With().Timestamp().Logger()}
	default:
		return &standardEmitter{zl: zerolog.New(w).With().Timestamp().Logger()}
	}
}
