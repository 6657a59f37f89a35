// Package telemetry initializes the full telemetry pipeline in one call:
// structured logging with trace correlation, span export, and HTTP
// propagation middleware. Init returns a handle whose Close acts as the
// shutdown guard, flushing buffered log lines and draining the trace
// exporter with bounded waits.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/akave-ai/telemetry/logging"
	"github.com/akave-ai/telemetry/tracing"
)

// Telemetry is an initialized pipeline. It holds everything Init wired
// together; there is no ambient global state, so multiple pipelines can
// coexist (useful in tests).
type Telemetry struct {
	// Logger is the application log pipeline.
	Logger *logging.Logger

	// Provider owns the tracer and propagator behind Logger's spans.
	Provider *tracing.Provider

	sink    io.WriteCloser
	diag    zerolog.Logger
	timeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// Init builds the pipeline from cfg. Configuration errors fail fast and
// nothing is left partially initialized. Log output goes to stdout through
// a bounded async sink; the library's own diagnostics (drop alerts,
// shutdown warnings) go to stderr.
func Init(ctx context.Context, cfg Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	backend, err := tracing.ParseBackend(cfg.TracingBackend)
	if err != nil {
		return nil, err
	}
	policy, err := logging.ParseOverflowPolicy(cfg.WriterPolicy)
	if err != nil {
		return nil, err
	}

	diag := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	provider, err := tracing.NewProvider(ctx, tracing.ProviderOptions{
		Backend:     backend,
		Endpoint:    cfg.TracingEndpoint,
		Insecure:    cfg.TracingInsecure,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	sink := logging.NewAsyncWriter(os.Stdout, logging.WriterOptions{
		Size:   cfg.WriterSize,
		Policy: policy,
		OnDrop: func(missed int) {
			diag.Warn().Int("missed", missed).Msg("log sink overflow, lines dropped")
		},
		OnError: func(err error) {
			diag.Warn().Err(err).Msg("log sink write failed")
		},
	})

	target := cfg.ServiceName
	if target == "" {
		target = "telemetry"
	}
	logger := logging.New(logging.Options{
		Level:        level,
		Format:       format,
		Target:       target,
		Location:     cfg.LogLocation,
		LogSpanClose: cfg.LogSpanClose,
		Out:          sink,
		Tracer:       provider.Tracer(),
	})

	return &Telemetry{
		Logger:   logger,
		Provider: provider,
		sink:     sink,
		diag:     diag,
		timeout:  time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second,
	}, nil
}

// Middleware returns Echo middleware wiring request spans to this
// pipeline.
func (t *Telemetry) Middleware() echo.MiddlewareFunc {
	return tracing.Middleware(t.Provider, t.Logger)
}

// Close is the shutdown guard: it runs exactly once no matter how often it
// is called. It first flushes any buffered log lines, then drains and
// shuts down the trace exporter, each with a bounded wait. Partial failure
// is reported through the returned error and the stderr diagnostics, but
// never prevents process exit.
func (t *Telemetry) Close(ctx context.Context) error {
	t.closeOnce.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t.timeout)
			defer cancel()
		}

		var errs []error
		if err := closeWithContext(ctx, t.sink); err != nil {
			errs = append(errs, fmt.Errorf("flush log sink: %w", err))
		}
		if err := t.Provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
		if len(errs) > 0 {
			t.closeErr = fmt.Errorf("telemetry shutdown errors: %v", errs)
			t.diag.Warn().Err(t.closeErr).Msg("telemetry shutdown incomplete")
		}
	})
	return t.closeErr
}

// closeWithContext bounds a Close call that has no context of its own.
func closeWithContext(ctx context.Context, c io.Closer) error {
	done := make(chan error, 1)
	go func() { done <- c.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
