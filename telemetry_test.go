package telemetry

import (
	"context"
	"testing"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ServiceName = "test"
	cfg.TracingBackend = "none"
	return cfg
}

func TestInitAndClose(t *testing.T) {
	tel, err := Init(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if tel.Logger == nil || tel.Provider == nil {
		t.Fatalf("expected initialized pipeline")
	}

	tel.Logger.Info(context.Background(), "initialized")

	if err := tel.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	// the guard releases exactly once; further calls are no-ops
	if err := tel.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestInitFailsFastOnInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.LogLevel = "loud"
	if _, err := Init(context.Background(), cfg); err == nil {
		t.Fatalf("expected init to fail on invalid level")
	}

	cfg = testConfig()
	cfg.ServiceName = ""
	cfg.TracingBackend = "otlp"
	if _, err := Init(context.Background(), cfg); err == nil {
		t.Fatalf("expected init to fail when exporting without a service name")
	}
}

func TestMiddlewareAvailableAfterInit(t *testing.T) {
	tel, err := Init(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	defer func() { _ = tel.Close(context.Background()) }()

	if tel.Middleware() == nil {
		t.Fatalf("expected middleware")
	}
}
