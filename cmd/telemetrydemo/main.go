package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/akave-ai/telemetry"
	"github.com/akave-ai/telemetry/logging"
)

func main() {
	// .env is optional; real environments set variables directly
	_ = godotenv.Load()

	cfg, err := telemetry.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	tel, err := telemetry.Init(ctx, *cfg)
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if err := tel.Close(context.Background()); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	logger := tel.Logger

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover(), tel.Middleware())

	e.GET("/hello", func(c echo.Context) error {
		rctx := c.Request().Context()

		logger.Info(rctx, "handling hello")

		// nested span demonstrating field inheritance
		wctx, span := logger.StartSpan(rctx, "lookup_greeting",
			logging.String("greeting_source", "static"))
		logger.Debug(wctx, "resolved greeting", logging.String("greeting", "hello"))
		span.End()

		return c.JSON(http.StatusOK, map[string]string{"greeting": "hello"})
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	port := os.Getenv("DEMO_PORT")
	if port == "" {
		port = "8080"
	}
	if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("server exited: %v", err)
		os.Exit(1)
	}
}
