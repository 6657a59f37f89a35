package tracing

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/akave-ai/telemetry/logging"
)

// Middleware returns Echo middleware that wraps each request in a span.
// Inbound trace context is extracted from the request headers before the
// handler runs, so the request span joins the correlation id it received
// or mints a new one. The same context is injected into the response
// headers before the handler can write the body, so callers always see the
// id their request participated in.
func Middleware(p *Provider, logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			ctx := p.FromHeaders(req.Context(), req.Header)
			ctx, span := logger.StartSpan(ctx, req.Method+" "+c.Path(),
				logging.String("request_id", uuid.NewString()),
				logging.String("method", req.Method),
				logging.String("path", req.URL.Path),
			)
			defer span.End()

			// response headers must be set before the handler writes the body
			p.ToHeaders(ctx, c.Response().Header())

			c.SetRequest(req.WithContext(ctx))
			err := next(c)
			if err != nil {
				span.RecordError(err)
			}
			return err
		}
	}
}
