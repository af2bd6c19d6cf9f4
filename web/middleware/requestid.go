// Package middleware provides pipeline modules for common request and
// response concerns: trace IDs, access logging, metrics, JWT auth, rate
// limiting and CORS.
package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/trellis-web/trellis/web"
)

// TraceIDKey is the context-data key under which the trace ID is stored.
const TraceIDKey = "trace_id"

const traceIDHeader = "X-Trace-ID"

// RequestID assigns each request a trace ID, reusing the inbound
// X-Trace-ID header when present, and echoes it on the response.
type RequestID struct{}

// ModuleName implements web.Named.
func (RequestID) ModuleName() string { return "request-id" }

// RequestIn implements web.RequestMiddleware.
func (RequestID) RequestIn(ctx context.Context, c *web.Context) error {
	traceID := ""
	if c.Request != nil {
		traceID = c.Request.Header.Get(traceIDHeader)
	}
	if traceID == "" {
		traceID = uuid.NewString()
	}
	c.Set(TraceIDKey, traceID)
	c.Response.Header().Set(traceIDHeader, traceID)
	return nil
}

// TraceID returns the trace ID assigned to the request, or "".
func TraceID(c *web.Context) string {
	if v, ok := c.Get(TraceIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
