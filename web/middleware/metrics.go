package middleware

import (
	"context"
	"time"

	"github.com/trellis-web/trellis/metrics"
	"github.com/trellis-web/trellis/web"
)

const startTimeKey = "metrics_start"

// Metrics records in-flight, count and duration metrics for each request.
// Register it as both request middleware (starts the timer) and response
// middleware (records the observation).
type Metrics struct{}

// ModuleName implements web.Named.
func (Metrics) ModuleName() string { return "metrics" }

// RequestIn implements web.RequestMiddleware.
func (Metrics) RequestIn(ctx context.Context, c *web.Context) error {
	metrics.IncrementInFlight()
	// The decrement must balance even when a fatal fault skips ResponseOut.
	c.OnFinish(metrics.DecrementInFlight)
	c.Set(startTimeKey, time.Now())
	return nil
}

// ResponseOut implements web.ResponseMiddleware.
func (Metrics) ResponseOut(ctx context.Context, c *web.Context) error {
	start, ok := c.Get(startTimeKey)
	if !ok {
		return nil
	}
	method, path := "", c.URL.Path
	if c.Request != nil {
		method = c.Request.Method
	}
	metrics.RecordHTTPRequest(method, path, c.Response.Status(), time.Since(start.(time.Time)))
	return nil
}
