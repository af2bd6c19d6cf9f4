package middleware

import (
	"context"
	"net/http"

	"github.com/trellis-web/trellis/web"
)

// CORS handles cross-origin request headers and answers preflight requests
// without running the handler stage.
type CORS struct {
	allowedOrigins []string
	allowAll       bool
}

// NewCORS creates the middleware. Passing "*" allows any origin.
func NewCORS(allowedOrigins []string) *CORS {
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
			break
		}
	}
	return &CORS{allowedOrigins: allowedOrigins, allowAll: allowAll}
}

// ModuleName implements web.Named.
func (*CORS) ModuleName() string { return "cors" }

// RequestIn implements web.RequestMiddleware.
func (m *CORS) RequestIn(ctx context.Context, c *web.Context) error {
	if c.Request == nil {
		return nil
	}
	origin := c.Request.Header.Get("Origin")
	if origin == "" {
		return nil
	}

	if m.allowAll || m.isAllowed(origin) {
		h := c.Response.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Trace-ID")
	}

	if c.Request.Method == http.MethodOptions {
		c.Response.SetStatus(http.StatusNoContent)
		c.Completion.Set(web.RequestMiddlewareComplete)
		c.Completion.Set(web.RequestHandlersComplete)
	}
	return nil
}

func (m *CORS) isAllowed(origin string) bool {
	for _, o := range m.allowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}
