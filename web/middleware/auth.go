package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/trellis-web/trellis/web"
)

// UserIDKey is the context-data key under which the authenticated user ID
// is stored.
const UserIDKey = "user_id"

// Claims are the JWT claims recognized by the auth middleware.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Auth validates a bearer token on each request. An unauthenticated request
// is answered with 401 and the request-handler stage is skipped by setting
// its completion flag; the rest of the pipeline (logging, flush) still runs.
type Auth struct {
	secret    []byte
	skipPaths []string
}

// NewAuth creates the middleware with an HMAC secret and a set of path
// prefixes that bypass authentication (health checks, metrics).
func NewAuth(secret []byte, skipPaths []string) *Auth {
	return &Auth{secret: secret, skipPaths: skipPaths}
}

// ModuleName implements web.Named.
func (*Auth) ModuleName() string { return "auth" }

// RequestIn implements web.RequestMiddleware.
func (a *Auth) RequestIn(ctx context.Context, c *web.Context) error {
	for _, p := range a.skipPaths {
		if strings.HasPrefix(c.URL.Path, p) {
			return nil
		}
	}

	token := bearerToken(c.Request)
	if token == "" {
		return a.reject(c, "missing bearer token")
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return a.reject(c, "invalid token")
	}
	if claims.UserID == "" {
		return a.reject(c, "token has no user claim")
	}

	c.Set(UserIDKey, claims.UserID)
	return nil
}

// reject short-circuits via completion flags instead of faulting, so an auth
// failure is a normal 401 response, not an error path. Setting the
// request-middleware flag skips the rest of that list too, so no later
// middleware can overwrite the 401 or charge the request against a budget.
func (a *Auth) reject(c *web.Context, reason string) error {
	c.Warn("auth: " + reason)
	c.Response.Clear()
	c.Response.SetStatus(http.StatusUnauthorized)
	_, _ = c.Response.WriteString("unauthorized\n")
	c.Completion.Set(web.RequestMiddlewareComplete)
	c.Completion.Set(web.RequestHandlersComplete)
	return nil
}

func bearerToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// UserID returns the authenticated user ID for the request, or "".
func UserID(c *web.Context) string {
	if v, ok := c.Get(UserIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
