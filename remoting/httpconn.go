package remoting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPResolver resolves endpoints against a single remoting bridge URL,
// issuing one POST per call.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPResolver creates a resolver for a bridge mounted at baseURL.
func NewHTTPResolver(baseURL string, timeout time.Duration) *HTTPResolver {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Resolve implements ConnectionResolver.
func (r *HTTPResolver) Resolve(endpoint string) Connection {
	return &httpConnection{resolver: r, endpoint: endpoint}
}

type httpConnection struct {
	resolver *HTTPResolver
	endpoint string
	onError  func(error)
}

func (c *httpConnection) SetErrorHandler(h func(error)) { c.onError = h }

func (c *httpConnection) fail(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}

// Call implements Connection over a single HTTP POST.
func (c *httpConnection) Call(ctx context.Context, args []interface{}, onResponse func(raw []byte)) {
	body, err := json.Marshal(callRequest{Method: c.endpoint, Args: args})
	if err != nil {
		c.fail(fmt.Errorf("encode call: %w", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolver.baseURL, bytes.NewReader(body))
	if err != nil {
		c.fail(fmt.Errorf("build request: %w", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.resolver.client.Do(req)
	if err != nil {
		c.fail(fmt.Errorf("call %s: %w", c.endpoint, err))
		return
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.fail(fmt.Errorf("read response: %w", err))
		return
	}
	if resp.StatusCode != http.StatusOK {
		c.fail(fmt.Errorf("call %s: HTTP %d: %s", c.endpoint, resp.StatusCode, bytes.TrimSpace(raw)))
		return
	}
	onResponse(raw)
}
