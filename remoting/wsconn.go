package remoting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WSResolver resolves endpoints over one shared websocket connection to the
// remoting bridge. Calls are serialized on the connection; each call sends
// one message and reads one response.
type WSResolver struct {
	url string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSResolver creates a resolver that dials lazily on first call.
func NewWSResolver(url string) *WSResolver {
	return &WSResolver{url: url}
}

// Close shuts the underlying connection, if open.
func (r *WSResolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}

// Resolve implements ConnectionResolver.
func (r *WSResolver) Resolve(endpoint string) Connection {
	return &wsConnection{resolver: r, endpoint: endpoint}
}

// roundTrip performs one call over the shared socket under the lock.
func (r *WSResolver) roundTrip(payload []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		conn, _, err := websocket.DefaultDialer.Dial(r.url, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", r.url, err)
		}
		r.conn = conn
	}

	if err := r.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		r.dropLocked()
		return nil, fmt.Errorf("write: %w", err)
	}
	_, raw, err := r.conn.ReadMessage()
	if err != nil {
		r.dropLocked()
		return nil, fmt.Errorf("read: %w", err)
	}
	return raw, nil
}

func (r *WSResolver) dropLocked() {
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
}

type wsConnection struct {
	resolver *WSResolver
	endpoint string
	onError  func(error)
}

func (c *wsConnection) SetErrorHandler(h func(error)) { c.onError = h }

// Call implements Connection.
func (c *wsConnection) Call(ctx context.Context, args []interface{}, onResponse func(raw []byte)) {
	payload, err := json.Marshal(callRequest{Method: c.endpoint, Args: args})
	if err != nil {
		c.fail(fmt.Errorf("encode call: %w", err))
		return
	}

	type result struct {
		raw []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		raw, err := c.resolver.roundTrip(payload)
		done <- result{raw: raw, err: err}
	}()

	select {
	case <-ctx.Done():
		c.fail(ctx.Err())
	case res := <-done:
		if res.err != nil {
			c.fail(fmt.Errorf("call %s: %w", c.endpoint, res.err))
			return
		}
		onResponse(res.raw)
	}
}

func (c *wsConnection) fail(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}

// WSHandler upgrades HTTP requests to websocket sessions served by the
// remoting bridge: each inbound message is one call request, answered with
// one response document.
type WSHandler struct {
	bridge   *Handler
	upgrader websocket.Upgrader
}

// NewWSHandler wraps a bridge with a websocket transport.
func NewWSHandler(bridge *Handler) *WSHandler {
	return &WSHandler{bridge: bridge}
}

// ServeHTTP implements http.Handler.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var req callRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			_ = conn.WriteJSON(map[string]interface{}{"status": "error", "message": "malformed call request"})
			continue
		}

		doc := h.bridge.invokeToDocument(r.Context(), req)
		if err := conn.WriteJSON(doc); err != nil {
			return
		}
	}
}
