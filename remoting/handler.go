package remoting

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/trellis-web/trellis/metrics"
	"github.com/trellis-web/trellis/pkg/logger"
)

// callRequest is the wire form of one invocation.
type callRequest struct {
	Method string        `json:"method"` // "TypeName.methodName"
	Args   []interface{} `json:"args"`
}

// Handler is the server-side remoting bridge: an HTTP handler that
// dispatches wire calls to registered API implementations through the same
// local-mode proxy the server could use directly.
type Handler struct {
	mu   sync.RWMutex
	apis map[string]*Proxy
	log  *logger.Logger
}

// NewHandler creates an empty bridge.
func NewHandler(log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewDefault("remoting")
	}
	return &Handler{apis: make(map[string]*Proxy), log: log}
}

// Register exposes an API implementation under its type name.
func (h *Handler) Register(api interface{}) *Handler {
	proxy := NewLocalProxy(api)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.apis[proxy.Name()] = proxy
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed call request", http.StatusBadRequest)
		return
	}

	apiName, _, ok := splitEndpoint(req.Method)
	if !ok {
		http.Error(w, "malformed method, want TypeName.methodName", http.StatusBadRequest)
		return
	}

	h.mu.RLock()
	_, found := h.apis[apiName]
	h.mu.RUnlock()
	if !found {
		metrics.RecordRemotingCall(apiName, "unknown")
		http.Error(w, "unknown api "+apiName, http.StatusNotFound)
		return
	}

	doc := h.invokeToDocument(r.Context(), req)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		h.log.Errorf("encode remoting response: %v", err)
	}
}

// invokeToDocument dispatches one wire call and renders the response
// document shared by all transports.
func (h *Handler) invokeToDocument(ctx context.Context, req callRequest) map[string]interface{} {
	apiName, method, ok := splitEndpoint(req.Method)
	if !ok {
		return map[string]interface{}{"status": "error", "message": "malformed method, want TypeName.methodName"}
	}

	h.mu.RLock()
	proxy, found := h.apis[apiName]
	h.mu.RUnlock()
	if !found {
		metrics.RecordRemotingCall(apiName, "unknown")
		return map[string]interface{}{"status": "error", "message": "unknown api " + apiName}
	}

	var doc map[string]interface{}
	proxy.Call(ctx, method, req.Args,
		func(result interface{}) {
			doc = map[string]interface{}{"status": "ok", "result": result}
			metrics.RecordRemotingCall(apiName, "ok")
		},
		func(err Error) {
			switch e := err.(type) {
			case *APIFailure:
				doc = map[string]interface{}{"status": "failure", "reason": e.Reason}
				metrics.RecordRemotingCall(apiName, "failure")
			case *ServerSideError:
				h.log.Errorf("server-side exception in %s: %v", e.Call, e.Err)
				doc = map[string]interface{}{
					"status":  "error",
					"call":    e.Call,
					"message": e.Err.Error(),
					"stack":   e.Stack,
				}
				metrics.RecordRemotingCall(apiName, "error")
			default:
				doc = map[string]interface{}{"status": "error", "call": err.CallString(), "message": err.Error()}
				metrics.RecordRemotingCall(apiName, "error")
			}
		})
	return doc
}

func splitEndpoint(endpoint string) (api, method string, ok bool) {
	i := strings.LastIndex(endpoint, ".")
	if i <= 0 || i == len(endpoint)-1 {
		return "", "", false
	}
	return endpoint[:i], endpoint[i+1:], true
}
