package web

import (
	"net/http"
	"net/url"

	"github.com/trellis-web/trellis/inject"
)

// URLFilter rewrites the request URL seen by the pipeline. Filters run in
// registration order when the context is built.
type URLFilter func(u *url.URL)

// Context is the per-request mutable record threaded through every pipeline
// stage. It is never shared between requests; all mutation happens on the
// request's sequential stage chain, so no locking is needed.
type Context struct {
	// Request is the inbound HTTP request. May be nil for offline execution.
	Request *http.Request
	// Response is the buffered outgoing response.
	Response *Response
	// Injector resolves request-scoped services; a child of the
	// application's injector.
	Injector *inject.Injector
	// URL is the request URL after URL filters have been applied.
	URL *url.URL

	// Completion records which stage categories have finished.
	Completion CompletionFlags

	messages      []Message
	currentModule string
	data          map[string]interface{}
	finishers     []func()
	finished      bool
}

// NewContext builds a request context. Either argument may be nil; callers
// executing the pipeline outside an HTTP server pass nil for both.
func NewContext(w http.ResponseWriter, r *http.Request, injector *inject.Injector) *Context {
	if injector == nil {
		injector = inject.New()
	}
	c := &Context{
		Request:  r,
		Response: NewResponse(w),
		Injector: injector,
	}
	if r != nil {
		u := *r.URL
		c.URL = &u
	} else {
		c.URL = &url.URL{Path: "/"}
	}
	return c
}

// applyURLFilters runs each filter against the context URL in order.
func (c *Context) applyURLFilters(filters []URLFilter) {
	for _, f := range filters {
		f(c.URL)
	}
}

// OnFinish registers f to run exactly once when pipeline execution for this
// context ends, whatever the outcome. Modules use it to release per-request
// resources that must be balanced even when a fatal fault aborts the tail of
// the pipeline.
func (c *Context) OnFinish(f func()) {
	c.finishers = append(c.finishers, f)
}

// runFinishers runs registered finishers in reverse registration order.
// Safe to call more than once; only the first call runs them.
func (c *Context) runFinishers() {
	if c.finished {
		return
	}
	c.finished = true
	for i := len(c.finishers) - 1; i >= 0; i-- {
		c.finishers[i]()
	}
}

// Set stores a request-scoped value, e.g. an authenticated user ID or a
// stage timestamp shared between a middleware pair.
func (c *Context) Set(key string, value interface{}) {
	if c.data == nil {
		c.data = make(map[string]interface{})
	}
	c.data[key] = value
}

// Get returns a request-scoped value stored with Set.
func (c *Context) Get(key string) (interface{}, bool) {
	v, ok := c.data[key]
	return v, ok
}

// CurrentModule names the module most recently entered by the executor.
// Used for diagnostics in error payloads.
func (c *Context) CurrentModule() string { return c.currentModule }

// Messages returns the trace records accumulated so far.
func (c *Context) Messages() []Message { return c.messages }

// AddMessage appends a trace record for the log handlers.
func (c *Context) AddMessage(m Message) {
	c.messages = append(c.messages, m)
}

// Trace records a trace-severity message at the caller's position.
func (c *Context) Trace(text string) {
	c.messages = append(c.messages, Message{Text: text, Pos: callerPos(), Type: MessageTrace})
}

// Log records a log-severity message at the caller's position.
func (c *Context) Log(text string) {
	c.messages = append(c.messages, Message{Text: text, Pos: callerPos(), Type: MessageLog})
}

// Warn records a warning-severity message at the caller's position.
func (c *Context) Warn(text string) {
	c.messages = append(c.messages, Message{Text: text, Pos: callerPos(), Type: MessageWarning})
}

// Error records an error-severity message at the caller's position.
func (c *Context) Error(text string) {
	c.messages = append(c.messages, Message{Text: text, Pos: callerPos(), Type: MessageError})
}
