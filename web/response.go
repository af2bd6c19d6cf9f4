package web

import (
	"bytes"
	"net/http"
)

// Response buffers the outgoing response until the flush stage writes it to
// the underlying http.ResponseWriter in one shot. Flushing is one-way: after
// Flush, further writes are rejected.
type Response struct {
	status  int
	header  http.Header
	buf     bytes.Buffer
	flushed bool
	w       http.ResponseWriter
}

// NewResponse creates a buffered response. The writer may be nil, in which
// case Flush settles the buffer without emitting anything (used in tests and
// offline execution).
func NewResponse(w http.ResponseWriter) *Response {
	return &Response{status: http.StatusOK, header: make(http.Header), w: w}
}

// Header returns the response headers, mutable until flush.
func (r *Response) Header() http.Header { return r.header }

// Status returns the status code to be written at flush.
func (r *Response) Status() int { return r.status }

// SetStatus sets the status code written at flush.
func (r *Response) SetStatus(code int) {
	if !r.flushed {
		r.status = code
	}
}

// Write appends to the buffered body.
func (r *Response) Write(p []byte) (int, error) {
	if r.flushed {
		return 0, http.ErrBodyNotAllowed
	}
	return r.buf.Write(p)
}

// WriteString appends a string to the buffered body.
func (r *Response) WriteString(s string) (int, error) {
	return r.Write([]byte(s))
}

// Body returns the buffered body accumulated so far.
func (r *Response) Body() []byte { return r.buf.Bytes() }

// Clear discards the buffered body. Headers and status are kept.
func (r *Response) Clear() {
	if !r.flushed {
		r.buf.Reset()
	}
}

// Flushed reports whether the response has been written out.
func (r *Response) Flushed() bool { return r.flushed }

// Flush writes status, headers and body to the underlying writer exactly
// once. Subsequent calls are no-ops.
func (r *Response) Flush() error {
	if r.flushed {
		return nil
	}
	r.flushed = true
	if r.w == nil {
		return nil
	}
	for k, vs := range r.header {
		for _, v := range vs {
			r.w.Header().Add(k, v)
		}
	}
	r.w.WriteHeader(r.status)
	_, err := r.w.Write(r.buf.Bytes())
	return err
}
