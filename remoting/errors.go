// Package remoting adapts synchronous API surfaces to an asynchronous
// callback calling convention that works identically whether the real
// implementation lives in-process or behind an HTTP endpoint.
package remoting

import "fmt"

// Error is the failure variant delivered to error callbacks. It always
// carries the call string of the invocation that failed so a remote failure
// can be reconstructed without exposing raw exceptions across the boundary.
type Error interface {
	error
	// CallString identifies the failed invocation, e.g. "Calculator.Add(1,2)".
	CallString() string
}

// ServerSideError reports an exception raised inside the API
// implementation, with the stack captured where it was caught.
type ServerSideError struct {
	Call  string
	Err   error
	Stack string
}

func (e *ServerSideError) Error() string {
	return fmt.Sprintf("remoting: server-side exception in %s: %v", e.Call, e.Err)
}

// CallString implements Error.
func (e *ServerSideError) CallString() string { return e.Call }

func (e *ServerSideError) Unwrap() error { return e.Err }

// APIFailure reports the failure branch of an outcome-typed call, or an
// underlying transport error on a remote call.
type APIFailure struct {
	Call   string
	Reason interface{}
}

func (e *APIFailure) Error() string {
	return fmt.Sprintf("remoting: api failure in %s: %v", e.Call, e.Reason)
}

// CallString implements Error.
func (e *APIFailure) CallString() string { return e.Call }
