package remoting

import (
	"context"
	"errors"

	"github.com/tidwall/gjson"
)

// Connection is a transport channel to one named remote endpoint.
type Connection interface {
	// Call issues the invocation and hands the raw response document to
	// onResponse. Transport failures go to the registered error handler.
	Call(ctx context.Context, args []interface{}, onResponse func(raw []byte))
	// SetErrorHandler registers the sink for transport-level failures.
	SetErrorHandler(func(error))
}

// ConnectionResolver yields the connection for an endpoint name of the form
// "TypeName.methodName".
type ConnectionResolver interface {
	Resolve(endpoint string) Connection
}

// NewRemoteProxy creates a proxy whose calls travel through resolved
// connections. The response document uses the same return-type-driven
// unwrapping as local mode, so callers cannot tell the modes apart.
func NewRemoteProxy(name string, resolver ConnectionResolver) *Proxy {
	return &Proxy{name: name, c: &remoteCaller{name: name, resolver: resolver}}
}

type remoteCaller struct {
	name     string
	resolver ConnectionResolver
}

func (r *remoteCaller) invoke(ctx context.Context, method string, args []interface{}, onResult ResultFunc, onError ErrorFunc) {
	call := CallString(r.name, method, args)

	conn := r.resolver.Resolve(r.name + "." + method)
	if conn == nil {
		onError(&APIFailure{Call: call, Reason: errors.New("no connection for endpoint")})
		return
	}

	conn.SetErrorHandler(func(err error) {
		onError(&APIFailure{Call: call, Reason: err})
	})
	conn.Call(ctx, args, func(raw []byte) {
		unwrapResponse(call, raw, onResult, onError)
	})
}

// unwrapResponse maps a response document onto the success or error
// callback. Documents carry a status of ok, failure (outcome failure
// branch) or error (server-side exception).
func unwrapResponse(call string, raw []byte, onResult ResultFunc, onError ErrorFunc) {
	switch gjson.GetBytes(raw, "status").String() {
	case "ok":
		onResult(gjson.GetBytes(raw, "result").Value())
	case "failure":
		onError(&APIFailure{Call: call, Reason: gjson.GetBytes(raw, "reason").Value()})
	case "error":
		remoteCall := gjson.GetBytes(raw, "call").String()
		if remoteCall == "" {
			remoteCall = call
		}
		onError(&ServerSideError{
			Call:  remoteCall,
			Err:   errors.New(gjson.GetBytes(raw, "message").String()),
			Stack: gjson.GetBytes(raw, "stack").String(),
		})
	default:
		onError(&APIFailure{Call: call, Reason: errors.New("malformed remoting response")})
	}
}
