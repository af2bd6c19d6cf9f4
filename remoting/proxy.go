package remoting

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"

	"github.com/trellis-web/trellis/async"
	"github.com/trellis-web/trellis/internal/dispatch"
)

// ResultFunc receives the success payload of a call. Void calls deliver nil.
type ResultFunc func(result interface{})

// ErrorFunc receives the failure variant of a call.
type ErrorFunc func(err Error)

// caller is the mode-specific execution strategy behind a Proxy.
type caller interface {
	invoke(ctx context.Context, method string, args []interface{}, onResult ResultFunc, onError ErrorFunc)
}

// Proxy is the asynchronous stand-in for an API: every method of the
// original surface becomes a Call taking a success callback and an optional
// error callback instead of returning a value.
type Proxy struct {
	name string
	c    caller
}

// Name returns the API name used in endpoints and call strings.
func (p *Proxy) Name() string { return p.name }

// Call invokes a method asynchronously. Either callback may be nil; a nil
// error callback swallows failures, mirroring the fire-and-forget style of
// client code that only cares about success.
func (p *Proxy) Call(ctx context.Context, method string, args []interface{}, onResult ResultFunc, onError ErrorFunc) {
	if onResult == nil {
		onResult = func(interface{}) {}
	}
	if onError == nil {
		onError = func(Error) {}
	}
	p.c.invoke(ctx, method, args, onResult, onError)
}

// apiName derives the default API name from the implementation type.
func apiName(api interface{}) string {
	t := reflect.TypeOf(api)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return fmt.Sprintf("%T", api)
	}
	return t.Name()
}

// NewLocalProxy creates a proxy co-located with the real implementation.
// Synchronous results invoke the success callback synchronously; futures and
// outcomes are settled before their callback fires.
func NewLocalProxy(api interface{}) *Proxy {
	name := apiName(api)
	return &Proxy{name: name, c: &localCaller{api: api, name: name}}
}

// localCaller dispatches by reflection against the in-process API value.
type localCaller struct {
	api  interface{}
	name string
}

func (l *localCaller) invoke(ctx context.Context, method string, args []interface{}, onResult ResultFunc, onError ErrorFunc) {
	call := CallString(l.name, method, args)

	result, err := l.safeCall(ctx, call, method, args)
	if err != nil {
		var remErr Error
		if errors.As(err, &remErr) {
			onError(remErr)
		} else {
			onError(&ServerSideError{Call: call, Err: err, Stack: string(debug.Stack())})
		}
		return
	}
	deliver(ctx, call, result, onResult, onError)
}

// safeCall runs the reflection dispatch with panic containment so a raised
// local exception reaches the error callback instead of unwinding the caller.
func (l *localCaller) safeCall(ctx context.Context, call, method string, args []interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			perr, ok := r.(error)
			if !ok {
				perr = fmt.Errorf("%v", r)
			}
			err = &ServerSideError{Call: call, Err: perr, Stack: string(debug.Stack())}
		}
	}()
	return dispatch.Call(ctx, l.api, method, args)
}

// deliver applies the return-type-driven mapping: futures are awaited,
// outcomes branch to the matching callback, everything else (including void)
// is a success payload.
func deliver(ctx context.Context, call string, result interface{}, onResult ResultFunc, onError ErrorFunc) {
	if resolved, err, isFuture := async.Await(ctx, result); isFuture {
		if err != nil {
			onError(&ServerSideError{Call: call, Err: err, Stack: string(debug.Stack())})
			return
		}
		result = resolved
	}

	if success, payload, isOutcome := async.Match(result); isOutcome {
		if success {
			onResult(payload)
		} else {
			onError(&APIFailure{Call: call, Reason: payload})
		}
		return
	}

	onResult(result)
}
