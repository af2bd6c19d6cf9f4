package web

import "context"

// RequestMiddleware runs before request handlers; typical uses are request
// IDs, authentication, rate limiting and request rewriting.
type RequestMiddleware interface {
	RequestIn(ctx context.Context, c *Context) error
}

// RequestHandler produces the response for a request; controllers and static
// content handlers implement this.
type RequestHandler interface {
	HandleRequest(ctx context.Context, c *Context) error
}

// ResponseMiddleware runs after request handlers and may rewrite the buffered
// response before it is flushed.
type ResponseMiddleware interface {
	ResponseOut(ctx context.Context, c *Context) error
}

// LogHandler consumes the messages accumulated on the context during the
// logging stage.
type LogHandler interface {
	Log(ctx context.Context, c *Context, messages []Message) error
}

// ErrorHandler is invoked once per request at most, with the fault and the
// name of the module that raised it.
type ErrorHandler interface {
	HandleError(ctx context.Context, c *Context, fault error, module string) error
}

// Initializable is the optional lifecycle hook run by Application.Init.
type Initializable interface {
	Init(ctx context.Context, app *Application) error
}

// Disposable is the optional lifecycle hook run by Application.Dispose.
type Disposable interface {
	Dispose(ctx context.Context, app *Application) error
}

// Named lets a module pick the label used in diagnostics and error payloads.
// Modules that do not implement it are labelled by their Go type.
type Named interface {
	ModuleName() string
}

// RequestMiddlewareFunc adapts a function to RequestMiddleware.
type RequestMiddlewareFunc func(ctx context.Context, c *Context) error

// RequestIn implements RequestMiddleware.
func (f RequestMiddlewareFunc) RequestIn(ctx context.Context, c *Context) error { return f(ctx, c) }

// RequestHandlerFunc adapts a function to RequestHandler.
type RequestHandlerFunc func(ctx context.Context, c *Context) error

// HandleRequest implements RequestHandler.
func (f RequestHandlerFunc) HandleRequest(ctx context.Context, c *Context) error { return f(ctx, c) }

// ResponseMiddlewareFunc adapts a function to ResponseMiddleware.
type ResponseMiddlewareFunc func(ctx context.Context, c *Context) error

// ResponseOut implements ResponseMiddleware.
func (f ResponseMiddlewareFunc) ResponseOut(ctx context.Context, c *Context) error { return f(ctx, c) }

// LogHandlerFunc adapts a function to LogHandler.
type LogHandlerFunc func(ctx context.Context, c *Context, messages []Message) error

// Log implements LogHandler.
func (f LogHandlerFunc) Log(ctx context.Context, c *Context, messages []Message) error {
	return f(ctx, c, messages)
}

// ErrorHandlerFunc adapts a function to ErrorHandler.
type ErrorHandlerFunc func(ctx context.Context, c *Context, fault error, module string) error

// HandleError implements ErrorHandler.
func (f ErrorHandlerFunc) HandleError(ctx context.Context, c *Context, fault error, module string) error {
	return f(ctx, c, fault, module)
}
