package web

// CompletionFlag marks a pipeline stage category as finished for a request.
type CompletionFlag uint8

const (
	// RequestMiddlewareComplete is set after all request middleware ran.
	RequestMiddlewareComplete CompletionFlag = 1 << iota
	// RequestHandlersComplete is set after all request handlers ran, or is
	// force-set by error recovery so the remaining pipeline resumes.
	RequestHandlersComplete
	// ResponseMiddlewareComplete is set after all response middleware ran.
	ResponseMiddlewareComplete
	// LogHandlersComplete is set after all log handlers ran.
	LogHandlersComplete
	// ErrorHandlersComplete is set when error recovery starts; a fault seen
	// while it is set is fatal.
	ErrorHandlersComplete
	// FlushComplete is set once the response has been flushed.
	FlushComplete
)

func (f CompletionFlag) String() string {
	switch f {
	case RequestMiddlewareComplete:
		return "request-middleware"
	case RequestHandlersComplete:
		return "request-handlers"
	case ResponseMiddlewareComplete:
		return "response-middleware"
	case LogHandlersComplete:
		return "log-handlers"
	case ErrorHandlersComplete:
		return "error-handlers"
	case FlushComplete:
		return "flush"
	}
	return "unknown"
}

// CompletionFlags is a monotonic set of stage markers. Flags can be set and
// queried but never cleared within a request's lifetime.
type CompletionFlags struct {
	bits uint8
}

// Has reports whether the flag has been set.
func (s *CompletionFlags) Has(flag CompletionFlag) bool {
	return s.bits&uint8(flag) != 0
}

// Set marks the flag. Setting an already-set flag is a no-op.
func (s *CompletionFlags) Set(flag CompletionFlag) {
	s.bits |= uint8(flag)
}
