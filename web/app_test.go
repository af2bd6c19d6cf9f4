package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trellis-web/trellis/pkg/logger"
)

// recorder appends labels to a shared call log from every stage it runs in.
type callLog struct {
	calls []string
}

func (l *callLog) add(label string) { l.calls = append(l.calls, label) }

func newApp() *Application {
	return NewApplication(logger.Nop())
}

func mw(log *callLog, label string) RequestMiddleware {
	return RequestMiddlewareFunc(func(ctx context.Context, c *Context) error {
		log.add(label)
		return nil
	})
}

func handler(log *callLog, label string) RequestHandler {
	return RequestHandlerFunc(func(ctx context.Context, c *Context) error {
		log.add(label)
		return nil
	})
}

func respMW(log *callLog, label string) ResponseMiddleware {
	return ResponseMiddlewareFunc(func(ctx context.Context, c *Context) error {
		log.add(label)
		return nil
	})
}

func logHandler(log *callLog, label string) LogHandler {
	return LogHandlerFunc(func(ctx context.Context, c *Context, msgs []Message) error {
		log.add(label)
		return nil
	})
}

func TestStageOrderEqualsRegistrationOrder(t *testing.T) {
	log := &callLog{}
	app := newApp().
		AddRequestMiddleware(mw(log, "mw1")).
		AddRequestMiddleware(mw(log, "mw2")).
		AddRequestHandler(handler(log, "h1")).
		AddRequestHandler(handler(log, "h2")).
		AddResponseMiddleware(respMW(log, "out1")).
		AddResponseMiddleware(respMW(log, "out2")).
		AddLogHandler(logHandler(log, "log1")).
		AddLogHandler(logHandler(log, "log2"))

	require.NoError(t, app.Execute(context.Background(), nil))
	assert.Equal(t, []string{"mw1", "mw2", "h1", "h2", "out1", "out2", "log1", "log2"}, log.calls)
}

func TestPresetFlagSkipsStages(t *testing.T) {
	log := &callLog{}
	app := newApp().AddRequestHandler(handler(log, "h"))

	c := NewContext(nil, nil, nil)
	c.Completion.Set(RequestHandlersComplete)

	require.NoError(t, app.Execute(context.Background(), c))
	assert.Empty(t, log.calls, "handlers must not run when their flag is pre-set")
}

func TestEmptyListsStillSetFlagsAndFlush(t *testing.T) {
	app := newApp()
	c := NewContext(nil, nil, nil)

	require.NoError(t, app.Execute(context.Background(), c))
	for _, flag := range []CompletionFlag{
		RequestMiddlewareComplete, RequestHandlersComplete,
		ResponseMiddlewareComplete, LogHandlersComplete, FlushComplete,
	} {
		assert.True(t, c.Completion.Has(flag), "flag %s not set", flag)
	}
	assert.True(t, c.Response.Flushed())
}

// initModule counts Init/Dispose invocations.
type initModule struct {
	initCount    atomic.Int32
	disposeCount atomic.Int32
	initErr      error
}

func (m *initModule) HandleRequest(ctx context.Context, c *Context) error { return nil }

func (m *initModule) Init(ctx context.Context, app *Application) error {
	m.initCount.Add(1)
	return m.initErr
}

func (m *initModule) Dispose(ctx context.Context, app *Application) error {
	m.disposeCount.Add(1)
	return nil
}

func TestInitMemoized(t *testing.T) {
	m := &initModule{}
	app := newApp().AddRequestHandler(m)

	require.NoError(t, app.Init(context.Background()))
	require.NoError(t, app.Init(context.Background()))
	assert.Equal(t, int32(1), m.initCount.Load(), "init hooks must run once until Dispose")

	require.NoError(t, app.Dispose(context.Background()))
	assert.Equal(t, int32(1), m.disposeCount.Load())

	require.NoError(t, app.Init(context.Background()))
	assert.Equal(t, int32(2), m.initCount.Load(), "Dispose must reset the memoized init")
}

func TestInitAggregatesFirstFailure(t *testing.T) {
	ok := &initModule{}
	bad := &initModule{initErr: errors.New("bad wiring")}
	app := newApp().AddRequestHandler(ok).AddRequestHandler(bad)

	err := app.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad wiring")
	assert.Equal(t, int32(1), ok.initCount.Load(), "all hooks are launched even when one fails")

	// Execute refuses to run stages when init failed.
	execErr := app.Execute(context.Background(), nil)
	require.Error(t, execErr)
}

type namedFaultingHandler struct{ err error }

func (h *namedFaultingHandler) ModuleName() string { return "faulty" }
func (h *namedFaultingHandler) HandleRequest(ctx context.Context, c *Context) error {
	return h.err
}

func TestFaultRunsErrorHandlersAndResumesChain(t *testing.T) {
	log := &callLog{}
	var gotModule string
	var gotFault error

	app := newApp().
		AddRequestHandler(&namedFaultingHandler{err: errors.New("boom")}).
		AddRequestHandler(handler(log, "never")).
		AddResponseMiddleware(respMW(log, "out")).
		AddLogHandler(logHandler(log, "log")).
		AddErrorHandler(ErrorHandlerFunc(func(ctx context.Context, c *Context, fault error, module string) error {
			log.add("err")
			gotModule = module
			gotFault = fault
			return nil
		}))

	c := NewContext(nil, nil, nil)
	require.NoError(t, app.Execute(context.Background(), c))

	assert.Equal(t, []string{"err", "out", "log"}, log.calls,
		"error handlers run once, later handlers are skipped, and the chain resumes")
	assert.Equal(t, "faulty", gotModule)
	require.Error(t, gotFault)
	assert.Contains(t, gotFault.Error(), "boom")

	assert.True(t, c.Completion.Has(ErrorHandlersComplete))
	assert.True(t, c.Completion.Has(RequestHandlersComplete), "forced so the chain resumes")
	assert.True(t, c.Completion.Has(ResponseMiddlewareComplete))
	assert.True(t, c.Completion.Has(LogHandlersComplete))
	assert.True(t, c.Completion.Has(FlushComplete))
	assert.True(t, c.Response.Flushed(), "a faulting handler still flushes the response")
}

func TestPanicInStageIsRecovered(t *testing.T) {
	handled := false
	app := newApp().
		AddRequestHandler(RequestHandlerFunc(func(ctx context.Context, c *Context) error {
			panic("wild")
		})).
		AddErrorHandler(ErrorHandlerFunc(func(ctx context.Context, c *Context, fault error, module string) error {
			handled = true
			assert.Contains(t, fault.Error(), "panic: wild")
			return nil
		}))

	require.NoError(t, app.Execute(context.Background(), nil))
	assert.True(t, handled)
}

func TestDoubleFaultIsFatal(t *testing.T) {
	app := newApp().
		AddRequestHandler(&namedFaultingHandler{err: errors.New("first")}).
		AddLogHandler(LogHandlerFunc(func(ctx context.Context, c *Context, msgs []Message) error {
			return errors.New("second")
		}))

	c := NewContext(nil, nil, nil)
	err := app.Execute(context.Background(), c)
	require.Error(t, err)

	var fatal *FatalError
	require.True(t, errors.As(err, &fatal), "a fault after recovery must surface as fatal, got %v", err)
	assert.Contains(t, fatal.Error(), "second")
	assert.False(t, c.Response.Flushed(), "no guaranteed flush after a double fault")
}

func TestFaultingErrorHandlerIsFatal(t *testing.T) {
	app := newApp().
		AddRequestHandler(&namedFaultingHandler{err: errors.New("first")}).
		AddErrorHandler(ErrorHandlerFunc(func(ctx context.Context, c *Context, fault error, module string) error {
			return errors.New("handler broke")
		}))

	err := app.Execute(context.Background(), nil)
	var fatal *FatalError
	require.True(t, errors.As(err, &fatal))
	assert.Contains(t, fatal.Error(), "handler broke")
}

func TestTailFaultRecoversOnceAndFinishes(t *testing.T) {
	log := &callLog{}
	first := true
	app := newApp().
		AddResponseMiddleware(ResponseMiddlewareFunc(func(ctx context.Context, c *Context) error {
			if first {
				first = false
				return errors.New("transient")
			}
			log.add("out")
			return nil
		})).
		AddLogHandler(logHandler(log, "log")).
		AddErrorHandler(ErrorHandlerFunc(func(ctx context.Context, c *Context, fault error, module string) error {
			log.add("err")
			return nil
		}))

	c := NewContext(nil, nil, nil)
	require.NoError(t, app.Execute(context.Background(), c))
	assert.Equal(t, []string{"err", "out", "log"}, log.calls)
	assert.True(t, c.Response.Flushed())
}

func TestFlushSkippedWhenPreset(t *testing.T) {
	app := newApp()
	c := NewContext(nil, nil, nil)
	c.Completion.Set(FlushComplete)

	require.NoError(t, app.Execute(context.Background(), c))
	assert.False(t, c.Response.Flushed(), "pre-set FlushComplete makes flush a no-op")
}

func TestURLFiltersApplied(t *testing.T) {
	var seen string
	app := newApp().
		AddURLFilter(func(u *url.URL) {
			u.Path = strings.TrimPrefix(u.Path, "/api")
		}).
		AddRequestHandler(RequestHandlerFunc(func(ctx context.Context, c *Context) error {
			seen = c.URL.Path
			return nil
		}))

	r := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	c := NewContext(httptest.NewRecorder(), r, nil)
	require.NoError(t, app.Execute(context.Background(), c))

	assert.Equal(t, "/items", seen)
	assert.Equal(t, "/api/items", r.URL.Path, "filters must not mutate the raw request URL")
}

func TestClearURLFilters(t *testing.T) {
	app := newApp().
		AddURLFilter(func(u *url.URL) { u.Path = "/rewritten" }).
		ClearURLFilters()

	r := httptest.NewRequest(http.MethodGet, "/orig", nil)
	c := NewContext(httptest.NewRecorder(), r, nil)
	require.NoError(t, app.Execute(context.Background(), c))
	assert.Equal(t, "/orig", c.URL.Path)
}

func TestServeHTTPWritesBufferedResponse(t *testing.T) {
	app := newApp().
		AddRequestHandler(RequestHandlerFunc(func(ctx context.Context, c *Context) error {
			c.Response.SetStatus(http.StatusCreated)
			c.Response.Header().Set("Content-Type", "text/plain")
			_, err := c.Response.WriteString("made it")
			return err
		}))

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/things", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, "made it", rec.Body.String())
}

func TestServeHTTPFatalMapsTo500(t *testing.T) {
	app := newApp().
		AddRequestHandler(&namedFaultingHandler{err: errors.New("first")}).
		AddErrorHandler(ErrorHandlerFunc(func(ctx context.Context, c *Context, fault error, module string) error {
			return errors.New("second")
		}))

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// depModule declares an injected dependency to prove modules are resolved
// through the injector before being appended.
type depModule struct {
	Log *logger.Logger `inject:""`
}

func (m *depModule) HandleRequest(ctx context.Context, c *Context) error {
	if m.Log == nil {
		return errors.New("dependency missing")
	}
	return nil
}

func TestModulesResolvedThroughInjector(t *testing.T) {
	app := newApp().AddRequestHandler(&depModule{})
	require.NoError(t, app.Execute(context.Background(), nil))
}

func TestLogHandlersReceiveMessages(t *testing.T) {
	var got []Message
	app := newApp().
		AddRequestHandler(RequestHandlerFunc(func(ctx context.Context, c *Context) error {
			c.Trace("step one")
			c.Warn("careful")
			return nil
		})).
		AddLogHandler(LogHandlerFunc(func(ctx context.Context, c *Context, msgs []Message) error {
			got = msgs
			return nil
		}))

	require.NoError(t, app.Execute(context.Background(), nil))
	require.Len(t, got, 2)
	assert.Equal(t, "step one", got[0].Text)
	assert.Equal(t, MessageTrace, got[0].Type)
	assert.Equal(t, MessageWarning, got[1].Type)
	assert.NotEmpty(t, got[0].Pos.File, "messages carry their source position")
}

func TestConcurrentInitSharesOutcome(t *testing.T) {
	m := &initModule{}
	app := newApp().AddRequestHandler(m)

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() { done <- app.Init(context.Background()) }()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}
	assert.Equal(t, int32(1), m.initCount.Load())
}

func TestStageErrorFormatting(t *testing.T) {
	err := &StageError{Module: "auth", Stage: RequestMiddlewareComplete, Err: errors.New("denied")}
	assert.Contains(t, err.Error(), "auth")
	assert.Contains(t, err.Error(), "request-middleware")
	assert.True(t, errors.Is(err, err.Err) || errors.Unwrap(err) != nil)
}

func TestModuleNameFallsBackToType(t *testing.T) {
	assert.Equal(t, "faulty", moduleName(&namedFaultingHandler{}))
	assert.Equal(t, "depModule", moduleName(&depModule{}))
	assert.Equal(t, "RequestHandlerFunc",
		moduleName(RequestHandlerFunc(func(ctx context.Context, c *Context) error { return nil })))
}

func TestFinishersRunExactlyOnceOnSuccess(t *testing.T) {
	var ran int32
	app := newApp().
		AddRequestMiddleware(RequestMiddlewareFunc(func(ctx context.Context, c *Context) error {
			c.OnFinish(func() { atomic.AddInt32(&ran, 1) })
			return nil
		}))

	require.NoError(t, app.Execute(context.Background(), nil))
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestFinishersRunOnFatalFault(t *testing.T) {
	var ran int32
	app := newApp().
		AddRequestMiddleware(RequestMiddlewareFunc(func(ctx context.Context, c *Context) error {
			c.OnFinish(func() { atomic.AddInt32(&ran, 1) })
			return nil
		})).
		AddRequestHandler(&namedFaultingHandler{err: errors.New("first")}).
		AddErrorHandler(ErrorHandlerFunc(func(ctx context.Context, c *Context, fault error, module string) error {
			return errors.New("second")
		}))

	err := app.Execute(context.Background(), nil)
	var fatal *FatalError
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran),
		"finishers must run even when the tail of the pipeline is aborted")
}

// blockingInitHandler parks its Init hook until released, honouring the
// hook context so a cancellation would surface as the hook's error.
type blockingInitHandler struct {
	release chan struct{}
}

func (h *blockingInitHandler) HandleRequest(ctx context.Context, c *Context) error { return nil }

func (h *blockingInitHandler) Init(ctx context.Context, app *Application) error {
	select {
	case <-h.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestInitNotPoisonedByCancelledCaller(t *testing.T) {
	release := make(chan struct{})
	app := newApp().AddRequestHandler(&blockingInitHandler{release: release})

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() { firstErr <- app.Init(ctx) }()
	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	require.NoError(t, app.Init(context.Background()),
		"an abandoned caller's cancellation must not poison the memoized init outcome")
}
