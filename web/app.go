// Package web implements the request-execution pipeline: an application owns
// ordered lists of request middleware, request handlers, response middleware,
// log handlers and error handlers, and drives them in a fixed order against a
// per-request context with monotonic completion flags, error recovery and
// exactly-once flush.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/trellis-web/trellis/inject"
	"github.com/trellis-web/trellis/metrics"
	"github.com/trellis-web/trellis/pkg/logger"
)

// Application owns the pipeline configuration: module lists, URL filters and
// the injector. Configuration is append-only and happens before requests are
// dispatched; during execution the lists are read-only and safe to share
// across concurrent requests.
type Application struct {
	injector *inject.Injector
	log      *logger.Logger

	requestMiddleware  []RequestMiddleware
	requestHandlers    []RequestHandler
	responseMiddleware []ResponseMiddleware
	logHandlers        []LogHandler
	errorHandlers      []ErrorHandler
	urlFilters         []URLFilter

	initMu   sync.Mutex
	initDone *initState
}

// initState memoizes one Init run so concurrent and repeated callers share
// the same outcome.
type initState struct {
	done chan struct{}
	err  error
}

// NewApplication creates an application with an empty injector. The logger
// is bound into the injector so modules can declare it as a dependency.
func NewApplication(log *logger.Logger) *Application {
	if log == nil {
		log = logger.NewDefault("web")
	}
	app := &Application{
		injector: inject.New(),
		log:      log,
	}
	if err := app.injector.MapValue((*logger.Logger)(nil), log); err != nil {
		panic(fmt.Sprintf("web: bind logger: %v", err))
	}
	return app
}

// Injector exposes the application injector for configuration.
func (app *Application) Injector() *inject.Injector { return app.injector }

// InjectValue binds a value into the application injector. Chainable; a bad
// binding is a programming error and panics at configuration time.
func (app *Application) InjectValue(key, value interface{}, name ...string) *Application {
	if err := app.injector.MapValue(key, value, name...); err != nil {
		panic(fmt.Sprintf("web: %v", err))
	}
	return app
}

// InjectSingleton binds a lazily constructed singleton. Chainable.
func (app *Application) InjectSingleton(key, prototype interface{}, name ...string) *Application {
	if err := app.injector.MapSingleton(key, prototype, name...); err != nil {
		panic(fmt.Sprintf("web: %v", err))
	}
	return app
}

// InjectClass binds a transient class mapping. Chainable.
func (app *Application) InjectClass(key, prototype interface{}, name ...string) *Application {
	if err := app.injector.MapClass(key, prototype, name...); err != nil {
		panic(fmt.Sprintf("web: %v", err))
	}
	return app
}

// resolveModule fulfils a module's declared dependencies before it is
// appended to a list. Func adapters and other non-struct modules have no
// fields to fill and are appended as-is. An unresolvable dependency is a
// configuration-time programming error.
func (app *Application) resolveModule(m interface{}) {
	v := reflect.ValueOf(m)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return
	}
	if err := app.injector.InjectInto(m); err != nil {
		panic(fmt.Sprintf("web: resolve module %s: %v", moduleName(m), err))
	}
}

// AddRequestMiddleware appends request middleware. Chainable.
func (app *Application) AddRequestMiddleware(m RequestMiddleware) *Application {
	app.resolveModule(m)
	app.requestMiddleware = append(app.requestMiddleware, m)
	return app
}

// AddRequestHandler appends a request handler. Chainable.
func (app *Application) AddRequestHandler(m RequestHandler) *Application {
	app.resolveModule(m)
	app.requestHandlers = append(app.requestHandlers, m)
	return app
}

// AddResponseMiddleware appends response middleware. Chainable.
func (app *Application) AddResponseMiddleware(m ResponseMiddleware) *Application {
	app.resolveModule(m)
	app.responseMiddleware = append(app.responseMiddleware, m)
	return app
}

// AddLogHandler appends a log handler. Chainable.
func (app *Application) AddLogHandler(m LogHandler) *Application {
	app.resolveModule(m)
	app.logHandlers = append(app.logHandlers, m)
	return app
}

// AddErrorHandler appends an error handler. Chainable.
func (app *Application) AddErrorHandler(m ErrorHandler) *Application {
	app.resolveModule(m)
	app.errorHandlers = append(app.errorHandlers, m)
	return app
}

// AddURLFilter appends a URL filter applied when contexts are built.
func (app *Application) AddURLFilter(f URLFilter) *Application {
	app.urlFilters = append(app.urlFilters, f)
	return app
}

// ClearURLFilters removes all URL filters.
func (app *Application) ClearURLFilters() *Application {
	app.urlFilters = nil
	return app
}

// modules returns every registered module across all lists, in list order.
func (app *Application) modules() []interface{} {
	var all []interface{}
	for _, m := range app.requestMiddleware {
		all = append(all, m)
	}
	for _, m := range app.requestHandlers {
		all = append(all, m)
	}
	for _, m := range app.responseMiddleware {
		all = append(all, m)
	}
	for _, m := range app.logHandlers {
		all = append(all, m)
	}
	for _, m := range app.errorHandlers {
		all = append(all, m)
	}
	return all
}

// Init runs every module's Init hook. It is idempotent and memoized:
// concurrent or repeated calls share one outcome until Dispose resets it.
// Hooks are all launched immediately; the first failure wins after all of
// them settle.
func (app *Application) Init(ctx context.Context) error {
	app.initMu.Lock()
	state := app.initDone
	if state == nil {
		state = &initState{done: make(chan struct{})}
		app.initDone = state
		// Hooks run detached from the first caller's cancellation, so an
		// abandoned caller cannot poison the memoized outcome for others.
		go app.runInit(context.WithoutCancel(ctx), state)
	}
	app.initMu.Unlock()

	select {
	case <-state.done:
		return state.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (app *Application) runInit(ctx context.Context, state *initState) {
	defer close(state.done)

	var g errgroup.Group
	for _, m := range app.modules() {
		hook, ok := m.(Initializable)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := hook.Init(ctx, app); err != nil {
				return fmt.Errorf("init %s: %w", moduleName(hook), err)
			}
			return nil
		})
	}
	state.err = g.Wait()
}

// Dispose runs every module's Dispose hook, aggregates the outcome the same
// way Init does, and resets the memoized init state so a later Init re-runs.
func (app *Application) Dispose(ctx context.Context) error {
	var g errgroup.Group
	for _, m := range app.modules() {
		hook, ok := m.(Disposable)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := hook.Dispose(ctx, app); err != nil {
				return fmt.Errorf("dispose %s: %w", moduleName(hook), err)
			}
			return nil
		})
	}
	err := g.Wait()

	app.initMu.Lock()
	app.initDone = nil
	app.initMu.Unlock()
	return err
}

func middlewareStages(ms []RequestMiddleware) []namedStage {
	stages := make([]namedStage, len(ms))
	for i, m := range ms {
		stages[i] = namedStage{name: moduleName(m), run: m.RequestIn}
	}
	return stages
}

func handlerStages(ms []RequestHandler) []namedStage {
	stages := make([]namedStage, len(ms))
	for i, m := range ms {
		stages[i] = namedStage{name: moduleName(m), run: m.HandleRequest}
	}
	return stages
}

func responseStages(ms []ResponseMiddleware) []namedStage {
	stages := make([]namedStage, len(ms))
	for i, m := range ms {
		stages[i] = namedStage{name: moduleName(m), run: m.ResponseOut}
	}
	return stages
}

func logStages(ms []LogHandler) []namedStage {
	stages := make([]namedStage, len(ms))
	for i, m := range ms {
		m := m
		stages[i] = namedStage{name: moduleName(m), run: func(ctx context.Context, c *Context) error {
			return m.Log(ctx, c, c.Messages())
		}}
	}
	return stages
}

// Execute is the primary entry point: it drives the full pipeline for one
// request. Stage faults are recovered by the error-handler stage and the
// pipeline still writes logs and flushes the response; only a second fault
// after recovery surfaces as a *FatalError.
//
// A nil context is constructed fresh, mirroring offline execution.
func (app *Application) Execute(ctx context.Context, c *Context) error {
	if c == nil {
		c = NewContext(nil, nil, app.injector.Child())
	}
	defer c.runFinishers()
	c.applyURLFilters(app.urlFilters)

	if err := app.Init(ctx); err != nil {
		return fmt.Errorf("web: init: %w", err)
	}

	// Head of the pipeline: request middleware, then request handlers.
	err := executeStages(ctx, c, middlewareStages(app.requestMiddleware), RequestMiddlewareComplete)
	if err == nil {
		err = executeStages(ctx, c, handlerStages(app.requestHandlers), RequestHandlersComplete)
	}
	if err != nil {
		if ferr := app.handleError(ctx, c, err); ferr != nil {
			return ferr
		}
	}

	// Tail of the pipeline: response middleware, log handlers, flush.
	// Completion flags make a retry after recovery skip what already ran,
	// and handleError turns a second fault into a fatal return, so this
	// loop runs at most twice.
	for {
		err := app.runTail(ctx, c)
		if err == nil {
			return nil
		}
		if ferr := app.handleError(ctx, c, err); ferr != nil {
			return ferr
		}
	}
}

func (app *Application) runTail(ctx context.Context, c *Context) error {
	if err := executeStages(ctx, c, responseStages(app.responseMiddleware), ResponseMiddlewareComplete); err != nil {
		return err
	}
	if err := executeStages(ctx, c, logStages(app.logHandlers), LogHandlersComplete); err != nil {
		return err
	}
	flush := []namedStage{{name: "flush", run: func(context.Context, *Context) error {
		return c.Response.Flush()
	}}}
	return executeStages(ctx, c, flush, FlushComplete)
}

// handleError is the recovery path for stage faults.
//
// On the first fault it sets ErrorHandlersComplete before anything else so a
// re-entrant fault cannot trigger a second recovery, runs every error
// handler in registration order with no completion flag, then force-sets
// RequestHandlersComplete so the remaining pipeline resumes as if request
// handling had completed normally. A fault seen while ErrorHandlersComplete
// is already set is unrecoverable and is returned as a *FatalError.
func (app *Application) handleError(ctx context.Context, c *Context, fault error) error {
	if c.Completion.Has(ErrorHandlersComplete) {
		app.log.Errorf("unrecoverable fault after error handling: %v", fault)
		return &FatalError{Err: fault}
	}
	c.Completion.Set(ErrorHandlersComplete)

	module := c.CurrentModule()
	var stageErr *StageError
	if errors.As(fault, &stageErr) {
		module = stageErr.Module
	}
	metrics.RecordStageFault(module)
	app.log.Errorf("module %s faulted: %v", module, fault)

	stages := make([]namedStage, len(app.errorHandlers))
	for i, h := range app.errorHandlers {
		h := h
		stages[i] = namedStage{name: moduleName(h), run: func(ctx context.Context, c *Context) error {
			return h.HandleError(ctx, c, fault, module)
		}}
	}
	if err := executeStages(ctx, c, stages, 0); err != nil {
		// An error handler faulting is itself a post-recovery fault.
		return &FatalError{Err: err}
	}

	c.Completion.Set(RequestHandlersComplete)
	return nil
}

// ServeHTTP adapts the pipeline to net/http: it builds a context with a
// request-scoped child injector and drives Execute. A fatal fault maps to
// a 500 if nothing has been flushed yet.
func (app *Application) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	child := app.injector.Child()
	c := NewContext(w, r, child)
	if err := child.MapValue((*Context)(nil), c); err != nil {
		app.log.Errorf("bind context: %v", err)
	}

	if err := app.Execute(r.Context(), c); err != nil {
		app.log.Errorf("request failed: %v", err)
		if !c.Response.Flushed() {
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}
}
