// Package mvc maps request URLs onto controller actions. A Dispatcher is a
// pipeline request handler that resolves a controller, invokes the action
// named by the URL with the remaining path segments as arguments, and
// encodes the result as JSON.
package mvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/trellis-web/trellis/internal/dispatch"
	"github.com/trellis-web/trellis/web"
)

// DefaultAction is invoked when the URL names a controller but no action.
const DefaultAction = "Index"

// Dispatcher routes /controller/action/args... URLs to registered
// controllers.
type Dispatcher struct {
	mu          sync.RWMutex
	controllers map[string]reflect.Type
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{controllers: make(map[string]reflect.Type)}
}

// ModuleName implements web.Named.
func (*Dispatcher) ModuleName() string { return "mvc-dispatch" }

// Register adds a controller under a URL name. The value is a prototype:
// each request is served by a fresh instance, so injected request-scoped
// dependencies never leak between concurrent requests. Registering the same
// name twice panics; routing must be unambiguous.
func (d *Dispatcher) Register(name string, controller interface{}) *Dispatcher {
	t := reflect.TypeOf(controller)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("mvc: controller %q must be a struct or pointer to struct, got %T", name, controller))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	key := strings.ToLower(name)
	if _, exists := d.controllers[key]; exists {
		panic(fmt.Sprintf("mvc: controller %q already registered", name))
	}
	d.controllers[key] = t
	return d
}

// Controllers returns the registered controller names, sorted.
func (d *Dispatcher) Controllers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.controllers))
	for name := range d.controllers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HandleRequest implements web.RequestHandler.
//
// A fresh controller instance is constructed per request and its
// injection-tagged fields are filled from the request's injector before the
// action runs, so controllers see request-scoped services and concurrent
// requests never share controller state.
func (d *Dispatcher) HandleRequest(ctx context.Context, c *web.Context) error {
	name, action, args := splitPath(c.URL.Path)
	if name == "" {
		return d.notFound(c, "no controller in path")
	}

	d.mu.RLock()
	ctrlType, ok := d.controllers[name]
	d.mu.RUnlock()
	if !ok {
		return d.notFound(c, "unknown controller "+name)
	}

	controller := reflect.New(ctrlType).Interface()
	if err := c.Injector.InjectInto(controller); err != nil {
		return fmt.Errorf("mvc: inject controller %s: %w", name, err)
	}

	callArgs := make([]interface{}, len(args))
	for i, a := range args {
		callArgs[i] = a
	}
	result, err := dispatch.Call(ctx, controller, action, callArgs)
	if err != nil {
		if errors.Is(err, dispatch.ErrUnknownMethod) {
			return d.notFound(c, "unknown action "+action)
		}
		return err
	}

	if result == nil {
		return nil
	}
	c.Response.Header().Set("Content-Type", "application/json")
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("mvc: encode result: %w", err)
	}
	_, err = c.Response.Write(body)
	return err
}

// notFound answers 404 without faulting the pipeline.
func (d *Dispatcher) notFound(c *web.Context, reason string) error {
	c.Trace("mvc: " + reason)
	c.Response.SetStatus(http.StatusNotFound)
	_, _ = c.Response.WriteString("not found\n")
	return nil
}

// splitPath maps /widgets/show/42 onto ("widgets", "Show", ["42"]).
// A missing action selects DefaultAction.
func splitPath(path string) (controller, action string, args []string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "", "", nil
	}
	controller = strings.ToLower(parts[0])
	action = DefaultAction
	if len(parts) > 1 && parts[1] != "" {
		action = exportName(parts[1])
	}
	if len(parts) > 2 {
		args = parts[2:]
	}
	return controller, action, args
}

// exportName capitalizes a URL segment into a Go method name.
func exportName(segment string) string {
	if segment == "" {
		return segment
	}
	return strings.ToUpper(segment[:1]) + segment[1:]
}
