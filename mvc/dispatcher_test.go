package mvc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trellis-web/trellis/inject"
	"github.com/trellis-web/trellis/web"
)

type widgetStore interface {
	Name(id int) string
}

type memStore struct{}

func (memStore) Name(id int) string { return "widget" }

type widgetsController struct {
	Store widgetStore `inject:""`
}

type widget struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (wc *widgetsController) Index() []widget {
	return []widget{{ID: 1, Name: wc.Store.Name(1)}}
}

func (wc *widgetsController) Show(id int) (widget, error) {
	if id <= 0 {
		return widget{}, errors.New("bad id")
	}
	return widget{ID: id, Name: wc.Store.Name(id)}, nil
}

func (wc *widgetsController) Ping() {}

func dispatchRequest(t *testing.T, d *Dispatcher, target string) *web.Context {
	t.Helper()
	inj := inject.New()
	require.NoError(t, inj.MapValue((*widgetStore)(nil), memStore{}))

	r := httptest.NewRequest(http.MethodGet, target, nil)
	c := web.NewContext(httptest.NewRecorder(), r, inj)
	err := d.HandleRequest(context.Background(), c)
	require.NoError(t, err)
	return c
}

func TestDispatchDefaultAction(t *testing.T) {
	d := NewDispatcher().Register("widgets", &widgetsController{})
	c := dispatchRequest(t, d, "/widgets")

	var got []widget
	require.NoError(t, json.Unmarshal(c.Response.Body(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "widget", got[0].Name)
	assert.Equal(t, "application/json", c.Response.Header().Get("Content-Type"))
}

func TestDispatchActionWithArgs(t *testing.T) {
	d := NewDispatcher().Register("widgets", &widgetsController{})
	c := dispatchRequest(t, d, "/widgets/show/42")

	var got widget
	require.NoError(t, json.Unmarshal(c.Response.Body(), &got))
	assert.Equal(t, 42, got.ID)
}

func TestDispatchVoidActionWritesNothing(t *testing.T) {
	d := NewDispatcher().Register("widgets", &widgetsController{})
	c := dispatchRequest(t, d, "/widgets/ping")
	assert.Empty(t, c.Response.Body())
	assert.Equal(t, http.StatusOK, c.Response.Status())
}

func TestDispatchUnknownControllerIs404(t *testing.T) {
	d := NewDispatcher()
	c := dispatchRequest(t, d, "/gadgets")
	assert.Equal(t, http.StatusNotFound, c.Response.Status())
}

func TestDispatchUnknownActionIs404(t *testing.T) {
	d := NewDispatcher().Register("widgets", &widgetsController{})
	c := dispatchRequest(t, d, "/widgets/explode")
	assert.Equal(t, http.StatusNotFound, c.Response.Status())
}

func TestDispatchActionErrorFaults(t *testing.T) {
	d := NewDispatcher().Register("widgets", &widgetsController{})

	inj := inject.New()
	require.NoError(t, inj.MapValue((*widgetStore)(nil), memStore{}))
	r := httptest.NewRequest(http.MethodGet, "/widgets/show/0", nil)
	c := web.NewContext(httptest.NewRecorder(), r, inj)

	err := d.HandleRequest(context.Background(), c)
	require.Error(t, err, "a controller error is a stage fault handled by the pipeline")
}

func TestRegisterDuplicatePanics(t *testing.T) {
	d := NewDispatcher().Register("widgets", &widgetsController{})
	assert.Panics(t, func() { d.Register("Widgets", &widgetsController{}) })
}

func TestDispatchThroughPipeline(t *testing.T) {
	d := NewDispatcher().Register("widgets", &widgetsController{})

	app := web.NewApplication(nil)
	app.InjectValue((*widgetStore)(nil), memStore{})
	app.AddRequestHandler(d)

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets/show/7", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var got widget
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 7, got.ID)
}

type requestTag struct {
	id      string
	entered chan struct{}
	release chan struct{}
}

type echoController struct {
	Tag *requestTag `inject:""`
}

// Index parks inside the action so a second request can be dispatched while
// this one is still in flight, then reports which dependency it was given.
func (e *echoController) Index() string {
	close(e.Tag.entered)
	<-e.Tag.release
	return e.Tag.id
}

func TestConcurrentDispatchKeepsInjectedStateIsolated(t *testing.T) {
	d := NewDispatcher().Register("echo", &echoController{})

	dispatch := func(tag *requestTag) chan string {
		inj := inject.New()
		require.NoError(t, inj.MapValue((*requestTag)(nil), tag))
		r := httptest.NewRequest(http.MethodGet, "/echo", nil)
		c := web.NewContext(httptest.NewRecorder(), r, inj)

		body := make(chan string, 1)
		go func() {
			assert.NoError(t, d.HandleRequest(context.Background(), c))
			body <- string(c.Response.Body())
		}()
		return body
	}

	tagA := &requestTag{id: "A", entered: make(chan struct{}), release: make(chan struct{})}
	tagB := &requestTag{id: "B", entered: make(chan struct{}), release: make(chan struct{})}

	// Request A reaches its action, then request B is dispatched and runs to
	// completion while A is still parked.
	bodyA := dispatch(tagA)
	<-tagA.entered
	bodyB := dispatch(tagB)
	<-tagB.entered
	close(tagB.release)
	assert.JSONEq(t, `"B"`, <-bodyB)

	close(tagA.release)
	assert.JSONEq(t, `"A"`, <-bodyA, "request A must observe its own dependency, not request B's")
}
