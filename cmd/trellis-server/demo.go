package main

import (
	"runtime"
	"time"

	"github.com/trellis-web/trellis/async"
)

// StatusController serves /status via MVC dispatch.
type StatusController struct{}

// Index reports basic process information at GET /status.
func (*StatusController) Index() map[string]interface{} {
	return map[string]interface{}{
		"status":     "ok",
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
		"time":       time.Now().UTC().Format(time.RFC3339),
	}
}

// Uptime reports seconds since process start at GET /status/uptime.
func (*StatusController) Uptime() float64 {
	return time.Since(startTime).Seconds()
}

var startTime = time.Now()

// Clock is a small API exposed through the remoting bridge, exercising the
// plain, outcome and future return shapes over the wire.
type Clock struct{}

// Now returns the current UTC time.
func (*Clock) Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Parse validates a timestamp, failing with a reason instead of an error.
func (*Clock) Parse(value string) async.Outcome[int64, string] {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return async.Failure[int64, string]("unparseable timestamp: " + value)
	}
	return async.Success[int64, string](t.Unix())
}

// After resolves once the given number of milliseconds has elapsed.
func (*Clock) After(ms int) *async.Future[string] {
	f := async.NewFuture[string]()
	go func() {
		time.Sleep(time.Duration(ms) * time.Millisecond)
		f.Complete(time.Now().UTC().Format(time.RFC3339Nano))
	}()
	return f
}
