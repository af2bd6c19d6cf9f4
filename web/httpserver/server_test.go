package httpserver

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trellis-web/trellis/config"
	"github.com/trellis-web/trellis/pkg/logger"
)

func TestAddrFromConfig(t *testing.T) {
	srv := New(config.ServerConfig{Host: "127.0.0.1", Port: 9090}, logger.Nop(), http.NotFoundHandler())
	assert.Equal(t, "127.0.0.1:9090", srv.Addr())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := config.ServerConfig{Host: "127.0.0.1", Port: 0, ReadTimeoutSec: 5, WriteTimeoutSec: 5}
	srv := New(cfg, logger.Nop(), http.NotFoundHandler())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx, time.Second)
	}()

	// Give the listener a moment to come up, then trigger shutdown.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down after context cancel")
	}
}
