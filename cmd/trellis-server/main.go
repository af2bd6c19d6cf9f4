// Package main runs a trellis application server: the staged request
// pipeline with MVC dispatch mounted behind a mux router, alongside the
// remoting bridge (HTTP and websocket transports) and Prometheus metrics.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/trellis-web/trellis/config"
	"github.com/trellis-web/trellis/metrics"
	"github.com/trellis-web/trellis/mvc"
	"github.com/trellis-web/trellis/pkg/logger"
	"github.com/trellis-web/trellis/remoting"
	"github.com/trellis-web/trellis/web"
	"github.com/trellis-web/trellis/web/httpserver"
	"github.com/trellis-web/trellis/web/middleware"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (optional)")
	flag.Parse()

	cfg := config.LoadOrDefault(*configPath)
	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}).WithComponent("trellis-server")

	app := buildApplication(cfg, log)

	bridge := remoting.NewHandler(log.WithComponent("remoting")).
		Register(&Clock{})

	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	router.Handle(cfg.Remoting.Path, bridge).Methods(http.MethodPost)
	router.Handle(cfg.Remoting.Path+"/ws", remoting.NewWSHandler(bridge))
	router.PathPrefix("/").Handler(app)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Init(ctx); err != nil {
		log.Errorf("application init failed: %v", err)
		os.Exit(1)
	}
	defer func() {
		disposeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Dispose(disposeCtx); err != nil {
			log.Errorf("application dispose: %v", err)
		}
	}()

	srv := httpserver.New(cfg.Server, log, router)
	shutdownTimeout := time.Duration(cfg.Server.ShutdownSec) * time.Second
	if err := srv.Run(ctx, shutdownTimeout); err != nil {
		log.Errorf("server error: %v", err)
		os.Exit(1)
	}
}

// buildApplication assembles the staged pipeline: request middleware in
// front, MVC dispatch as the request handler, metrics and access logging
// behind.
func buildApplication(cfg *config.Config, log *logger.Logger) *web.Application {
	dispatcher := mvc.NewDispatcher().
		Register("status", &StatusController{})

	app := web.NewApplication(log).
		AddRequestMiddleware(middleware.RequestID{}).
		AddRequestMiddleware(middleware.Metrics{}).
		AddRequestMiddleware(middleware.NewCORS(nil))

	if cfg.Auth.Enabled {
		app.AddRequestMiddleware(middleware.NewAuth([]byte(cfg.Auth.Secret), cfg.Auth.SkipPaths))
	}
	if cfg.Limits.RequestsPerSecond > 0 {
		app.AddRequestMiddleware(middleware.NewRateLimiter(cfg.Limits.RequestsPerSecond, cfg.Limits.Burst))
	}

	return app.
		AddRequestHandler(dispatcher).
		AddResponseMiddleware(middleware.Metrics{}).
		AddLogHandler(&middleware.AccessLog{})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
