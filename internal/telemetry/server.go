package telemetry

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ServerConfig holds the listener settings of the metrics server.
type ServerConfig struct {
	BindAddress  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Routes exposes /metrics and /healthz.
func (t *Telemetry) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(HTTPLogging)
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", t.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

// NewServer prepares the metrics server. Requests inherit ctx, and with it the logger.
func (t *Telemetry) NewServer(ctx context.Context, cfg ServerConfig) *http.Server {
	return &http.Server{
		Addr:         cfg.BindAddress,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		Handler:      t.Routes(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
