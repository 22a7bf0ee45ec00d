package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/0xc0d3d00d/klinearchive/internal/fetcher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes metrics and health endpoints for the lifetime of a batch run.
type Server struct {
	srv *http.Server
}

type Option func(*options)

type options struct {
	progress func() fetcher.Progress
}

// WithProgress adds the batch progress to the readiness response.
func WithProgress(fn func() fetcher.Progress) Option {
	return func(o *options) {
		o.progress = fn
	}
}

func New(ctx context.Context, address string, gatherer prometheus.Gatherer, opts ...Option) *Server {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Liveness and readiness checks
	mux.HandleFunc("/healthz", healthZHandleFunc())
	mux.HandleFunc("/readyz", readyZHandleFunc(ctx, o.progress))

	srv := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       1 * time.Minute,
		WriteTimeout:      1 * time.Minute,
		MaxHeaderBytes:    16 * 1024, // 16KiB
		BaseContext: func(listener net.Listener) context.Context {
			return ctx
		},
	}

	return &Server{
		srv: srv,
	}
}

func (s *Server) Serve(l net.Listener) error {
	return s.srv.Serve(l)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

var (
	statusHealthy    = []byte(`{"status":"HEALTHY"}`)
	statusNotServing = []byte(`{"status":"NOT_SERVING"}`)
	statusServing    = []byte(`{"status":"SERVING"}`)
)

type readyStatus struct {
	Status   string            `json:"status"`
	Progress *fetcher.Progress `json:"progress,omitempty"`
}

func readyZHandleFunc(ctx context.Context, progress func() fetcher.Progress) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Content-Type", "application/json")
		if ctx.Err() != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write(statusNotServing)
			return
		}
		if progress == nil {
			w.WriteHeader(http.StatusOK)
			w.Write(statusServing)
			return
		}

		p := progress()
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(readyStatus{Status: "SERVING", Progress: &p})
	}
}

func healthZHandleFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(statusHealthy)
	}
}
