// Package router wires the demo HTTP surface: health/ready checks, the
// Prometheus /metrics endpoint, the admin cache-management API, and a demo
// endpoint running the request-cache middleware — grounded on the
// teacher's router/router.go middleware chain and route layout.
package router

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/alfreddev/cachify/config"
	"github.com/alfreddev/cachify/handler"
	"github.com/alfreddev/cachify/requestcache"
)

// New returns a configured chi Router: middleware chain, health endpoints,
// the /metrics endpoint, the admin cache API, and a demo proxied endpoint
// running the request-cache workflow in front of echoHandler. metricsHandler
// may be nil to omit /metrics.
func New(cfg *config.Config, appLogger zerolog.Logger, rc *requestcache.Middleware, admin *handler.AdminHandler, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(mwRequestLogger(appLogger))
	r.Use(mwMaxBodySize(cfg.MaxBodyBytes))

	r.Get("/healthz", handler.Health)
	r.Get("/ready", handler.Ready(nil))

	if metricsHandler != nil {
		r.Get("/metrics", metricsHandler.ServeHTTP)
	}

	r.Route("/v1/cache", func(r chi.Router) {
		r.Delete("/", admin.FlushAll)
		r.Delete("/{key}", admin.InvalidateKey)
		r.Get("/similarity/stats", admin.SimilarityStats)
	})

	r.Route("/v1/demo", func(r chi.Router) {
		r.Use(rc.Handler)
		r.Get("/*", echoHandler)
		r.Post("/*", echoHandler)
	})

	return r
}

// echoHandler is the downstream handler the demo endpoint caches the
// responses of — a stand-in for "whatever idempotent read endpoint the
// embedding application serves".
func echoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"echo":true,"path":"` + r.URL.Path + `"}`))
}

func mwMaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 4 * 1024 * 1024
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > 0 && r.ContentLength > maxBytes {
				http.Error(w, `{"error":"request_too_large"}`, http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func mwRequestLogger(appLogger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			appLogger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", chimw.GetReqID(r.Context())).
				Int("status", rw.Status()).
				Dur("duration", time.Since(start)).
				Str("bytes", strconv.Itoa(rw.BytesWritten())).
				Msg("request completed")
		})
	}
}
