package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls the loopback surface's CORS and rate-limit posture.
// Both default to permissive settings appropriate for a local emulator
// talking only to its own embedded runtime.
type Config struct {
	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	RateLimitDisabled  bool
}

// DefaultConfig mirrors the emulator's trust model: the loopback surface is
// bound to 127.0.0.1 and talks only to the host's own child runtime, so CORS
// is wide open and rate limiting exists only as a backstop against a runaway
// worker, not as a security boundary.
func DefaultConfig() Config {
	return Config{
		CORSAllowedOrigins: []string{"*"},
		RateLimitRequests:  1000,
		RateLimitWindow:    time.Minute,
	}
}

// New builds the full loopback HTTP surface (spec §4.5): per-product routes
// over gw, a Prometheus endpoint, and the CORS/rate-limit/recovery
// middleware stack.
func New(gw *Gateway, cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "PUT", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         86400,
	}))
	if !cfg.RateLimitDisabled {
		r.Use(httprate.Limit(cfg.RateLimitRequests, cfg.RateLimitWindow, httprate.WithKeyFuncs(httprate.KeyByIP)))
	}

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	h := &handlers{gw: gw}

	r.Route("/kv/{namespace}/values/{key}", func(r chi.Router) {
		r.Get("/", h.kvGet)
		r.Put("/", h.kvPut)
		r.Delete("/", h.kvDelete)
	})
	r.Get("/kv/{namespace}/keys", h.kvList)

	r.Route("/r2/{bucket}/objects/{key}", func(r chi.Router) {
		r.Get("/", h.r2Get)
		r.Put("/", h.r2Put)
		r.Delete("/", h.r2Delete)
	})
	r.Get("/r2/{bucket}/objects", h.r2List)
	r.Post("/r2/{bucket}/multipart/{key}", h.r2CreateMultipart)
	r.Put("/r2/{bucket}/multipart/{key}/{uploadId}/{partNumber}", h.r2UploadPart)
	r.Post("/r2/{bucket}/multipart/{key}/{uploadId}/complete", h.r2CompleteMultipart)
	r.Delete("/r2/{bucket}/multipart/{key}/{uploadId}", h.r2AbortMultipart)

	r.Route("/cache/{cacheKey}", func(r chi.Router) {
		r.Get("/", h.cacheMatch)
		r.Put("/", h.cachePut)
		r.Delete("/", h.cacheDelete)
	})

	r.Post("/queues/{queue}/message", h.queueSendMessage)
	r.Post("/queues/{queue}/batch", h.queueSendBatch)

	r.Post("/d1/{database}/query", h.relationalQuery)
	r.Post("/d1/{database}/batch", h.relationalBatch)

	r.Get("/sites/*", h.sitesServe)

	return r
}
