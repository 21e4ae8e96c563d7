package main

import (
	"net/http"
	"net/http/pprof"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-grocery/internal/audit"
	"github.com/noah-isme/backend-grocery/internal/catalog"
	"github.com/noah-isme/backend-grocery/internal/common"
	"github.com/noah-isme/backend-grocery/internal/discount"
	"github.com/noah-isme/backend-grocery/internal/health"
	"github.com/noah-isme/backend-grocery/internal/obs"
	"github.com/noah-isme/backend-grocery/internal/ratelimit"
	"github.com/noah-isme/backend-grocery/internal/security"
	"github.com/noah-isme/backend-grocery/internal/stores"
)

// server bundles the handlers and middleware the router is assembled from.
type server struct {
	Logger         zerolog.Logger
	HTTPMetrics    *obs.HTTPMetrics
	Tracing        bool
	MetricsEnabled bool
	AllowedOrigins []string
	Headers        security.Headers
	BodyLimit      security.BodyLimit
	AdminKey       security.AdminKey
	RateLimit      ratelimit.Handler
	Idem           common.Idem
	Health         health.Handler
	Stores         *stores.Handler
	Discounts      *discount.Handler
	Audit          audit.HTTPRecorder
	AuditLogs      audit.Handler
	PprofEnabled   bool
	PprofUser      string
	PprofPass      string
}

func (s server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if s.MetricsEnabled && s.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: s.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: s.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(s.AllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", security.AdminKeyHeader, "X-Request-ID"},
		ExposedHeaders:   []string{"X-Total-Count", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(s.Headers.Middleware)

	if s.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if s.PprofEnabled {
		r.Route("/debug/pprof", func(p chi.Router) {
			p.Use(security.BasicAuth(s.PprofUser, s.PprofPass))
			p.HandleFunc("/", pprof.Index)
			p.HandleFunc("/cmdline", pprof.Cmdline)
			p.HandleFunc("/profile", pprof.Profile)
			p.HandleFunc("/symbol", pprof.Symbol)
			p.HandleFunc("/trace", pprof.Trace)
			p.Handle("/{profile}", http.HandlerFunc(pprof.Index))
		})
	}

	r.Get("/health/live", s.Health.Live)
	r.Get("/health/ready", s.Health.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(s.BodyLimit.Middleware)

		v.Get("/categories/icons", catalog.IconsHandler)
		v.Get("/categories/{key}/icon", catalog.IconHandler)

		v.Get("/stores/nearest", s.Stores.Nearest)
		v.Get("/stores/nearby", s.Stores.Nearby)

		v.Group(func(priced chi.Router) {
			priced.Use(s.RateLimit.Middleware)
			priced.Post("/discounts/{id}/evaluate", s.Discounts.Evaluate)
			priced.Post("/products/{productId}/best-discount", s.Discounts.BestForProduct)
		})

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(s.AdminKey.Middleware)
			admin.Get("/audit-logs", s.AuditLogs.List)
			admin.Route("/discounts", func(d chi.Router) {
				d.Get("/", s.Discounts.List)
				d.With(s.Audit.Middleware(audit.HTTPConfig{Action: "discount.create", ResourceType: "discount"})).
					Post("/", s.Discounts.Create)
				d.Get("/{id}", s.Discounts.Get)
				d.With(s.Audit.Middleware(audit.HTTPConfig{Action: "discount.update", ResourceType: "discount", ResourceIDParam: "id"})).
					Put("/{id}", s.Discounts.Update)
				d.With(s.Idem.Middleware, s.Audit.Middleware(audit.HTTPConfig{Action: "discount.redeem", ResourceType: "discount", ResourceIDParam: "id"})).
					Post("/{id}/redeem", s.Discounts.Redeem)
			})
		})
	})
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
