package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lexlink/internal/platform/config"
	"lexlink/internal/platform/metrics"
	"lexlink/internal/platform/middleware"
	"lexlink/pkg/platform/httputil"
)

const healthCheckTimeout = 2 * time.Second

type routeRegistrar interface {
	Register(r chi.Router)
}

type routerDeps struct {
	cfg          config.Server
	logger       *slog.Logger
	metrics      *metrics.Metrics
	limiter      *middleware.RateLimiter
	proxies      *middleware.ProxyTrust
	jwtValidator middleware.JWTValidator
	health       func(ctx context.Context) map[string]error
	handlers     []routeRegistrar
}

// newRouter applies the middleware chain. Order matters: request metadata is
// resolved before the rate limiter reads the client IP, and authentication
// only wraps the API group.
func newRouter(d routerDeps) chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(d.logger))
	r.Use(middleware.RequestTime)
	r.Use(d.proxies.ClientMetadata)
	r.Use(middleware.Logger(d.logger, d.metrics))

	r.Get("/health", healthHandler(d.health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(api chi.Router) {
		api.Use(d.limiter.Handler)
		api.Use(chimw.Timeout(d.cfg.RequestTimeout))
		api.Use(chimw.AllowContentType("application/json"))
		api.Use(middleware.RequireAuth(d.jwtValidator, d.logger))
		for _, h := range d.handlers {
			h.Register(api)
		}
	})
	return r
}

func healthHandler(check func(ctx context.Context) map[string]error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		status := http.StatusOK
		deps := map[string]string{}
		for name, err := range check(ctx) {
			deps[name] = "ok"
			if err != nil {
				deps[name] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{
			"status":       overall,
			"dependencies": deps,
		})
	}
}
