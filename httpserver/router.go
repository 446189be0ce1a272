/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsefit/aithrottle/httpserver/middleware"
	"github.com/pulsefit/aithrottle/log"
	"github.com/pulsefit/aithrottle/restapi"
)

// DefaultErrorDomain is the domain of error responses.
const DefaultErrorDomain = "aithrottle"

// RouterOpts represents options for creating chi.Router.
type RouterOpts struct {
	Limiter        LimiterController
	ErrorDomain    string
	HealthCheck    HealthCheckContext
	MetricsHandler http.Handler
}

// NewRouter creates a new chi.Router with the status routes and without middlewares.
func NewRouter(logger log.FieldLogger, opts RouterOpts) chi.Router {
	router := chi.NewRouter()
	configureRouter(router, logger, opts)
	return router
}

func configureRouter(router chi.Router, logger log.FieldLogger, opts RouterOpts) {
	if opts.ErrorDomain == "" {
		opts.ErrorDomain = DefaultErrorDomain
	}

	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Method(http.MethodGet, "/metrics", metricsHandler)

	healthCheck := opts.HealthCheck
	if opts.Limiter != nil {
		healthCheck = LimiterHealthCheck(opts.Limiter, opts.HealthCheck)
	}
	router.Method(http.MethodGet, "/healthz", NewHealthCheckHandler(healthCheck))

	if opts.Limiter != nil {
		h := &limiterHandler{limiter: opts.Limiter, errorDomain: opts.ErrorDomain}
		router.Route("/api/v1/limiter", func(r chi.Router) {
			r.Get("/status", h.status)
			r.Post("/reset", h.reset)
		})
	}

	router.NotFound(func(rw http.ResponseWriter, r *http.Request) {
		apiErr := restapi.NewError(opts.ErrorDomain, restapi.ErrCodeNotFound, restapi.ErrMessageNotFound)
		restapi.RespondError(rw, http.StatusNotFound, apiErr, logger)
	})
	router.MethodNotAllowed(func(rw http.ResponseWriter, r *http.Request) {
		apiErr := restapi.NewError(opts.ErrorDomain, restapi.ErrCodeMethodNotAllowed, restapi.ErrMessageMethodNotAllowed)
		restapi.RespondError(rw, http.StatusMethodNotAllowed, apiErr, logger)
	})
}

func applyDefaultMiddlewaresToRouter(
	router chi.Router, cfg *Config, logger log.FieldLogger, errorDomain string,
	collector *middleware.HTTPRequestMetricsCollector,
) {
	if errorDomain == "" {
		errorDomain = DefaultErrorDomain
	}
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(rw, r.WithContext(middleware.NewContextWithRequestStartTime(r.Context(), time.Now())))
		})
	})
	router.Use(middleware.RequestID())
	router.Use(middleware.LoggingWithOpts(logger, middleware.LoggingOpts{
		ExcludedEndpoints:    cfg.Log.ExcludedEndpoints,
		SlowRequestThreshold: time.Duration(cfg.Log.SlowRequestThreshold),
	}))
	router.Use(middleware.Recovery(errorDomain))
	router.Use(middleware.HTTPRequestMetricsWithOpts(collector, GetChiRoutePattern,
		middleware.HTTPRequestMetricsOpts{ExcludedEndpoints: []string{"/metrics", "/healthz"}}))
}

// GetChiRoutePattern extracts chi route pattern from request.
func GetChiRoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}

	routePath := r.URL.RawPath
	if routePath == "" {
		routePath = r.URL.Path
	}
	tctx := chi.NewRouteContext()
	if !rctx.Routes.Match(tctx, r.Method, routePath) {
		return ""
	}
	return tctx.RoutePattern()
}
