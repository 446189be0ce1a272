/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package httpserver provides the status server of the limiter: health-check, Prometheus metrics,
// limiter stats and reset.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/pulsefit/aithrottle/httpserver/middleware"
	"github.com/pulsefit/aithrottle/log"
	"github.com/pulsefit/aithrottle/service"
)

// HTTPRequestMetricsOpts represents options of the metrics collected for incoming requests.
type HTTPRequestMetricsOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
}

// Opts represents options for creating HTTPServer.
type Opts struct {
	// Limiter is exposed by the /api/v1/limiter routes and checked by /healthz.
	Limiter LimiterController
	// ErrorDomain is used in error responses. DefaultErrorDomain is used if empty.
	ErrorDomain string
	// HealthCheck adds components (e.g. Redis) to the health-check result.
	HealthCheck HealthCheckContext
	// MetricsHandler is a custom handler for /metrics. promhttp.Handler() is used if nil.
	MetricsHandler http.Handler
	// HTTPRequestMetrics configures metrics of incoming requests.
	HTTPRequestMetrics HTTPRequestMetricsOpts
	// Listener is used instead of listening cfg.Address.
	Listener net.Listener
}

// HTTPServer represents a wrapper around http.Server with chi.Router as a handler.
// It implements service.Unit and service.MetricsRegisterer interfaces.
type HTTPServer struct {
	URL             string
	HTTPServer      *http.Server
	HTTPRouter      chi.Router
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listener       net.Listener
	port           *atomic.Int32
	mu             sync.Mutex
	httpServerDone chan struct{}
	reqMetrics     *middleware.HTTPRequestMetricsCollector
}

var _ service.Unit = (*HTTPServer)(nil)
var _ service.MetricsRegisterer = (*HTTPServer)(nil)

// New creates a new HTTPServer with request id, logging, recovery and metrics middlewares.
func New(cfg *Config, logger log.FieldLogger, opts Opts) *HTTPServer { //nolint:gocritic // hugeParam
	reqMetrics := middleware.NewHTTPRequestMetricsCollectorWithOpts(middleware.HTTPRequestMetricsCollectorOpts{
		Namespace:       opts.HTTPRequestMetrics.Namespace,
		DurationBuckets: opts.HTTPRequestMetrics.DurationBuckets,
		ConstLabels:     opts.HTTPRequestMetrics.ConstLabels,
	})
	router := chi.NewRouter()
	applyDefaultMiddlewaresToRouter(router, cfg, logger, opts.ErrorDomain, reqMetrics)
	configureRouter(router, logger, RouterOpts{
		Limiter:        opts.Limiter,
		ErrorDomain:    opts.ErrorDomain,
		HealthCheck:    opts.HealthCheck,
		MetricsHandler: opts.MetricsHandler,
	})

	return &HTTPServer{
		URL: "http://" + cfg.Address,
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			WriteTimeout:      time.Duration(cfg.Timeouts.Write),
			ReadTimeout:       time.Duration(cfg.Timeouts.Read),
			ReadHeaderTimeout: time.Duration(cfg.Timeouts.ReadHeader),
			IdleTimeout:       time.Duration(cfg.Timeouts.Idle),
			Handler:           router,
		},
		HTTPRouter:      router,
		Logger:          logger,
		ShutdownTimeout: time.Duration(cfg.Timeouts.Shutdown),
		listener:        opts.Listener,
		port:            atomic.NewInt32(0),
		reqMetrics:      reqMetrics,
	}
}

// Start starts the HTTP server in a blocking way.
// It's supposed that this method will be called in a separate goroutine.
// If a fatal error occurs, it will be sent to the fatalError channel.
func (s *HTTPServer) Start(fatalError chan<- error) {
	done := make(chan struct{})
	defer close(done)
	s.mu.Lock()
	s.httpServerDone = done
	s.mu.Unlock()

	logger := s.Logger.With(
		log.String("address", s.HTTPServer.Addr),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)
	logger.Info("starting status HTTP server...")

	listener := s.listener
	if listener == nil {
		var err error
		if listener, err = net.Listen("tcp", s.HTTPServer.Addr); err != nil {
			logger.Error("status HTTP server error", log.Error(err))
			fatalError <- err
			return
		}
	}

	if _, portStr, err := net.SplitHostPort(listener.Addr().String()); err == nil {
		if port, convErr := strconv.Atoi(portStr); convErr == nil {
			s.port.Store(int32(port))
		}
	}

	if err := s.HTTPServer.Serve(listener); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("status HTTP server closed")
			return
		}
		logger.Error("status HTTP server error", log.Error(err))
		fatalError <- err
	}
}

// Stop stops the HTTP server (gracefully or not).
func (s *HTTPServer) Stop(gracefully bool) error {
	if !gracefully {
		s.Logger.Info("closing status HTTP server...")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("status HTTP server closing error", log.Error(err))
			return err
		}
		s.waitServed()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()

	s.Logger.Info("shutting down status HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("status HTTP server shutting down error", log.Error(err))
		return err
	}
	s.Logger.Info("status HTTP server shut down")
	s.waitServed()
	return nil
}

func (s *HTTPServer) waitServed() {
	s.mu.Lock()
	done := s.httpServerDone
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// MustRegisterMetrics registers metrics in Prometheus client and panics if any error occurs.
func (s *HTTPServer) MustRegisterMetrics() {
	s.reqMetrics.MustRegister()
}

// UnregisterMetrics unregisters metrics in Prometheus client.
func (s *HTTPServer) UnregisterMetrics() {
	s.reqMetrics.Unregister()
}

// GetPort returns the port the server listens on. It's 0 until the server is started.
func (s *HTTPServer) GetPort() int {
	return int(s.port.Load())
}
