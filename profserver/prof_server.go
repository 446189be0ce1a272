/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package profserver provides an optional pprof HTTP server that runs next to the limiter.
package profserver

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"

	"github.com/pulsefit/aithrottle/httpserver/middleware"
	"github.com/pulsefit/aithrottle/log"
	"github.com/pulsefit/aithrottle/service"
)

const readHeaderTimeout = 5 * time.Second

// ProfServer represents HTTP server for profiling. pprof is used under the hood.
// It implements service.Unit interface.
type ProfServer struct {
	HTTPServer     *http.Server
	Logger         log.FieldLogger
	httpServerDone chan struct{}
	port           *atomic.Int32
}

var _ service.Unit = (*ProfServer)(nil)

// New creates a new HTTP server (pprof) for profiling.
func New(cfg *Config, logger log.FieldLogger) *ProfServer {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	router := chi.NewRouter()
	router.Use(middleware.RequestID(), middleware.Logging(logger))
	router.Mount("/debug", chimiddleware.Profiler())

	return &ProfServer{
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		Logger:         logger.With(log.String("address", cfg.Address)),
		httpServerDone: make(chan struct{}),
		port:           atomic.NewInt32(0),
	}
}

// Start listens and serves in a blocking way. A fatal error is sent into fatalError.
func (s *ProfServer) Start(fatalError chan<- error) {
	defer close(s.httpServerDone)

	s.Logger.Info("starting profiling HTTP server...")
	ln, err := net.Listen("tcp", s.HTTPServer.Addr)
	if err != nil {
		s.Logger.Error("profiling HTTP server error", log.Error(err))
		fatalError <- err
		return
	}
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port.Store(int32(tcpAddr.Port)) //nolint:gosec // port fits int32
	}
	if err = s.HTTPServer.Serve(ln); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.Logger.Info("profiling HTTP server closed")
			return
		}
		s.Logger.Error("profiling HTTP server error", log.Error(err))
		fatalError <- err
	}
}

// Stop closes the server. Profiling requests are never waited for.
func (s *ProfServer) Stop(gracefully bool) error {
	s.Logger.Info("closing profiling HTTP server...")
	if err := s.HTTPServer.Close(); err != nil {
		s.Logger.Error("profiling HTTP server closing error", log.Error(err))
		return err
	}
	<-s.httpServerDone
	return nil
}

// GetPort returns the listening port, or 0 if the server is not listening yet.
func (s *ProfServer) GetPort() int {
	return int(s.port.Load())
}
