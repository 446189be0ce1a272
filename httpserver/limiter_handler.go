/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"net/http"

	"github.com/pulsefit/aithrottle/httpserver/middleware"
	"github.com/pulsefit/aithrottle/restapi"
	"github.com/pulsefit/aithrottle/throttle"
)

//go:generate mockgen -destination=./mocks/limiter_controller.go -package=mocks . LimiterController

// LimiterController is the part of throttle.Limiter exposed by the status server.
type LimiterController interface {
	Stats() throttle.Stats
	Reset()
	Stopped() bool
}

var _ LimiterController = (*throttle.Limiter)(nil)

type limiterHandler struct {
	limiter     LimiterController
	errorDomain string
}

// status responds with the current limiter snapshot.
func (h *limiterHandler) status(rw http.ResponseWriter, r *http.Request) {
	restapi.RespondJSON(rw, h.limiter.Stats(), middleware.GetLoggerFromContext(r.Context()))
}

// reset zeroes the limiter counters and responds with the snapshot taken after it.
func (h *limiterHandler) reset(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	if h.limiter.Stopped() {
		restapi.RespondError(rw, http.StatusServiceUnavailable,
			restapi.NewError(h.errorDomain, restapi.ErrCodeLimiterStopped, restapi.ErrMessageLimiterStopped), logger)
		return
	}
	h.limiter.Reset()
	if logger != nil {
		logger.Info("limiter counters reset via API")
	}
	restapi.RespondJSON(rw, h.limiter.Stats(), logger)
}
