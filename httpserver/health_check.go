/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/pulsefit/aithrottle/httpserver/middleware"
	"github.com/pulsefit/aithrottle/log"
	"github.com/pulsefit/aithrottle/restapi"
)

// StatusClientClosedRequest is a special HTTP status code used by Nginx to show that the client
// closed the request before the server could send a response
const StatusClientClosedRequest = 499

// HealthCheckComponentLimiter is the name of the limiter component in health-check responses.
const HealthCheckComponentLimiter = "limiter"

// HealthCheckComponentName is a type alias for component names. It's used for better readability.
type HealthCheckComponentName = string

// HealthCheckStatus is a resulting status of the health-check.
type HealthCheckStatus int

// Health-check statuses.
const (
	HealthCheckStatusOK HealthCheckStatus = iota
	HealthCheckStatusFail
)

// HealthCheckResult is a type alias for result of health-check operation.
type HealthCheckResult = map[HealthCheckComponentName]HealthCheckStatus

// HealthCheckContext checks the components of the service.
type HealthCheckContext = func(ctx context.Context) (HealthCheckResult, error)

type healthCheckResponseData struct {
	Components map[string]bool `json:"components"`
}

// HealthCheckHandler implements http.Handler and does health-check of a service.
type HealthCheckHandler struct {
	healthCheckFn HealthCheckContext
}

// NewHealthCheckHandler creates a new http.Handler for doing health-check.
// fn is called on every request and returns statuses of service's components.
func NewHealthCheckHandler(fn HealthCheckContext) *HealthCheckHandler {
	if fn == nil {
		fn = func(ctx context.Context) (HealthCheckResult, error) {
			return HealthCheckResult{}, ctx.Err()
		}
	}
	return &HealthCheckHandler{fn}
}

// ServeHTTP serves heath-check HTTP request. Any failed component makes the response 503.
func (h *HealthCheckHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	hcResult, err := h.healthCheckFn(r.Context())
	if err != nil {
		if logger != nil {
			logger.Error("error while checking health", log.Error(err))
		}
		if errors.Is(err, context.Canceled) {
			rw.WriteHeader(StatusClientClosedRequest)
			return
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	respStatus := http.StatusOK
	respData := healthCheckResponseData{Components: make(map[string]bool, len(hcResult))}
	for name, status := range hcResult {
		respData.Components[name] = status == HealthCheckStatusOK
		if status == HealthCheckStatusFail {
			respStatus = http.StatusServiceUnavailable
		}
	}
	restapi.RespondCodeAndJSON(rw, respStatus, respData, logger)
}

// LimiterHealthCheck reports the limiter as failed once it's stopped.
// The result of extra (if any) is merged into the result.
func LimiterHealthCheck(limiter LimiterController, extra HealthCheckContext) HealthCheckContext {
	return func(ctx context.Context) (HealthCheckResult, error) {
		result := HealthCheckResult{HealthCheckComponentLimiter: HealthCheckStatusOK}
		if limiter.Stopped() {
			result[HealthCheckComponentLimiter] = HealthCheckStatusFail
		}
		if extra == nil {
			return result, nil
		}
		extraResult, err := extra(ctx)
		if err != nil {
			return nil, err
		}
		for name, status := range extraResult {
			result[name] = status
		}
		return result, nil
	}
}
