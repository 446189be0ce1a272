/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"time"

	"github.com/pulsefit/aithrottle/log"
)

// LoggingMode represents a mode of logging.
type LoggingMode string

// Logging modes.
const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

// IsValid checks if the logger mode is valid.
func (lm LoggingMode) IsValid() bool {
	switch lm {
	case LoggingModeNone, LoggingModeAll, LoggingModeFailed:
		return true
	}
	return false
}

// LoggingRoundTripper logs outgoing requests.
type LoggingRoundTripper struct {
	Delegate    http.RoundTripper
	Logger      log.FieldLogger
	RequestType string
	Opts        LoggingRoundTripperOpts
}

// LoggingRoundTripperOpts represents an options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// Mode of logging: none, all, failed. Failed means transport errors and 4xx/5xx responses.
	Mode LoggingMode

	// SlowRequestThreshold makes requests that took longer be logged (at warn level) in any mode but none.
	SlowRequestThreshold time.Duration
}

// NewLoggingRoundTripper creates an HTTP transport that logs all requests.
func NewLoggingRoundTripper(delegate http.RoundTripper, logger log.FieldLogger, requestType string) *LoggingRoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, logger, requestType, LoggingRoundTripperOpts{Mode: LoggingModeAll})
}

// NewLoggingRoundTripperWithOpts creates an HTTP transport that logs requests with options.
func NewLoggingRoundTripperWithOpts(
	delegate http.RoundTripper, logger log.FieldLogger, requestType string, opts LoggingRoundTripperOpts,
) *LoggingRoundTripper {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &LoggingRoundTripper{Delegate: delegate, Logger: logger, RequestType: requestType, Opts: opts}
}

// RoundTrip implements http.RoundTripper.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Mode == LoggingModeNone || rt.Opts.Mode == "" {
		return rt.Delegate.RoundTrip(r)
	}

	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)

	failed := err != nil || (resp != nil && resp.StatusCode >= http.StatusBadRequest)
	slow := rt.Opts.SlowRequestThreshold > 0 && elapsed >= rt.Opts.SlowRequestThreshold
	if rt.Opts.Mode == LoggingModeFailed && !failed && !slow {
		return resp, err
	}

	requestType := GetRequestTypeFromContext(r.Context())
	if requestType == "" {
		requestType = rt.RequestType
	}
	fields := []log.Field{
		log.String("method", r.Method),
		log.String("url", r.URL.Redacted()),
		log.String("request_type", requestType),
		log.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if requestID := r.Header.Get(RequestIDHeader); requestID != "" {
		fields = append(fields, log.String("request_id", requestID))
	}
	if resp != nil {
		fields = append(fields, log.Int("status", resp.StatusCode))
	}

	switch {
	case err != nil:
		rt.Logger.Error("client http request failed", append(fields, log.Error(err))...)
	case failed:
		rt.Logger.Warn("client http request finished with error status", fields...)
	case slow:
		rt.Logger.Warn("client http request is slow", fields...)
	default:
		rt.Logger.Info("client http request done", fields...)
	}
	return resp, err
}
