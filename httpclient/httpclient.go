/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package httpclient builds the http.Client used for upstream API calls.
// Outgoing requests pass through the user agent, request ID, logging and metrics round trippers.
package httpclient

import (
	"context"
	"net/http"

	"github.com/pulsefit/aithrottle/log"
)

// DefaultRequestType is the request type used in logs and metrics when none is set.
const DefaultRequestType = "upstream"

// Opts provides options for NewClientWithOpts.
type Opts struct {
	// RequestType is a type of request, e.g. the name of the upstream API.
	RequestType string

	// Delegate is the innermost RoundTripper. A clone of http.DefaultTransport is used by default.
	Delegate http.RoundTripper

	// RequestIDProvider is a function that provides a request ID.
	RequestIDProvider func(ctx context.Context) string
}

// NewClient creates an http.Client configured by cfg. logger and collector may be nil.
func NewClient(cfg *Config, logger log.FieldLogger, collector MetricsCollector) *http.Client {
	return NewClientWithOpts(cfg, logger, collector, Opts{})
}

// NewClientWithOpts creates an http.Client configured by cfg with additional options.
func NewClientWithOpts(cfg *Config, logger log.FieldLogger, collector MetricsCollector, opts Opts) *http.Client {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	requestType := opts.RequestType
	if requestType == "" {
		requestType = DefaultRequestType
	}

	delegate := opts.Delegate
	if delegate == nil {
		delegate = http.DefaultTransport.(*http.Transport).Clone()
	}
	if collector != nil {
		delegate = NewMetricsRoundTripper(delegate, collector, requestType)
	}
	if cfg.Log.Mode.IsValid() && cfg.Log.Mode != LoggingModeNone {
		delegate = NewLoggingRoundTripperWithOpts(delegate, logger, requestType, LoggingRoundTripperOpts{
			Mode:                 cfg.Log.Mode,
			SlowRequestThreshold: cfg.Log.SlowRequestThreshold,
		})
	}
	delegate = NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{RequestIDProvider: opts.RequestIDProvider})
	if cfg.UserAgent != "" {
		delegate = NewUserAgentRoundTripper(delegate, cfg.UserAgent)
	}

	return &http.Client{Transport: delegate, Timeout: cfg.Timeout}
}
