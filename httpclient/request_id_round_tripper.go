/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"

	"github.com/rs/xid"
)

// RequestIDHeader is the header that carries the request ID.
const RequestIDHeader = "X-Request-ID"

// RequestIDRoundTripper sets X-Request-ID on outgoing requests.
// The ID is taken from the request context or generated with xid.
// It is also put into the context of the request passed down the chain, so the logging round tripper can report it.
type RequestIDRoundTripper struct {
	Delegate http.RoundTripper
	Opts     RequestIDRoundTripperOpts
}

// RequestIDRoundTripperOpts represents an options for RequestIDRoundTripper.
type RequestIDRoundTripperOpts struct {
	// RequestIDProvider returns the ID for the request. GetRequestIDFromContext is used by default.
	RequestIDProvider func(ctx context.Context) string
}

// NewRequestIDRoundTripper creates an HTTP transport with X-Request-ID header support.
func NewRequestIDRoundTripper(delegate http.RoundTripper) *RequestIDRoundTripper {
	return NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{})
}

// NewRequestIDRoundTripperWithOpts creates an HTTP transport with X-Request-ID header support and options.
func NewRequestIDRoundTripperWithOpts(delegate http.RoundTripper, opts RequestIDRoundTripperOpts) *RequestIDRoundTripper {
	return &RequestIDRoundTripper{Delegate: delegate, Opts: opts}
}

// RoundTrip implements http.RoundTripper.
func (rt *RequestIDRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = rt.requestID(r.Context())
	}
	ctx := NewContextWithRequestID(r.Context(), requestID)
	r = r.Clone(ctx) // Per RoundTripper contract.
	r.Header.Set(RequestIDHeader, requestID)
	return rt.Delegate.RoundTrip(r)
}

func (rt *RequestIDRoundTripper) requestID(ctx context.Context) string {
	provider := rt.Opts.RequestIDProvider
	if provider == nil {
		provider = GetRequestIDFromContext
	}
	if id := provider(ctx); id != "" {
		return id
	}
	return xid.New().String()
}
