/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package upstream defines the closed set of failures an upstream API client reports to the limiter:
// the call was rate limited, it failed transiently, or it failed permanently.
package upstream

import (
	"errors"
	"fmt"
	"time"
)

// Kind is a class of an upstream failure.
type Kind int

// Failure kinds.
const (
	KindNone Kind = iota
	KindRateLimited
	KindTransient
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	}
	return "none"
}

// RateLimitedError means the upstream refused the call because of its quota.
// RetryAfter is the delay suggested by the upstream, zero if it did not suggest any.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// TransientError means the call failed but the same call may succeed later (5xx, network errors).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient failure: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError means the call failed and repeating it will not help (4xx other than 429).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent failure: " + e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// RateLimited wraps err into RateLimitedError.
func RateLimited(err error, retryAfter time.Duration) error {
	return &RateLimitedError{RetryAfter: retryAfter, Err: err}
}

// Transient wraps err into TransientError.
func Transient(err error) error {
	return &TransientError{Err: err}
}

// Permanent wraps err into PermanentError.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Classify returns the kind of err and, for rate limited errors, the suggested retry delay.
// Only typed errors are recognized, raw errors are KindNone (see Translate).
func Classify(err error) (Kind, time.Duration) {
	if err == nil {
		return KindNone, 0
	}
	var rlErr *RateLimitedError
	if errors.As(err, &rlErr) {
		return KindRateLimited, rlErr.RetryAfter
	}
	var tErr *TransientError
	if errors.As(err, &tErr) {
		return KindTransient, 0
	}
	var pErr *PermanentError
	if errors.As(err, &pErr) {
		return KindPermanent, 0
	}
	return KindNone, 0
}

// IsRateLimited reports whether err is (or wraps) RateLimitedError.
func IsRateLimited(err error) bool {
	kind, _ := Classify(err)
	return kind == KindRateLimited
}
