/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package gemini

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pulsefit/aithrottle/upstream"
)

// StatusResourceExhausted is the API status of quota errors.
const StatusResourceExhausted = "RESOURCE_EXHAUSTED"

// APIError is a non-2xx response of the Gemini API.
type APIError struct {
	HTTPStatus int
	Code       int
	Status     string
	Message    string

	// RetryDelay is the delay suggested by the server (RetryInfo details or the Retry-After header).
	RetryDelay time.Duration
}

// Error implements error.
func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.HTTPStatus)
	}
	if e.Status != "" {
		return fmt.Sprintf("gemini: %d %s: %s", e.HTTPStatus, e.Status, msg)
	}
	return fmt.Sprintf("gemini: %d: %s", e.HTTPStatus, msg)
}

// StatusCode returns the HTTP status of the response. It makes APIError an upstream.StatusCoder.
func (e *APIError) StatusCode() int {
	return e.HTTPStatus
}

type errorEnvelope struct {
	Error struct {
		Code    int               `json:"code"`
		Message string            `json:"message"`
		Status  string            `json:"status"`
		Details []json.RawMessage `json:"details"`
	} `json:"error"`
}

type errorDetail struct {
	Type       string `json:"@type"`
	RetryDelay string `json:"retryDelay"`
}

// parseAPIError builds APIError from the response. Bodies that are not JSON become the message as is.
func parseAPIError(statusCode int, header http.Header, body []byte) *APIError {
	apiErr := &APIError{HTTPStatus: statusCode}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && (env.Error.Message != "" || env.Error.Status != "") {
		apiErr.Code = env.Error.Code
		apiErr.Status = env.Error.Status
		apiErr.Message = env.Error.Message
		for _, raw := range env.Error.Details {
			var d errorDetail
			if json.Unmarshal(raw, &d) != nil || d.RetryDelay == "" {
				continue
			}
			if delay, err := time.ParseDuration(d.RetryDelay); err == nil {
				apiErr.RetryDelay = delay
				break
			}
		}
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}

	if apiErr.RetryDelay == 0 {
		apiErr.RetryDelay = parseRetryAfter(header.Get("Retry-After"), time.Now())
	}
	return apiErr
}

// parseRetryAfter accepts both forms of Retry-After: delay in seconds and HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

// classifyAPIError wraps APIError into the upstream error taxonomy.
func classifyAPIError(apiErr *APIError) error {
	switch {
	case apiErr.HTTPStatus == http.StatusTooManyRequests || apiErr.Status == StatusResourceExhausted:
		return upstream.RateLimited(apiErr, apiErr.RetryDelay)
	case apiErr.HTTPStatus >= http.StatusInternalServerError:
		return upstream.Transient(apiErr)
	default:
		return upstream.Permanent(apiErr)
	}
}
