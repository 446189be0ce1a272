/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package upstream

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/cloudflare/ahocorasick"
)

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// RateLimitPhrases are the (lower-cased) message fragments vendors use for quota errors.
var RateLimitPhrases = []string{"429", "too many requests", "quota", "rate limit", "exceeded"}

var (
	phraseMatcherMu sync.Mutex
	phraseMatcher   = ahocorasick.NewStringMatcher(RateLimitPhrases)
)

var retryDelayRe = regexp.MustCompile(`retryDelay"?\s*:\s*"(\d+(?:\.\d+)?)s"`)

// Translate turns a raw client error into one of the typed upstream errors.
// It is meant for the client boundary, where errors come from third-party SDKs as plain messages.
// Already typed errors and context errors are returned as is.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	if kind, _ := Classify(err); kind != KindNone {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	status := 0
	var sc StatusCoder
	if errors.As(err, &sc) {
		status = sc.StatusCode()
	}
	msg := err.Error()
	retryAfter, _ := ParseRetryDelay(msg)

	if status == http.StatusTooManyRequests || matchRateLimitPhrase(msg) {
		return RateLimited(err, retryAfter)
	}
	if status >= http.StatusInternalServerError {
		return Transient(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient(err)
	}
	return Permanent(err)
}

// ParseRetryDelay extracts a server suggested delay like retryDelay:"12s" (or the JSON form "retryDelay": "12s").
func ParseRetryDelay(s string) (time.Duration, bool) {
	m := retryDelayRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	secs, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

func matchRateLimitPhrase(msg string) bool {
	lower := bytes.ToLower([]byte(msg))
	phraseMatcherMu.Lock()
	defer phraseMatcherMu.Unlock()
	return len(phraseMatcher.Match(lower)) > 0
}
