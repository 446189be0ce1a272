/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"time"

	"github.com/pulsefit/aithrottle/config"
)

// WindowStats is the state of a quota window.
type WindowStats struct {
	Requests      int                 `json:"requests"`
	RequestsLimit int                 `json:"requestsLimit"`
	Tokens        int                 `json:"tokens"`
	TokensLimit   int                 `json:"tokensLimit,omitempty"`
	Start         time.Time           `json:"start"`
	ResetsIn      config.TimeDuration `json:"resetsIn"`
}

// BackoffStats is the state of the backoff.
type BackoffStats struct {
	Active     bool                `json:"active"`
	Until      *time.Time          `json:"until,omitempty"`
	Remaining  config.TimeDuration `json:"remaining"`
	Multiplier float64             `json:"multiplier"`
}

// Totals are lifetime counters of the limiter.
type Totals struct {
	Submitted   uint64 `json:"submitted"`
	Admitted    uint64 `json:"admitted"`
	Queued      uint64 `json:"queued"`
	Succeeded   uint64 `json:"succeeded"`
	Failed      uint64 `json:"failed"`
	RateLimited uint64 `json:"rateLimited"`
	Requeued    uint64 `json:"requeued"`
	Backoffs    uint64 `json:"backoffs"`
	Expired     uint64 `json:"expired"`
	Canceled    uint64 `json:"canceled"`
	Rejected    uint64 `json:"rejected"`
}

// Stats is a consistent snapshot of the limiter.
type Stats struct {
	Time        time.Time    `json:"time"`
	Minute      WindowStats  `json:"minute"`
	Day         WindowStats  `json:"day"`
	Backoff     BackoffStats `json:"backoff"`
	ErrorStreak int          `json:"errorStreak"`
	QueueLength int          `json:"queueLength"`
	InFlight    int          `json:"inFlight"`
	Totals      Totals       `json:"totals"`
	Stopped     bool         `json:"stopped"`
}

// Stats returns a snapshot of the limiter state.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.refreshLocked(now)

	s := Stats{
		Time:        now,
		Minute:      l.minute.stats(now),
		Day:         l.day.stats(now),
		ErrorStreak: l.streak,
		QueueLength: l.queue.Len(),
		InFlight:    l.inFlight,
		Totals:      l.totals,
		Stopped:     l.stopped.Load(),
	}
	s.Backoff.Multiplier = l.bo.Multiplier()
	if l.inBackoffLocked(now) {
		s.Backoff.Active = true
		until := l.backoffUntil
		s.Backoff.Until = &until
		s.Backoff.Remaining = config.TimeDuration(l.backoffUntil.Sub(now))
	}
	return s
}

func (w *quotaWindow) stats(now time.Time) WindowStats {
	return WindowStats{
		Requests:      w.requests,
		RequestsLimit: w.requestsLimit,
		Tokens:        w.tokens,
		TokensLimit:   w.tokensLimit,
		Start:         w.start,
		ResetsIn:      config.TimeDuration(w.resetAt().Sub(now)),
	}
}
