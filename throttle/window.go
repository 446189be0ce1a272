/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import "time"

// quotaWindow is a fixed counting window. Counters drop to zero once the window length has elapsed
// since its start, and the window restarts at the moment of the refresh.
type quotaWindow struct {
	name          string
	length        time.Duration
	start         time.Time
	requests      int
	tokens        int
	requestsLimit int
	tokensLimit   int // 0 means the window does not count tokens
}

// refresh resets the counters if the window has elapsed and reports whether it did.
func (w *quotaWindow) refresh(now time.Time) bool {
	if now.Sub(w.start) < w.length {
		return false
	}
	w.start = now
	w.requests = 0
	w.tokens = 0
	return true
}

func (w *quotaWindow) resetAt() time.Time {
	return w.start.Add(w.length)
}

func (w *quotaWindow) fits(cost int) bool {
	if w.requests+1 > w.requestsLimit {
		return false
	}
	return w.tokensLimit == 0 || w.tokens+cost <= w.tokensLimit
}

func (w *quotaWindow) charge(cost int) {
	w.requests++
	if w.tokensLimit > 0 {
		w.tokens += cost
	}
}
