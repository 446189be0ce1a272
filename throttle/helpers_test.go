/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/pulsefit/aithrottle/log/logtest"
)

var testStartTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestConfig returns the default config without jitter and drain pacing, so delays are exact.
func newTestConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Backoff.MaxJitter = 0
	cfg.DrainInterval = 0
	return cfg
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) OnEvent(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) byType(typ EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []Event
	for _, e := range r.events {
		if e.Type == typ {
			res = append(res, e)
		}
	}
	return res
}

func (r *eventRecorder) count(typ EventType) int {
	return len(r.byType(typ))
}

type testLimiter struct {
	*Limiter
	clock   clockwork.FakeClock
	events  *eventRecorder
	logs    *logtest.Recorder
	stopRun context.CancelFunc
	runDone chan error
}

func newTestLimiter(t *testing.T, cfg *Config) *testLimiter {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testStartTime)
	events := &eventRecorder{}
	logs := logtest.NewRecorder()
	l, err := New(cfg, WithClock(clock), WithObserver(events), WithLogger(logs))
	require.NoError(t, err)
	return &testLimiter{Limiter: l, clock: clock, events: events, logs: logs}
}

// startRun runs the drain loop in background until the test ends.
func (tl *testLimiter) startRun(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	tl.stopRun = cancel
	tl.runDone = make(chan error, 1)
	go func() {
		tl.runDone <- tl.Run(ctx)
		close(tl.runDone)
	}()
	t.Cleanup(func() {
		cancel()
		<-tl.runDone
	})
}

// advanceUntil moves the fake clock forward by step until cond holds.
func (tl *testLimiter) advanceUntil(t *testing.T, step time.Duration, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		if cond() {
			return true
		}
		tl.clock.Advance(step)
		return cond()
	}, 5*time.Second, time.Millisecond)
}

func waitFuture(t *testing.T, f *Future) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	select {
	case <-f.Done():
		return f.Err()
	case <-ctx.Done():
		require.FailNow(t, "future has not settled in time")
		return nil
	}
}

func requirePending(t *testing.T, f *Future) {
	t.Helper()
	require.Never(t, func() bool {
		select {
		case <-f.Done():
			return true
		default:
			return false
		}
	}, 30*time.Millisecond, 5*time.Millisecond)
}

func isDone(f *Future) bool {
	select {
	case <-f.Done():
		return true
	default:
		return false
	}
}

func noop(context.Context) error { return nil }
