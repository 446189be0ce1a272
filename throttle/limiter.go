/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package throttle provides Limiter, an admission controller for calls to a rate limited upstream API.
//
// Limiter keeps three budgets (requests per minute, requests per day and tokens per minute).
// A submitted task runs immediately when it fits into the budgets. Otherwise it waits in a priority queue
// that is drained by Limiter.Run. Rate limit errors returned by tasks (see upstream.RateLimitedError)
// put the limiter into an escalating backoff and the failed task goes back to the front of the queue.
// Other task errors are returned to the caller as is, but a streak of them also triggers a backoff.
package throttle

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"github.com/pulsefit/aithrottle/log"
	"github.com/pulsefit/aithrottle/retry"
	"github.com/pulsefit/aithrottle/upstream"
)

// DefaultPriority is the priority of a request submitted without WithPriority.
const DefaultPriority = 1

// Errors returned by Limiter.
var (
	ErrLimiterStopped = errors.New("limiter is stopped")
	ErrQueueFull      = errors.New("limiter queue is full")
	ErrQueueTimeout   = errors.New("request waited in limiter queue for too long")
	ErrInvalidCost    = errors.New("invalid request cost")
	ErrAlreadyRunning = errors.New("limiter is already running")
)

// Task is a unit of work guarded by Limiter, usually a single upstream API call.
type Task func(ctx context.Context) error

type submitOptions struct {
	priority int
	cost     int
}

// SubmitOption customizes a single submission.
type SubmitOption func(*submitOptions)

// WithPriority sets the request priority. Higher priorities are drained first.
func WithPriority(priority int) SubmitOption {
	return func(o *submitOptions) {
		o.priority = priority
	}
}

// WithCost sets the estimated number of tokens the request consumes.
func WithCost(cost int) SubmitOption {
	return func(o *submitOptions) {
		o.cost = cost
	}
}

// Option configures Limiter.
type Option func(*Limiter)

// WithClock sets the time source. It is mostly useful in tests with clockwork.NewFakeClock.
func WithClock(clock clockwork.Clock) Option {
	return func(l *Limiter) {
		l.clock = clock
	}
}

// WithLogger sets the logger for limiter events.
func WithLogger(logger log.FieldLogger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithMetrics sets the collector for limiter metrics.
func WithMetrics(metrics MetricsCollector) Option {
	return func(l *Limiter) {
		l.metrics = metrics
	}
}

// WithObserver adds an observer of limiter events.
func WithObserver(observer Observer) Option {
	return func(l *Limiter) {
		l.observers = append(l.observers, observer)
	}
}

// Limiter is an admission controller with a priority queue, quota windows and backoff.
// It is safe for concurrent use. Queued requests are processed only while Run is running.
type Limiter struct {
	cfg       Config
	clock     clockwork.Clock
	logger    log.FieldLogger
	metrics   MetricsCollector
	observers []Observer

	mu       sync.Mutex
	minute   quotaWindow
	day      quotaWindow
	queue    requestQueue
	seq      int64
	frontSeq int64
	inFlight int
	running  bool
	totals   Totals

	bo            *retry.EscalatingBackOff
	backoffUntil  time.Time
	lastBackoffAt time.Time
	streak        int
	lastErrorAt   time.Time

	// pacer holds back the next drained request until DrainInterval has passed since the previous one ended.
	// It is nil until the first drained request ends or when pacing is disabled.
	pacer *rate.Limiter

	stopped *atomic.Bool
	wake    chan struct{}
}

// New creates a Limiter. A nil cfg means NewDefaultConfig.
func New(cfg *Config, opts ...Option) (*Limiter, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid limiter config: %w", err)
	}

	l := &Limiter{
		cfg:     *cfg,
		clock:   clockwork.NewRealClock(),
		logger:  log.NewDisabledLogger(),
		metrics: disabledMetrics{},
		stopped: atomic.NewBool(false),
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}

	now := l.clock.Now()
	l.minute = quotaWindow{
		name:          WindowMinute,
		length:        time.Minute,
		start:         now,
		requestsLimit: cfg.RequestsPerMinute,
		tokensLimit:   cfg.TokensPerMinute,
	}
	l.day = quotaWindow{
		name:          WindowDay,
		length:        24 * time.Hour,
		start:         now,
		requestsLimit: cfg.RequestsPerDay,
	}
	l.bo = retry.NewEscalatingBackOff(cfg.Backoff.Initial, cfg.Backoff.Max, cfg.Backoff.MaxJitter, cfg.Backoff.MaxMultiplier)
	return l, nil
}

// Submit runs admission control for task and returns a Future for its result.
//
// The task starts immediately (in its own goroutine) if the limiter is not in backoff, the queue is empty
// and the request fits into all budgets. Otherwise it is queued. ctx is passed to the task, and
// when it is done while the request is still queued, the request leaves the queue and settles with ctx.Err().
func (l *Limiter) Submit(ctx context.Context, task Task, opts ...SubmitOption) *Future {
	o := submitOptions{priority: DefaultPriority, cost: l.cfg.DefaultCost}
	for _, opt := range opts {
		opt(&o)
	}
	req := &request{
		id:       uuid.NewString(),
		ctx:      ctx,
		task:     task,
		priority: o.priority,
		cost:     o.cost,
		index:    -1,
	}
	req.future = newFuture(req.id)

	if o.cost < 0 || o.cost > l.cfg.TokensPerMinute {
		req.future.settle(fmt.Errorf("%w: %d is out of [0, %d]", ErrInvalidCost, o.cost, l.cfg.TokensPerMinute))
		return req.future
	}
	if err := ctx.Err(); err != nil {
		req.future.settle(err)
		return req.future
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped.Load() {
		req.future.settle(ErrLimiterStopped)
		return req.future
	}

	now := l.clock.Now()
	l.refreshLocked(now)
	l.totals.Submitted++

	if l.inBackoffLocked(now) || l.queue.Len() > 0 || l.admissionDelayLocked(req.cost, now) > 0 {
		l.enqueueLocked(req, now)
		return req.future
	}

	l.admitLocked(req, now, false)
	go l.execute(req)
	return req.future
}

// Run drains the queue until ctx is done. When it returns, the limiter is stopped: queued requests and
// all further submissions settle with ErrLimiterStopped. Run implements service.Worker.
func (l *Limiter) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.stopped.Load() {
		l.mu.Unlock()
		return ErrLimiterStopped
	}
	if l.running {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.running = true
	l.mu.Unlock()

	defer l.stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		// next observes the latest state, so a pending wake-up is redundant.
		select {
		case <-l.wake:
		default:
		}
		req, wait := l.next()
		if req != nil {
			l.execute(req)
			l.paceFrom(l.clock.Now())
			continue
		}
		if !l.sleep(ctx, wait) {
			return nil
		}
	}
}

// Stopped reports whether Run has finished.
func (l *Limiter) Stopped() bool {
	return l.stopped.Load()
}

// Reset zeroes the quota windows, the error streak and the backoff.
func (l *Limiter) Reset() {
	l.mu.Lock()
	now := l.clock.Now()
	for _, w := range []*quotaWindow{&l.minute, &l.day} {
		w.start = now
		w.requests = 0
		w.tokens = 0
	}
	l.streak = 0
	l.bo.Reset()
	if !l.backoffUntil.IsZero() {
		l.backoffUntil = time.Time{}
		l.emit(Event{Type: EventBackoffExited, Multiplier: l.bo.Multiplier()})
	}
	l.updateGaugesLocked()
	l.logger.Info("limiter: counters reset")
	l.mu.Unlock()

	l.wakeUp()
}

// MustRegisterMetrics registers the metrics collector in Prometheus if it supports registration.
func (l *Limiter) MustRegisterMetrics() {
	if r, ok := l.metrics.(interface{ MustRegister() }); ok {
		r.MustRegister()
	}
}

// UnregisterMetrics undoes MustRegisterMetrics.
func (l *Limiter) UnregisterMetrics() {
	if r, ok := l.metrics.(interface{ Unregister() }); ok {
		r.Unregister()
	}
}

func (l *Limiter) execute(req *request) {
	err := l.runTask(req)
	l.complete(req, err)
}

func (l *Limiter) runTask(req *request) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return req.task(req.ctx)
}

// complete classifies the result of an executed request.
func (l *Limiter) complete(req *request, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.inFlight--
	l.refreshLocked(now)

	if err == nil {
		l.streak = 0
		l.bo.Reset()
		l.totals.Succeeded++
		l.emit(Event{Type: EventSucceeded, RequestID: req.id, Priority: req.priority, Cost: req.cost})
		l.updateGaugesLocked()
		req.future.settle(nil)
		return
	}

	kind, retryAfter := upstream.Classify(err)
	if kind == upstream.KindNone {
		kind, retryAfter = upstream.Classify(upstream.Translate(err))
	}
	if kind == upstream.KindRateLimited {
		l.totals.RateLimited++
		delay := retryAfter
		if delay > 0 {
			l.bo.Escalate()
		} else {
			delay = l.bo.NextBackOff()
		}
		l.enterBackoffLocked(now, delay, BackoffReasonRateLimited)

		switch {
		case req.ctx.Err() != nil:
			l.rejectLocked(req, req.ctx.Err())
		case l.stopped.Load():
			l.rejectLocked(req, fmt.Errorf("%w: %w", ErrLimiterStopped, err))
		default:
			l.requeueLocked(req, now, err)
		}
		l.wakeUp()
		return
	}

	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		l.streak++
		l.lastErrorAt = now
	}
	l.totals.Failed++
	l.rejectLocked(req, err)
}

func (l *Limiter) rejectLocked(req *request, err error) {
	l.totals.Rejected++
	l.emit(Event{Type: EventRejected, RequestID: req.id, Priority: req.priority, Cost: req.cost, Err: err})
	req.future.settle(err)
}

// admissionDelayLocked returns how long a request of the given cost has to wait before it may run.
// Zero means it may run now. A tripped error streak enters backoff here.
func (l *Limiter) admissionDelayLocked(cost int, now time.Time) time.Duration {
	if l.inBackoffLocked(now) {
		return l.backoffUntil.Sub(now)
	}
	var wait time.Duration
	for _, w := range []*quotaWindow{&l.minute, &l.day} {
		if !w.fits(cost) {
			wait = max(wait, w.resetAt().Sub(now))
		}
	}
	if wait > 0 {
		return wait
	}
	if l.streak >= l.cfg.MaxConsecutiveErrors {
		l.streak = 0
		l.enterBackoffLocked(now, l.bo.NextBackOff(), BackoffReasonErrorStreak)
		return l.backoffUntil.Sub(now)
	}
	return 0
}

func (l *Limiter) admitLocked(req *request, now time.Time, drained bool) {
	l.minute.charge(req.cost)
	l.day.charge(req.cost)
	l.inFlight++
	l.totals.Admitted++
	e := Event{Type: EventAdmitted, RequestID: req.id, Priority: req.priority, Cost: req.cost, Drained: drained}
	if drained {
		e.Waited = now.Sub(req.enqueuedAt)
	}
	l.emit(e)
	l.updateGaugesLocked()
}

func (l *Limiter) enqueueLocked(req *request, now time.Time) {
	if l.cfg.Queue.MaxSize > 0 && l.queue.Len() >= l.cfg.Queue.MaxSize {
		l.rejectLocked(req, ErrQueueFull)
		return
	}
	l.seq++
	req.seq = l.seq
	l.pushLocked(req, now)
	l.totals.Queued++
	l.emit(Event{Type: EventQueued, RequestID: req.id, Priority: req.priority, Cost: req.cost})
	l.wakeUp()
}

// requeueLocked puts a rate limited request back in front of its priority tier.
func (l *Limiter) requeueLocked(req *request, now time.Time, cause error) {
	l.frontSeq--
	req.seq = l.frontSeq
	l.pushLocked(req, now)
	l.totals.Requeued++
	l.emit(Event{Type: EventRequeued, RequestID: req.id, Priority: req.priority, Cost: req.cost, Err: cause})
}

func (l *Limiter) pushLocked(req *request, now time.Time) {
	req.enqueuedAt = now
	heap.Push(&l.queue, req)
	req.stopCancelWatch = context.AfterFunc(req.ctx, func() {
		l.cancelQueued(req)
	})
}

// removeLocked takes a queued request out of the queue.
func (l *Limiter) removeLocked(req *request) {
	heap.Remove(&l.queue, req.index)
	req.detachCancelWatch()
}

func (l *Limiter) cancelQueued(req *request) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if req.index < 0 {
		return
	}
	heap.Remove(&l.queue, req.index)
	req.stopCancelWatch = nil
	err := req.ctx.Err()
	l.totals.Canceled++
	l.emit(Event{
		Type: EventCanceled, RequestID: req.id, Priority: req.priority, Cost: req.cost,
		Waited: l.clock.Since(req.enqueuedAt), Err: err,
	})
	req.future.settle(err)
	l.wakeUp()
}

// next pops the request to be drained now. If there is none, it returns how long to wait
// before checking again (0 means until woken up).
func (l *Limiter) next() (*request, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.refreshLocked(now)
	expiryWait := l.expireLocked(now)

	head := l.queue.peek()
	if head == nil {
		return nil, 0
	}

	wait := l.admissionDelayLocked(head.cost, now)
	if wait == 0 && l.pacer != nil {
		if tokens := l.pacer.TokensAt(now); tokens < 1 {
			wait = time.Duration((1 - tokens) * float64(l.cfg.DrainInterval))
		}
	}
	if wait > 0 {
		if expiryWait > 0 && expiryWait < wait {
			wait = expiryWait
		}
		return nil, wait
	}

	l.removeLocked(head)
	l.admitLocked(head, now, true)
	return head, 0
}

// paceFrom starts the pause that follows a drained request which ended at end.
func (l *Limiter) paceFrom(end time.Time) {
	if l.cfg.DrainInterval <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pacer = rate.NewLimiter(rate.Every(l.cfg.DrainInterval), 1)
	l.pacer.ReserveN(end, 1)
}

// expireLocked drops requests that have been queued for longer than Queue.MaxWait.
// It returns the time left until the next request expires, or 0 if no request can expire.
func (l *Limiter) expireLocked(now time.Time) time.Duration {
	maxWait := l.cfg.Queue.MaxWait
	if maxWait <= 0 || l.queue.Len() == 0 {
		return 0
	}
	var expired []*request
	for _, r := range l.queue {
		if now.Sub(r.enqueuedAt) >= maxWait {
			expired = append(expired, r)
		}
	}
	for _, r := range expired {
		l.removeLocked(r)
		l.totals.Expired++
		l.emit(Event{
			Type: EventExpired, RequestID: r.id, Priority: r.priority, Cost: r.cost,
			Waited: now.Sub(r.enqueuedAt), Err: ErrQueueTimeout,
		})
		r.future.settle(ErrQueueTimeout)
	}
	oldest, ok := l.queue.oldest()
	if !ok {
		return 0
	}
	return oldest.Add(maxWait).Sub(now)
}

// refreshLocked applies everything that depends only on the passage of time.
func (l *Limiter) refreshLocked(now time.Time) {
	l.minute.refresh(now)
	l.day.refresh(now)

	if !l.backoffUntil.IsZero() && !now.Before(l.backoffUntil) {
		l.backoffUntil = time.Time{}
		l.emit(Event{Type: EventBackoffExited, Multiplier: l.bo.Multiplier()})
	}
	if l.streak > 0 && l.cfg.StreakResetAfter > 0 && now.Sub(l.lastErrorAt) >= l.cfg.StreakResetAfter {
		l.streak = 0
	}
	if l.cfg.Backoff.Cooldown > 0 && l.bo.Multiplier() > 1 && l.backoffUntil.IsZero() &&
		now.Sub(l.lastBackoffAt) >= l.cfg.Backoff.Cooldown {
		l.bo.Reset()
	}
	l.updateGaugesLocked()
}

func (l *Limiter) inBackoffLocked(now time.Time) bool {
	return !l.backoffUntil.IsZero() && now.Before(l.backoffUntil)
}

// enterBackoffLocked starts (or extends) the backoff. An active backoff is never shortened.
func (l *Limiter) enterBackoffLocked(now time.Time, delay time.Duration, reason BackoffReason) {
	if until := now.Add(delay); until.After(l.backoffUntil) {
		l.backoffUntil = until
	}
	l.lastBackoffAt = now
	l.totals.Backoffs++
	l.emit(Event{Type: EventBackoffEntered, Backoff: delay, BackoffReason: reason, Multiplier: l.bo.Multiplier()})
	l.updateGaugesLocked()
}

func (l *Limiter) updateGaugesLocked() {
	l.metrics.SetWindowUsage(l.minute.name, l.minute.requests, l.minute.tokens)
	l.metrics.SetWindowUsage(l.day.name, l.day.requests, l.day.tokens)
	l.metrics.SetBackoff(!l.backoffUntil.IsZero(), l.bo.Multiplier())
}

func (l *Limiter) sleep(ctx context.Context, wait time.Duration) bool {
	var timerC <-chan time.Time
	if wait > 0 {
		timer := l.clock.NewTimer(wait)
		defer timer.Stop()
		timerC = timer.Chan()
	}
	select {
	case <-ctx.Done():
		return false
	case <-l.wake:
		return true
	case <-timerC:
		return true
	}
}

func (l *Limiter) wakeUp() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Limiter) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopped.Store(true)
	l.running = false
	for l.queue.Len() > 0 {
		req := heap.Pop(&l.queue).(*request)
		req.detachCancelWatch()
		l.rejectLocked(req, ErrLimiterStopped)
	}
	l.logger.Info("limiter: stopped", log.Int("in_flight", l.inFlight))
}
