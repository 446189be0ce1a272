/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package statsstore

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pulsefit/aithrottle/log"
	"github.com/pulsefit/aithrottle/retry"
	"github.com/pulsefit/aithrottle/service"
	"github.com/pulsefit/aithrottle/throttle"
)

// ttlIntervals is the snapshot TTL measured in publishing intervals.
const ttlIntervals = 3

// Default retry parameters of a single publish.
const (
	DefaultRetryInitialInterval = 100 * time.Millisecond
	DefaultRetryMaxAttempts     = 3
)

// StatsSource provides snapshots to publish. *throttle.Limiter implements it.
type StatsSource interface {
	Stats() throttle.Stats
}

// PublisherOpts contains optional parameters of Publisher.
type PublisherOpts struct {
	Clock       clockwork.Clock
	RetryPolicy retry.Policy
}

// Publisher periodically saves snapshots of the source to the Store. It implements service.Worker.
type Publisher struct {
	store    *Store
	source   StatsSource
	interval time.Duration
	logger   log.FieldLogger
	clock    clockwork.Clock
	policy   retry.Policy
}

var _ service.Worker = (*Publisher)(nil)

// NewPublisher creates a Publisher that saves a snapshot every interval.
func NewPublisher(store *Store, source StatsSource, interval time.Duration, logger log.FieldLogger) *Publisher {
	return NewPublisherWithOpts(store, source, interval, logger, PublisherOpts{})
}

// NewPublisherWithOpts is a more configurable version of NewPublisher.
func NewPublisherWithOpts(
	store *Store, source StatsSource, interval time.Duration, logger log.FieldLogger, opts PublisherOpts,
) *Publisher {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.RetryPolicy == nil {
		opts.RetryPolicy = retry.NewExponentialBackoffPolicy(DefaultRetryInitialInterval, DefaultRetryMaxAttempts)
	}
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &Publisher{
		store:    store,
		source:   source,
		interval: interval,
		logger:   logger.With(log.String("redis_key", store.Key())),
		clock:    opts.Clock,
		policy:   opts.RetryPolicy,
	}
}

// Run publishes a snapshot right away and then every interval until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	return service.NewPeriodicWorkerWithOpts(service.WorkerFunc(p.Publish), p.interval, p.logger,
		service.PeriodicWorkerOpts{Clock: p.clock}).Run(ctx)
}

// Publish saves the current snapshot. Redis errors are retried with exponential backoff.
func (p *Publisher) Publish(ctx context.Context) error {
	stats := p.source.Stats()
	isRetryable := func(err error) bool {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	notify := func(err error, delay time.Duration) {
		p.logger.Warn("failed to publish limiter stats, retrying", log.Error(err), log.Duration("delay", delay))
	}
	if err := retry.DoWithRetry(ctx, p.policy, isRetryable, notify, func(ctx context.Context) error {
		return p.store.Save(ctx, stats, ttlIntervals*p.interval)
	}); err != nil {
		return err
	}
	p.logger.Debug("limiter stats published", log.Int("queue_length", stats.QueueLength))
	return nil
}
