/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"context"
	"sync"
)

// Future is the pending result of a submitted task.
type Future struct {
	id   string
	done chan struct{}
	once sync.Once
	err  error
}

func newFuture(id string) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

// ID returns the identifier of the request, the same one used in log entries and events.
func (f *Future) ID() string {
	return f.id
}

// Done is closed when the task has finished or the request has been dropped.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the result. It is nil until Done is closed.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the future settles or ctx is done.
// Giving up waiting does not withdraw the request, cancel the context passed to Submit for that.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Future) settle(err error) bool {
	settled := false
	f.once.Do(func() {
		f.err = err
		close(f.done)
		settled = true
	})
	return settled
}

// Call submits fn to the limiter and waits for its result.
// ctx both bounds the waiting in the queue and is passed to fn.
func Call[T any](ctx context.Context, l *Limiter, fn func(ctx context.Context) (T, error), opts ...SubmitOption) (T, error) {
	var res T
	f := l.Submit(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		res = v
		return nil
	}, opts...)
	if err := f.Wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	return res, nil
}
