/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pulsefit/aithrottle/log/logtest"
)

type mockUnit struct {
	running       *int32
	startErr      error
	started       chan struct{}
	stopped       chan struct{}
	stopCalls     int32
	gracefulStops int32
	registered    int32
	unregistered  int32
}

func newMockUnit(running *int32, startErr error) *mockUnit {
	return &mockUnit{running: running, startErr: startErr, started: make(chan struct{}), stopped: make(chan struct{})}
}

func (u *mockUnit) Start(fatalErr chan<- error) {
	atomic.AddInt32(u.running, 1)
	close(u.started)
	if u.startErr != nil {
		atomic.AddInt32(u.running, -1)
		fatalErr <- u.startErr
		return
	}
	<-u.stopped
	atomic.AddInt32(u.running, -1)
}

func (u *mockUnit) Stop(gracefully bool) error {
	if atomic.AddInt32(&u.stopCalls, 1) == 1 {
		if gracefully {
			atomic.AddInt32(&u.gracefulStops, 1)
		}
		if u.startErr == nil {
			close(u.stopped)
		}
	}
	return nil
}

func (u *mockUnit) MustRegisterMetrics() { atomic.AddInt32(&u.registered, 1) }

func (u *mockUnit) UnregisterMetrics() { atomic.AddInt32(&u.unregistered, 1) }

func TestService_StopBySignal(t *testing.T) {
	var running int32
	unit := newMockUnit(&running, nil)
	recorder := logtest.NewRecorder()
	svc := New(recorder, unit)

	done := make(chan error, 1)
	go func() { done <- svc.Start() }()
	<-unit.started
	require.EqualValues(t, 1, atomic.LoadInt32(&unit.registered))

	svc.Signals <- os.Interrupt
	require.NoError(t, <-done)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&running) == 0 }, 3*time.Second, 10*time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&unit.gracefulStops))
	require.EqualValues(t, 1, atomic.LoadInt32(&unit.unregistered))

	_, found := recorder.FindEntry("service got signal")
	require.True(t, found)
}

func TestService_StopByContext(t *testing.T) {
	var running int32
	unit := newMockUnit(&running, nil)
	svc := New(logtest.NewRecorder(), unit)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.StartContext(ctx) }()
	<-unit.started

	cancel()
	require.NoError(t, <-done)
	require.EqualValues(t, 1, atomic.LoadInt32(&unit.gracefulStops))
}

func TestService_FatalErrorInCompositeUnit(t *testing.T) {
	var running int32
	healthy := newMockUnit(&running, nil)
	broken := newMockUnit(&running, errors.New("listen tcp :80: bind: address already in use"))
	svc := New(logtest.NewRecorder(), NewCompositeUnit(healthy, broken))

	err := svc.Start()
	require.Error(t, err)
	require.ErrorContains(t, err, "address already in use")

	var cue *CompositeUnitError
	require.ErrorAs(t, err, &cue)
	require.Len(t, cue.UnitErrors, 1)

	require.EqualValues(t, 0, atomic.LoadInt32(&running))
	require.EqualValues(t, 1, atomic.LoadInt32(&healthy.stopCalls))
	require.EqualValues(t, 0, atomic.LoadInt32(&healthy.gracefulStops))
	require.EqualValues(t, 1, atomic.LoadInt32(&healthy.registered))
	require.EqualValues(t, 1, atomic.LoadInt32(&broken.registered))
}
