/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errTemporary = errors.New("temporary")

func TestDoWithRetry(t *testing.T) {
	t.Run("retries until success", func(t *testing.T) {
		attempts := 0
		var delays []time.Duration
		err := DoWithRetry(context.Background(), NewExponentialBackoffPolicy(time.Millisecond, 5), nil,
			func(_ error, d time.Duration) { delays = append(delays, d) },
			func(ctx context.Context) error {
				attempts++
				if attempts < 3 {
					return errTemporary
				}
				return nil
			})
		require.NoError(t, err)
		require.Equal(t, 3, attempts)
		require.Len(t, delays, 2)
	})

	t.Run("not retryable error stops immediately", func(t *testing.T) {
		attempts := 0
		permanent := errors.New("bad request")
		err := DoWithRetry(context.Background(), NewExponentialBackoffPolicy(time.Millisecond, 5),
			func(err error) bool { return !errors.Is(err, permanent) }, nil,
			func(ctx context.Context) error {
				attempts++
				return permanent
			})
		require.ErrorIs(t, err, permanent)
		require.Equal(t, 1, attempts)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		attempts := 0
		policy := EscalatingPolicy{Initial: time.Millisecond, Max: 5 * time.Millisecond, MaxMultiplier: 4, MaxAttempts: 3}
		err := DoWithRetry(context.Background(), policy, nil, nil, func(ctx context.Context) error {
			attempts++
			return errTemporary
		})
		require.ErrorIs(t, err, errTemporary)
		require.Equal(t, 4, attempts)
	})
}

func TestEscalatingBackOff(t *testing.T) {
	t.Run("doubles up to the multiplier cap and resets", func(t *testing.T) {
		b := NewEscalatingBackOff(time.Second, time.Minute, 0, 10)
		var got []time.Duration
		for i := 0; i < 6; i++ {
			got = append(got, b.NextBackOff())
		}
		require.Equal(t, []time.Duration{
			time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second,
		}, got)
		require.EqualValues(t, 10, b.Multiplier())

		b.Reset()
		require.EqualValues(t, 1, b.Multiplier())
		require.Equal(t, time.Second, b.Delay())
	})

	t.Run("delay never exceeds max", func(t *testing.T) {
		b := NewEscalatingBackOff(20*time.Second, time.Minute, 0, 10)
		prev := time.Duration(0)
		for i := 0; i < 10; i++ {
			d := b.NextBackOff()
			require.GreaterOrEqual(t, d, prev)
			require.LessOrEqual(t, d, time.Minute)
			prev = d
		}
		require.Equal(t, time.Minute, prev)
	})

	t.Run("jitter is added within bounds", func(t *testing.T) {
		b := NewEscalatingBackOff(time.Second, time.Minute, time.Second, 10)
		b.Rand = func() float64 { return 0.5 }
		require.Equal(t, 1500*time.Millisecond, b.Delay())

		b.Rand = func() float64 { return 0.999 }
		require.Less(t, b.Delay(), 2*time.Second)
	})
}
