/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package retry

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Defaults of EscalatingBackOff.
const (
	DefaultEscalatingInitial       = time.Second
	DefaultEscalatingMax           = time.Minute
	DefaultEscalatingMaxJitter     = time.Second
	DefaultEscalatingMaxMultiplier = 10
)

// EscalatingBackOff computes delays as Initial*multiplier plus a random jitter in [0, MaxJitter),
// capped at Max. Every NextBackOff doubles the multiplier up to MaxMultiplier. Reset brings it back to 1.
//
// Unlike backoff.ExponentialBackOff it never gives up and keeps no elapsed time, its state is only
// the multiplier. EscalatingBackOff is not safe for concurrent use.
type EscalatingBackOff struct {
	Initial       time.Duration
	Max           time.Duration
	MaxJitter     time.Duration
	MaxMultiplier float64

	// Rand returns a pseudo-random number in [0.0, 1.0) used for jitter.
	Rand func() float64

	multiplier float64
}

var _ backoff.BackOff = (*EscalatingBackOff)(nil)

// NewEscalatingBackOff creates an EscalatingBackOff with the multiplier set to 1.
func NewEscalatingBackOff(initial, maxDelay, maxJitter time.Duration, maxMultiplier float64) *EscalatingBackOff {
	return &EscalatingBackOff{
		Initial:       initial,
		Max:           maxDelay,
		MaxJitter:     maxJitter,
		MaxMultiplier: maxMultiplier,
		Rand:          rand.Float64,
		multiplier:    1,
	}
}

// NextBackOff returns the delay for the current multiplier and escalates it.
func (b *EscalatingBackOff) NextBackOff() time.Duration {
	d := b.Delay()
	b.Escalate()
	return d
}

// Delay returns the delay for the current multiplier without escalating.
func (b *EscalatingBackOff) Delay() time.Duration {
	d := time.Duration(float64(b.Initial) * b.Multiplier())
	if b.MaxJitter > 0 && b.Rand != nil {
		d += time.Duration(b.Rand() * float64(b.MaxJitter))
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// Escalate doubles the multiplier, never above MaxMultiplier.
func (b *EscalatingBackOff) Escalate() {
	m := b.Multiplier() * 2
	if b.MaxMultiplier >= 1 && m > b.MaxMultiplier {
		m = b.MaxMultiplier
	}
	b.multiplier = m
}

// Reset sets the multiplier back to 1.
func (b *EscalatingBackOff) Reset() {
	b.multiplier = 1
}

// Multiplier returns the current multiplier.
func (b *EscalatingBackOff) Multiplier() float64 {
	if b.multiplier < 1 {
		return 1
	}
	return b.multiplier
}

// EscalatingPolicy is a Policy producing EscalatingBackOff with at most MaxAttempts retries (0 means no limit).
type EscalatingPolicy struct {
	Initial       time.Duration
	Max           time.Duration
	MaxJitter     time.Duration
	MaxMultiplier float64
	MaxAttempts   int
}

// NewBackOff implements Policy.
func (p EscalatingPolicy) NewBackOff() backoff.BackOff {
	var bf backoff.BackOff = NewEscalatingBackOff(p.Initial, p.Max, p.MaxJitter, p.MaxMultiplier)
	if p.MaxAttempts > 0 {
		bf = backoff.WithMaxRetries(bf, uint64(p.MaxAttempts))
	}
	bf.Reset()
	return bf
}
