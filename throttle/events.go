/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"time"

	"github.com/pulsefit/aithrottle/log"
)

// EventType is the kind of a limiter event.
type EventType string

// Event types.
const (
	EventAdmitted       EventType = "admitted"
	EventQueued         EventType = "queued"
	EventBackoffEntered EventType = "backoff-entered"
	EventBackoffExited  EventType = "backoff-exited"
	EventRejected       EventType = "rejected"
	EventSucceeded      EventType = "succeeded"
	EventRequeued       EventType = "requeued"
	EventExpired        EventType = "expired"
	EventCanceled       EventType = "canceled"
)

// EventTypes lists all event types, in the order they are reported in metrics.
var EventTypes = []EventType{
	EventAdmitted, EventQueued, EventBackoffEntered, EventBackoffExited, EventRejected,
	EventSucceeded, EventRequeued, EventExpired, EventCanceled,
}

// BackoffReason tells what made the limiter enter backoff.
type BackoffReason string

// Backoff reasons.
const (
	BackoffReasonRateLimited BackoffReason = "rate-limited"
	BackoffReasonErrorStreak BackoffReason = "error-streak"
)

// Event describes a single state transition of the limiter.
// Fields that do not apply to the event type are zero.
type Event struct {
	Type      EventType
	Time      time.Time
	RequestID string
	Priority  int
	Cost      int

	// QueueLength is the queue length after the transition.
	QueueLength int

	// Drained is true when the request was admitted from the queue rather than on submission.
	Drained bool

	// Waited is how long the request spent in the queue (admitted, expired, canceled).
	Waited time.Duration

	// Backoff is the delay of the entered backoff, BackoffReason tells what caused it.
	Backoff       time.Duration
	BackoffReason BackoffReason
	Multiplier    float64

	Err error
}

// Observer receives limiter events. OnEvent is called synchronously while the limiter holds its lock,
// so it must be fast and must not call the limiter back.
type Observer interface {
	OnEvent(e Event)
}

// ObserverFunc is an adapter to allow the use of ordinary functions as Observer.
type ObserverFunc func(e Event)

// OnEvent implements Observer.
func (f ObserverFunc) OnEvent(e Event) {
	f(e)
}

func (e Event) logFields() []log.Field {
	fields := make([]log.Field, 0, 8)
	if e.RequestID != "" {
		fields = append(fields, log.String("request_id", e.RequestID),
			log.Int("priority", e.Priority), log.Int("cost", e.Cost))
	}
	fields = append(fields, log.Int("queue_length", e.QueueLength))
	if e.Waited > 0 {
		fields = append(fields, log.Duration("waited", e.Waited))
	}
	if e.Backoff > 0 {
		fields = append(fields, log.Duration("backoff", e.Backoff),
			log.String("backoff_reason", string(e.BackoffReason)), log.Float64("multiplier", e.Multiplier))
	}
	if e.Err != nil {
		fields = append(fields, log.Error(e.Err))
	}
	return fields
}

func (l *Limiter) emit(e Event) {
	e.Time = l.clock.Now()
	e.QueueLength = l.queue.Len()

	switch e.Type {
	case EventBackoffEntered, EventRejected, EventExpired:
		l.logger.Warn("limiter: "+string(e.Type), e.logFields()...)
	case EventBackoffExited, EventRequeued:
		l.logger.Info("limiter: "+string(e.Type), e.logFields()...)
	default:
		l.logger.Debug("limiter: "+string(e.Type), e.logFields()...)
	}

	l.metrics.IncEvents(e.Type)
	if e.Type == EventAdmitted && e.Drained {
		l.metrics.ObserveQueueWait(e.Waited)
	}
	l.metrics.SetQueueLength(e.QueueLength)

	for _, o := range l.observers {
		o.OnEvent(e)
	}
}
