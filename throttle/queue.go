/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"container/heap"
	"context"
	"time"
)

// request is a submitted task waiting for (or going through) execution.
type request struct {
	id         string
	ctx        context.Context
	task       Task
	priority   int
	cost       int
	seq        int64
	enqueuedAt time.Time
	future     *Future

	// index in the queue heap, -1 when the request is not queued.
	index int

	// stopCancelWatch detaches the context.AfterFunc registered while the request is queued.
	stopCancelWatch func() bool
}

func (r *request) detachCancelWatch() {
	if r.stopCancelWatch != nil {
		r.stopCancelWatch()
		r.stopCancelWatch = nil
	}
}

// requestQueue is a binary heap ordered by priority (higher first), then by sequence number (lower first).
// Requeued requests get negative sequence numbers so they go ahead of everything in their tier.
type requestQueue []*request

var _ heap.Interface = (*requestQueue)(nil)

func (q requestQueue) Len() int { return len(q) }

func (q requestQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q requestQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *requestQueue) Push(x any) {
	r := x.(*request)
	r.index = len(*q)
	*q = append(*q, r)
}

func (q *requestQueue) Pop() any {
	old := *q
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	r.index = -1
	*q = old[:n-1]
	return r
}

func (q requestQueue) peek() *request {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

// oldest returns the earliest enqueue time, the heap is not ordered by it.
func (q requestQueue) oldest() (time.Time, bool) {
	if len(q) == 0 {
		return time.Time{}, false
	}
	res := q[0].enqueuedAt
	for _, r := range q[1:] {
		if r.enqueuedAt.Before(res) {
			res = r.enqueuedAt
		}
	}
	return res, true
}
