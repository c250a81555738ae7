package nuke

import (
	"sync"
	"time"
)

const rateLimiterFlushInterval = 100 * time.Millisecond

// rateLimiter is a token bucket bounding how fast new underlying work may
// start. It absorbs bursts of start/cancel churn: while the bucket is empty,
// excess work queues and is released at the replenishment rate. Queued items
// whose cancellation token fires are dropped without ever starting.
type rateLimiter struct {
	rate  float64 // tokens per second
	burst float64

	mu        sync.Mutex
	available float64
	last      time.Time
	pending   []limitedWork
	scheduled bool
	closed    bool
}

type limitedWork struct {
	token Token
	fn    func()
}

func newRateLimiter(rate, burst float64) *rateLimiter {
	return &rateLimiter{
		rate:      rate,
		burst:     burst,
		available: burst,
		last:      time.Now(),
	}
}

// Execute runs fn immediately if a token is available and nothing is already
// queued; otherwise it queues fn behind earlier work.
func (r *rateLimiter) Execute(token Token, fn func()) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if len(r.pending) == 0 && r.take() {
		r.mu.Unlock()
		fn()
		return
	}
	r.pending = append(r.pending, limitedWork{token: token, fn: fn})
	r.scheduleFlush()
	r.mu.Unlock()
}

// Close drops all queued work.
func (r *rateLimiter) Close() {
	r.mu.Lock()
	r.closed = true
	r.pending = nil
	r.mu.Unlock()
}

// take refills the bucket by elapsed time and consumes one token if possible.
// Caller holds r.mu.
func (r *rateLimiter) take() bool {
	now := time.Now()
	r.available += now.Sub(r.last).Seconds() * r.rate
	if r.available > r.burst {
		r.available = r.burst
	}
	r.last = now
	if r.available < 1 {
		return false
	}
	r.available--
	return true
}

// Caller holds r.mu.
func (r *rateLimiter) scheduleFlush() {
	if r.scheduled || r.closed {
		return
	}
	r.scheduled = true
	time.AfterFunc(rateLimiterFlushInterval, r.flush)
}

func (r *rateLimiter) flush() {
	r.mu.Lock()
	r.scheduled = false
	if r.closed {
		r.mu.Unlock()
		return
	}
	var ready []func()
	for len(r.pending) > 0 {
		item := r.pending[0]
		if item.token.IsCancelling() {
			r.pending = r.pending[1:]
			continue
		}
		if !r.take() {
			break
		}
		r.pending = r.pending[1:]
		ready = append(ready, item.fn)
	}
	if len(r.pending) > 0 {
		r.scheduleFlush()
	}
	r.mu.Unlock()

	for _, fn := range ready {
		fn()
	}
}
