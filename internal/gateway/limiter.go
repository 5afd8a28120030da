// Package gateway implements the speech-to-text websocket gateway: the
// server-wide concurrency limiter, the per-session state machine, and the
// HTTP upgrade handler that wires them together.
package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/brevity-audio/sttgateway/internal/observe"
)

// ErrCancelled is returned by [ConcurrencyLimiter.Acquire] when the caller's
// context is cancelled before a permit becomes available, and by
// [AudioQueue.Write] when its context is cancelled while blocked.
var ErrCancelled = errors.New("gateway: acquire cancelled")

// ErrQueueClosed is returned by [AudioQueue.Write] once the queue has been
// closed for further writes.
var ErrQueueClosed = errors.New("gateway: queue closed")

// ConcurrencyLimiter caps the number of engine invocations in flight across
// the whole process, regardless of how many sessions are connected. It
// wraps [semaphore.Weighted], whose Acquire already suspends until a permit
// is available or the context is cancelled.
type ConcurrencyLimiter struct {
	sem     atomic.Pointer[semaphore.Weighted]
	size    atomic.Int64
	metrics *observe.Metrics
}

// NewConcurrencyLimiter creates a limiter admitting at most maxConcurrent
// engine invocations simultaneously. maxConcurrent must be >= 1. metrics may
// be nil, in which case lease accounting is not recorded.
func NewConcurrencyLimiter(maxConcurrent int, metrics *observe.Metrics) *ConcurrencyLimiter {
	l := &ConcurrencyLimiter{metrics: metrics}
	l.SetMaxConcurrent(maxConcurrent)
	return l
}

// SetMaxConcurrent swaps in a new admission cap, taking effect for permits
// acquired from this point on. Leases already outstanding keep draining
// against the semaphore they were acquired from, so an in-flight call is
// never interrupted by a resize.
func (l *ConcurrencyLimiter) SetMaxConcurrent(maxConcurrent int) {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	l.sem.Store(semaphore.NewWeighted(int64(maxConcurrent)))
	l.size.Store(int64(maxConcurrent))
}

// MaxConcurrent reports the admission cap currently in effect.
func (l *ConcurrencyLimiter) MaxConcurrent() int {
	return int(l.size.Load())
}

// Lease is a scoped permit from a [ConcurrencyLimiter]. Exactly one Release
// call is required per successful Acquire; Release beyond the first is a
// programming error and is ignored rather than panicking, since a session's
// shutdown path may race with an already-released lease.
type Lease struct {
	sem      *semaphore.Weighted
	metrics  *observe.Metrics
	acquired time.Time
	released bool
}

// Acquire suspends until a permit is available or ctx is cancelled. On
// cancellation it returns [ErrCancelled] and consumes no permit.
func (l *ConcurrencyLimiter) Acquire(ctx context.Context) (*Lease, error) {
	start := time.Now()
	sem := l.sem.Load()
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, ErrCancelled
	}
	if l.metrics != nil {
		l.metrics.EngineLeasesInUse.Add(ctx, 1)
		l.metrics.LeaseWaitDuration.Record(ctx, time.Since(start).Seconds())
	}
	return &Lease{sem: sem, metrics: l.metrics, acquired: start}, nil
}

// Release returns the lease's permit to the limiter. Safe to call more than
// once; only the first call has an effect.
func (lease *Lease) Release(ctx context.Context) {
	if lease == nil || lease.released {
		return
	}
	lease.released = true
	lease.sem.Release(1)
	if lease.metrics != nil {
		lease.metrics.EngineLeasesInUse.Add(ctx, -1)
	}
}
