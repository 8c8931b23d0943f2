// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

package limiter

import (
	"context"
	"errors"
	"sync"
)

// ErrOverloaded reports that both the concurrent slots and the wait
// queue are full. Callers translate this into an immediate overload
// response — the request never blocks.
var ErrOverloaded = errors.New("limiter: at capacity")

// Limiter is a FIFO admission gate with a fixed number of concurrent
// slots and a bounded wait queue. Safe for concurrent use.
type Limiter struct {
	mu sync.Mutex

	// free is the number of unclaimed concurrent slots.
	free int

	// capacity is the configured slot count, used to detect Release
	// without a matching Acquire.
	capacity int

	// maxQueue bounds the waiter queue. Zero means no queueing:
	// requests are admitted or rejected immediately.
	maxQueue int

	// waiters holds one channel per queued request, in arrival
	// order. A granted slot is delivered by sending on the waiter's
	// channel; the channel is buffered so delivery never blocks even
	// if the waiter has already abandoned the wait.
	waiters []chan struct{}
}

// New creates a Limiter with the given concurrent slot count and wait
// queue depth. Panics if slots is not positive or queueDepth is
// negative — both are programmer errors, not runtime conditions.
func New(slots, queueDepth int) *Limiter {
	if slots <= 0 {
		panic("limiter.New: slots must be positive")
	}
	if queueDepth < 0 {
		panic("limiter.New: queueDepth must not be negative")
	}
	return &Limiter{
		free:     slots,
		capacity: slots,
		maxQueue: queueDepth,
	}
}

// Acquire claims a slot, waiting in FIFO order if all slots are busy.
// Returns nil once a slot is held, ErrOverloaded immediately when the
// wait queue is full, or ctx.Err() if the context is cancelled while
// waiting. A nil return must be paired with exactly one Release.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	if l.free > 0 {
		l.free--
		l.mu.Unlock()
		return nil
	}
	if len(l.waiters) >= l.maxQueue {
		l.mu.Unlock()
		return ErrOverloaded
	}
	grant := make(chan struct{}, 1)
	l.waiters = append(l.waiters, grant)
	l.mu.Unlock()

	select {
	case <-grant:
		return nil
	case <-ctx.Done():
		// Leave the queue. Release may have granted our slot in the
		// window before we reacquire the lock; if so the grant is
		// sitting in the buffered channel and must be passed on, or
		// the slot would leak.
		l.mu.Lock()
		for i, waiter := range l.waiters {
			if waiter == grant {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		l.mu.Unlock()

		select {
		case <-grant:
			// The slot was granted concurrently with cancellation.
			// We are not going to use it, so hand it back.
			l.Release()
		default:
		}
		return ctx.Err()
	}
}

// Release returns a slot. If a request is waiting, the slot is handed
// directly to the front of the queue; otherwise it becomes free.
// Panics on Release without a matching Acquire.
func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.waiters) > 0 {
		grant := l.waiters[0]
		l.waiters = l.waiters[1:]
		grant <- struct{}{}
		return
	}
	if l.free == l.capacity {
		panic("limiter.Release: release without matching acquire")
	}
	l.free++
}

// InFlight returns the number of slots currently held.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capacity - l.free
}

// Queued returns the number of requests waiting for a slot.
func (l *Limiter) Queued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}
