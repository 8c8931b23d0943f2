// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/draftbridge/draftbridge/lib/testutil"
)

func TestAcquireWithinSlots(t *testing.T) {
	l := New(2, 0)

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if got := l.InFlight(); got != 2 {
		t.Errorf("InFlight = %d, want 2", got)
	}

	l.Release()
	l.Release()
	if got := l.InFlight(); got != 0 {
		t.Errorf("InFlight after release = %d, want 0", got)
	}
}

func TestOverloadedWhenQueueFull(t *testing.T) {
	l := New(1, 0)

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// No queue: the second request must be rejected immediately, not
	// block.
	err := l.Acquire(context.Background())
	if !errors.Is(err, ErrOverloaded) {
		t.Fatalf("Acquire at capacity = %v, want ErrOverloaded", err)
	}

	l.Release()
}

func TestQueuedWaiterAdmittedOnRelease(t *testing.T) {
	l := New(1, 1)

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	admitted := make(chan error, 1)
	go func() {
		admitted <- l.Acquire(context.Background())
	}()

	// Wait for the goroutine to join the queue, then release.
	testutil.Eventually(t, 2*time.Second, 5*time.Millisecond, func() bool {
		return l.Queued() == 1
	}, "waiter should be queued")

	l.Release()

	if err := testutil.RequireReceive(t, admitted, 2*time.Second, "queued acquire"); err != nil {
		t.Fatalf("queued Acquire: %v", err)
	}
	l.Release()
}

func TestFIFOAdmissionOrder(t *testing.T) {
	l := New(1, 3)

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// Enqueue three waiters one at a time so their queue positions
	// are deterministic.
	order := make(chan int, 3)
	for i := 1; i <= 3; i++ {
		i := i
		ready := l.Queued()
		go func() {
			if err := l.Acquire(context.Background()); err != nil {
				t.Errorf("waiter %d: %v", i, err)
				return
			}
			order <- i
		}()
		testutil.Eventually(t, 2*time.Second, time.Millisecond, func() bool {
			return l.Queued() == ready+1
		}, "waiter %d should be queued", i)
	}

	for want := 1; want <= 3; want++ {
		l.Release()
		got := testutil.RequireReceive(t, order, 2*time.Second, "admission %d", want)
		if got != want {
			t.Errorf("admission order: got waiter %d, want %d", got, want)
		}
	}
	l.Release()
}

func TestCancelledWaiterLeavesQueue(t *testing.T) {
	l := New(1, 2)

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- l.Acquire(ctx)
	}()
	testutil.Eventually(t, 2*time.Second, time.Millisecond, func() bool {
		return l.Queued() == 1
	}, "waiter should be queued")

	cancel()

	err := testutil.RequireReceive(t, result, 2*time.Second, "cancelled acquire")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled Acquire = %v, want context.Canceled", err)
	}
	if got := l.Queued(); got != 0 {
		t.Errorf("Queued after cancel = %d, want 0", got)
	}

	// The slot must still be usable after the cancelled wait.
	l.Release()
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire after cancelled waiter: %v", err)
	}
	l.Release()
}

func TestGrantDuringCancellationIsNotLeaked(t *testing.T) {
	// Exercise the race between Release granting a slot and the
	// waiter abandoning the wait. Whatever the interleaving, the
	// slot must remain usable afterwards.
	for i := 0; i < 200; i++ {
		l := New(1, 1)
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		result := make(chan error, 1)
		go func() {
			result <- l.Acquire(ctx)
		}()
		testutil.Eventually(t, 2*time.Second, time.Microsecond, func() bool {
			return l.Queued() == 1
		}, "waiter should be queued")

		go cancel()
		go l.Release()

		err := testutil.RequireReceive(t, result, 2*time.Second, "racing acquire")
		if err == nil {
			// The waiter won the race and holds the slot.
			l.Release()
		}

		// The slot must be acquirable regardless of who won.
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("iteration %d: slot leaked: %v", i, err)
		}
		l.Release()
	}
}

func TestReleaseWithoutAcquirePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Release without Acquire should panic")
		}
	}()
	New(1, 0).Release()
}

func TestNewValidatesArguments(t *testing.T) {
	for name, fn := range map[string]func(){
		"zero slots":     func() { New(0, 1) },
		"negative queue": func() { New(1, -1) },
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			fn()
		})
	}
}
