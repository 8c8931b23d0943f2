// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package limiter provides bounded FIFO admission control for
// conversions.
//
// The external conversion engine is CPU- and memory-heavy per
// invocation and not safe to run with unbounded parallelism. A
// [Limiter] grants a fixed number of concurrent slots; requests beyond
// the bound wait on a first-in-first-out queue of bounded depth, and
// requests beyond the queue are rejected immediately with
// [ErrOverloaded] rather than blocking.
//
// The limiter is the single piece of shared mutable state between
// concurrent conversions. Admission order is arrival order; a waiter
// whose context is cancelled leaves the queue without consuming a
// slot, and a slot handed to a waiter that has already given up is
// passed on to the next waiter.
//
// This package has no dependencies on other Draftbridge packages.
package limiter
